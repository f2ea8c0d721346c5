package model

import (
	"net"

	"github.com/miekg/dns"
)

// Source records which step of the relay produced a response.
type Source uint8

const (
	SourceNone Source = iota
	SourceOverride
	SourceCache
	SourceUpstream
)

func (s Source) String() string {
	switch s {
	case SourceOverride:
		return "override"
	case SourceCache:
		return "cache"
	case SourceUpstream:
		return "upstream"
	default:
		return "none"
	}
}

// Exchange carries one client query through the relay, from the read
// loop to the write loop.  Request and Response keep the client's
// transaction id; the relay-id substituted for the upstream leg never
// appears here.
type Exchange struct {
	// SN serial number of the inbound datagram, for log correlation
	SN uint64

	// RemoteAddr the querying client's udp address
	RemoteAddr *net.UDPAddr

	Request  *dns.Msg
	Response *dns.Msg

	Source Source
}
