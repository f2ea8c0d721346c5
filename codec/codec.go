// Package codec validates inbound DNS datagrams and builds replies.
// Wire parsing itself is miekg/dns; Unpack already rejects truncated
// headers, compression pointers that run out of bounds or point
// forward, and names expanding past the 255 octet limit.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/miekg/dns"
)

// ErrMalformed marks inbound bytes that cannot become a query.  The
// relay answers FORMERR when the transaction id is recoverable and
// drops the datagram otherwise.
var ErrMalformed = errors.New("malformed message")

const headerLen = 12

// Decode parses one inbound client datagram.  A decoded query carries
// exactly one question and no answers; anything else is ErrMalformed.
func Decode(packet []byte) (*dns.Msg, error) {
	if len(packet) < headerLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrMalformed, len(packet))
	}

	var message = new(dns.Msg)
	if err := message.Unpack(packet); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if message.Response {
		return nil, fmt.Errorf("%w: response flag set", ErrMalformed)
	}

	if len(message.Question) != 1 {
		return nil, fmt.Errorf("%w: %d questions", ErrMalformed, len(message.Question))
	}

	if len(message.Answer) > 0 {
		return nil, fmt.Errorf("%w: already answered", ErrMalformed)
	}

	return message, nil
}

// PeekID recovers the transaction id from the raw header so even an
// undecodable datagram can get a correlatable FORMERR.
func PeekID(packet []byte) (uint16, bool) {
	if len(packet) < 2 {
		return 0, false
	}
	return binary.BigEndian.Uint16(packet[:2]), true
}

// NewReply builds a NOERROR response to req carrying answer.  The
// caller's transaction id is preserved by SetReply.
func NewReply(req *dns.Msg, answer []dns.RR) *dns.Msg {
	if req == nil {
		return nil
	}

	var resp = new(dns.Msg)
	resp.SetReply(req)
	resp.RecursionAvailable = true
	resp.Answer = answer

	return resp
}

// NewFailure builds a SERVFAIL response to req.
func NewFailure(req *dns.Msg) *dns.Msg {
	if req == nil {
		return nil
	}

	var resp = new(dns.Msg)
	resp.SetRcode(req, dns.RcodeServerFailure)
	resp.RecursionAvailable = true

	return resp
}

// NewFormatError builds a FORMERR response from nothing but the raw
// transaction id, for datagrams that failed to decode.
func NewFormatError(id uint16) *dns.Msg {
	var resp = new(dns.Msg)
	resp.Id = id
	resp.Response = true
	resp.RecursionAvailable = true
	resp.Rcode = dns.RcodeFormatError

	return resp
}
