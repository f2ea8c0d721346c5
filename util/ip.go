package util

import (
	"net"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

const (
	// ipv*Flags is the set of socket option flags for configuring an
	// IPv* UDP connection to receive appropriate OOB data.  For both
	// versions the flags are:
	//   FlagDst
	//   FlagInterface
	ipv4Flags = ipv4.FlagDst | ipv4.FlagInterface
	ipv6Flags = ipv6.FlagDst | ipv6.FlagInterface
)

func Read(c *net.UDPConn, buf []byte) (n int, remoteAddr *net.UDPAddr, err error) {
	n, remoteAddr, err = c.ReadFromUDP(buf)
	if err != nil {
		return -1, nil, err
	}

	return n, remoteAddr, nil
}

// SetControlMessage enables destination and interface control
// messages on the listener socket.  Useful on multihomed hosts; a
// socket that rejects the option still serves.
func SetControlMessage(conn *net.UDPConn) error {
	if err := ipv4.NewPacketConn(conn).SetControlMessage(ipv4Flags, true); err == nil {
		return nil
	}

	return ipv6.NewPacketConn(conn).SetControlMessage(ipv6Flags, true)
}
