package udp

import (
	"errors"
	"net"

	"github.com/miekg/dns"

	"dnsrelay/log"
	"dnsrelay/util"
)

func (s *Server) read() {
	bytes := make([]byte, dns.DefaultMsgSize)
	for {
		n, remoteAddr, err := util.Read(s.conn, bytes)
		if err != nil {
			if errors.Is(err, net.ErrClosed) || !s.status.Load() {
				log.Sugar.Info("server read stopped accepting")
				break
			}
			log.Sugar.Error("server read error : ", err)
			continue
		}

		if n <= 0 {
			log.Sugar.Warn("server read 0 byte")
			continue
		}

		s.reqWG.Add(1)

		if !s.status.Load() {
			s.reqWG.Done()
			break
		}

		// ReadFromUDP overwrites the buffer on the next call, the
		// dispatched goroutine needs its own copy
		packet := make([]byte, n)
		copy(packet, bytes)

		go func(remote *net.UDPAddr) {
			s.handler(packet, remote, s.serial.Add(1))
			s.reqWG.Done()
		}(remoteAddr)
	}
}
