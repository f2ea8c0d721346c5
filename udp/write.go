package udp

import (
	"time"

	"github.com/miekg/dns"

	"dnsrelay/log"
)

func (s *Server) write() {
	s.respWG.Add(1)
	for ex := range s.respChan {

		if ex.Response == nil {
			log.Sugar.Errorf("sn=%d nil response", ex.SN)
			continue
		}

		if ex.RemoteAddr == nil {
			log.Sugar.Errorf("sn=%d nil remote addr", ex.SN)
			continue
		}

		bytes, err := ex.Response.Pack()
		if err != nil {
			log.Sugar.Warnf("sn=%d, response pack error=[%+v]", ex.SN, err)
			continue
		}

		if err = s.conn.SetWriteDeadline(time.Now().Add(defaultTimeout)); err != nil {
			log.Sugar.Errorf("sn=%d, server udp connection set deadline error=[%+v]", ex.SN, err)
			continue
		}

		if _, err = s.conn.WriteToUDP(bytes, ex.RemoteAddr); err != nil {
			log.Sugar.Errorf("sn=%d, udp connection write error=[%+v]", ex.SN, err)
			// do not break, s.respChan needs to drain
			continue
		}

		log.Sugar.Infof("sn=%d, id=%d, source=%s, %s answer %d", ex.SN, ex.Response.Id, ex.Source, dns.RcodeToString[ex.Response.Rcode], len(ex.Response.Answer))
	}
	s.respWG.Done()
}
