package upstream

import (
	"errors"
	"net"

	"github.com/miekg/dns"

	"dnsrelay/codec"
	"dnsrelay/log"
	"dnsrelay/model"
	"dnsrelay/pending"
)

// read drains the upstream socket and correlates each datagram
// against the tracker.  Datagrams bearing an unknown or already
// consumed relay-id are discarded without reply.
func (s *Upstream) read() {
	bytes := make([]byte, dns.DefaultMsgSize)
	for {
		n, err := s.conn.Read(bytes)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				log.Sugar.Info("upstream read connection closed")
				break
			}
			log.Sugar.Error("upstream read error : ", err)
			continue
		}

		if n <= 0 {
			continue
		}

		var response = new(dns.Msg)
		if err = response.Unpack(bytes[:n]); err != nil {
			log.Sugar.Warnf("upstream unpack error=[%+v]", err)
			continue
		}

		s.handle(response)
	}
}

// handle consumes one upstream response: cache positive answers,
// restore the client's transaction id, hand the reply to the write
// flow.
func (s *Upstream) handle(response *dns.Msg) {
	if !response.Response {
		log.Sugar.Warnf("upstream sent a non-response, id=%d discarded", response.Id)
		return
	}

	e, ok := s.tracker.Match(response.Id)
	if !ok {
		// spoofed, duplicated, or answered after expiry
		log.Sugar.Debugf("relay-id=%d unknown, discarded", response.Id)
		return
	}

	q := e.Request.Question[0]

	// negative and empty responses are relayed but never cached
	if response.Rcode == dns.RcodeSuccess && len(response.Answer) > 0 {
		s.cache.Set(q.Name, q.Qtype, response.Answer)
	}

	response.Id = e.Request.Id
	response.RecursionAvailable = true

	s.respChan <- &model.Exchange{
		SN:         e.SN,
		RemoteAddr: e.ClientAddr,
		Request:    e.Request,
		Response:   response,
		Source:     model.SourceUpstream,
	}
}

// fail answers an expired entry's client with SERVFAIL.
func (s *Upstream) fail(e *pending.Entry) {
	s.respChan <- &model.Exchange{
		SN:         e.SN,
		RemoteAddr: e.ClientAddr,
		Request:    e.Request,
		Response:   codec.NewFailure(e.Request),
		Source:     model.SourceUpstream,
	}
}
