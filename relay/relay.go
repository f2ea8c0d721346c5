// Package relay decides how each inbound query is answered: override
// table first, then cache, then a forward to the upstream server.
package relay

import (
	"net"

	"github.com/miekg/dns"

	"dnsrelay/cache"
	"dnsrelay/codec"
	"dnsrelay/log"
	"dnsrelay/model"
	"dnsrelay/override"
)

// Forwarder is the upstream leg.  Forward must not block on the
// upstream round trip; the response arrives later through the shared
// response channel.
type Forwarder interface {
	Forward(*model.Exchange) error
}

type Engine struct {
	overrides *override.Table
	answers   cache.Cache
	forwarder Forwarder

	respChan chan *model.Exchange
}

func New(overrides *override.Table, answers cache.Cache, forwarder Forwarder, respChan chan *model.Exchange) *Engine {
	return &Engine{
		overrides: overrides,
		answers:   answers,
		forwarder: forwarder,
		respChan:  respChan,
	}
}

// Handle resolves one inbound datagram, first match wins.  Every
// outcome except a forward puts a reply on the response channel
// before returning; a forward's reply arrives asynchronously.
func (e *Engine) Handle(packet []byte, remote *net.UDPAddr, sn uint64) {
	request, err := codec.Decode(packet)
	if err != nil {
		id, ok := codec.PeekID(packet)
		if !ok {
			log.Sugar.Warnf("sn=%d decode error=[%+v], no id to answer, dropped", sn, err)
			return
		}
		log.Sugar.Warnf("sn=%d decode error=[%+v], FORMERR", sn, err)
		e.respChan <- &model.Exchange{SN: sn, RemoteAddr: remote, Response: codec.NewFormatError(id)}
		return
	}

	ex := &model.Exchange{
		SN:         sn,
		RemoteAddr: remote,
		Request:    request,
	}

	q := request.Question[0]
	log.Sugar.Infof("sn=%d, id=%d, query=[%s]", sn, request.Id, q.String())

	if rr := e.overrides.Answer(q); rr != nil {
		ex.Response = codec.NewReply(request, []dns.RR{rr})
		ex.Source = model.SourceOverride
		e.respChan <- ex
		return
	}

	if answers, ok := e.answers.Get(q.Name, q.Qtype); ok {
		ex.Response = codec.NewReply(request, answers)
		ex.Source = model.SourceCache
		e.respChan <- ex
		return
	}

	if err = e.forwarder.Forward(ex); err != nil {
		log.Sugar.Errorf("sn=%d forward error=[%+v], SERVFAIL", sn, err)
		ex.Response = codec.NewFailure(request)
		e.respChan <- ex
	}
}
