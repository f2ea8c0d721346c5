package upstream

import (
	"context"
	"time"

	"dnsrelay/log"
	"dnsrelay/model"
	"dnsrelay/pending"
)

// Forward sends a query upstream under a freshly allocated relay-id.
// Fire-and-forget for the caller: the response, retries and the final
// timeout are all handled by the read and reaper flows.  Only id
// exhaustion is an error.
func (s *Upstream) Forward(ex *model.Exchange) error {
	e := &pending.Entry{
		SN:         ex.SN,
		ClientAddr: ex.RemoteAddr,
		Request:    ex.Request,
		Deadline:   time.Now().Add(s.timeout),
		Retries:    s.retries,
	}

	id, err := s.tracker.Allocate(e)
	if err != nil {
		return err
	}

	log.Sugar.Debugf("sn=%d, id=%d forwarded as relay-id=%d", ex.SN, ex.Request.Id, id)
	s.send(e)

	return nil
}

// send packs the entry's request under its relay-id and writes it to
// the upstream socket.  A failed write is not terminal, the reaper's
// retry budget decides the query's fate.
func (s *Upstream) send(e *pending.Entry) {
	message := e.Request.Copy()
	message.Id = e.RelayID

	raw, err := message.Pack()
	if err != nil {
		log.Sugar.Errorf("sn=%d, request pack error=[%+v]", e.SN, err)
		return
	}

	if _, err = s.conn.Write(raw); err != nil {
		log.Sugar.Errorf("sn=%d, upstream write error=[%+v]", e.SN, err)
	}
}

// reap periodically resends overdue queries with retries remaining
// and fails the rest back to their clients.
func (s *Upstream) reap(ctx context.Context) {
	var ticker = time.NewTicker(s.reapEvery)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			resend, expired := s.tracker.Sweep(now, s.timeout)
			for _, e := range resend {
				log.Sugar.Infof("sn=%d, relay-id=%d timeout, %d retries left", e.SN, e.RelayID, e.Retries)
				s.send(e)
			}
			for _, e := range expired {
				log.Sugar.Warnf("sn=%d, relay-id=%d retries exhausted, SERVFAIL [%s]", e.SN, e.RelayID, e.Request.Question[0].String())
				s.fail(e)
			}
		case <-ctx.Done():
			log.Sugar.Info("upstream reaper stop")
			return
		}
	}
}
