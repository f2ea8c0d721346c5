// Package upstream owns the relay's single outbound socket: it
// forwards queries under relay-ids, reads the asynchronous responses
// back, and reaps queries the upstream never answered.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"dnsrelay/cache"
	"dnsrelay/log"
	"dnsrelay/model"
	"dnsrelay/pending"
)

const (
	defaultTimeout   = 2 * time.Second
	defaultRetries   = 2
	defaultReapEvery = 250 * time.Millisecond
)

type Config struct {
	Address string `json:"address"`
	Port    int    `json:"port"`

	// Timeout per attempt, seconds; Retries resends after the first
	// attempt before the client gets SERVFAIL
	Timeout int `json:"timeout"`
	Retries int `json:"retries"`
}

type Upstream struct {
	conn    *net.UDPConn
	tracker *pending.Tracker
	cache   cache.Cache

	respChan chan *model.Exchange

	timeout   time.Duration
	retries   int
	reapEvery time.Duration

	wg       sync.WaitGroup
	cancelFn context.CancelFunc
}

func New(c Config, tracker *pending.Tracker, answers cache.Cache, respChan chan *model.Exchange) (*Upstream, error) {
	if len(c.Address) == 0 {
		return nil, errors.New("upstream address needed")
	}

	port := c.Port
	if port == 0 {
		port = 53
	}

	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(c.Address, fmt.Sprintf("%d", port)))
	if err != nil {
		return nil, fmt.Errorf("upstream address error=[%+v]", err)
	}

	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("upstream dial error=[%+v]", err)
	}

	s := &Upstream{
		conn:      conn,
		tracker:   tracker,
		cache:     answers,
		respChan:  respChan,
		timeout:   defaultTimeout,
		retries:   defaultRetries,
		reapEvery: defaultReapEvery,
	}

	if c.Timeout > 0 {
		s.timeout = time.Duration(c.Timeout) * time.Second
	}
	if c.Retries > 0 {
		s.retries = c.Retries
	}

	log.Sugar.Infof("upstream %s timeout=%s retries=%d", addr, s.timeout, s.retries)

	return s, nil
}

func (s *Upstream) Start() {
	var ctx context.Context
	ctx, s.cancelFn = context.WithCancel(context.Background())

	s.wg.Add(2)
	go func() {
		s.read()
		s.wg.Done()
	}()
	go func() {
		s.reap(ctx)
		s.wg.Done()
	}()

	log.Sugar.Info("upstream is running ...")
}

// Stop ends the response and reaper flows.  Queries still in flight
// are abandoned; their clients have timed out on their side long
// before a stopped relay matters to them.
func (s *Upstream) Stop() {
	log.Sugar.Info("upstream stopping")
	s.cancelFn()
	if err := s.conn.Close(); err != nil {
		log.Sugar.Errorf("upstream connection close error=[%+v]", err)
	}
	s.wg.Wait()
	log.Sugar.Infof("upstream stopped, %d queries abandoned", s.tracker.Len())
}
