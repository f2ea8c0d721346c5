// Package udp is the client-facing listener.  It holds no DNS
// semantics: the read flow hands raw datagrams to the handler, the
// write flow drains finished exchanges back to their clients.
package udp

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"dnsrelay/log"
	"dnsrelay/model"
	"dnsrelay/util"
)

const defaultTimeout = 10 * time.Second

type Config struct {
	Address string `json:"address"`
	Port    int    `json:"port"`
}

// Handler resolves one inbound datagram.  Called on its own
// goroutine, it must not block the read loop.
type Handler func(packet []byte, remote *net.UDPAddr, sn uint64)

type Server struct {
	address *net.UDPAddr
	conn    *net.UDPConn
	status  atomic.Bool // running status

	handler Handler

	reqWG sync.WaitGroup

	respWG   sync.WaitGroup
	respChan chan *model.Exchange

	serial atomic.Uint64
}

func New(c Config, handler Handler, respChan chan *model.Exchange) (*Server, error) {
	ip := net.ParseIP(c.Address)
	if len(ip) == 0 {
		return nil, fmt.Errorf("invalid address=%q", c.Address)
	}

	// port 0 binds an ephemeral port, Addr reports the choice
	if c.Port < 0 || c.Port > 65535 {
		return nil, fmt.Errorf("invalid port=%d", c.Port)
	}

	s := Server{
		address:  &net.UDPAddr{Port: c.Port, IP: ip},
		handler:  handler,
		respChan: respChan,
	}

	if err := s.setConn(); err != nil {
		return nil, fmt.Errorf("set conn error=[%+v]", err)
	}

	return &s, nil
}

func (s *Server) Start() {

	s.status.Store(true)

	go s.read()
	go s.write()

	log.Sugar.Infof("server listening on %s ...", s.address)
}

// Addr returns the bound listener address.
func (s *Server) Addr() *net.UDPAddr {
	return s.conn.LocalAddr().(*net.UDPAddr)
}

// StopRead stops accepting queries and waits until every dispatched
// handler has returned.
func (s *Server) StopRead() {
	log.Sugar.Info("server read stopping")
	s.status.Store(false)

	if err := s.conn.SetReadDeadline(time.Now()); err != nil {
		log.Sugar.Errorf("server read unblock error=[%+v]", err)
	}

	s.reqWG.Wait()
	log.Sugar.Infof("server read stopped, serial=%d", s.serial.Load())
}

// StopWrite drains the response channel and closes the socket.  The
// upstream flows must be stopped first so nothing sends on the
// channel after the close.
func (s *Server) StopWrite() {
	log.Sugar.Info("server write stopping")

	close(s.respChan)
	s.respWG.Wait()
	log.Sugar.Info("server write stopped")

	if err := s.conn.Close(); err != nil {
		log.Sugar.Errorf("server udp connection close error=[%+v]", err)
	}
}

func (s *Server) setConn() error {
	var err error
	if s.conn, err = net.ListenUDP("udp", s.address); err != nil {
		log.Sugar.Errorf("server udp [%s] listen error=[%+v]", s.address, err)
		return err
	}

	if err = util.SetControlMessage(s.conn); err != nil {
		log.Sugar.Debugf("server udp [%s] set control message error=[%+v]", s.address, err)
	}

	return nil
}
