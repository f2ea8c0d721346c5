package upstream

import (
	"net"
	"os"
	"testing"
	"time"

	"github.com/miekg/dns"

	"dnsrelay/cache"
	"dnsrelay/log"
	"dnsrelay/model"
	"dnsrelay/pending"
)

func TestMain(m *testing.M) {
	_ = log.Init(log.Config{STDOUT: true})
	os.Exit(m.Run())
}

var clientAddr = &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 40000}

func newTestUpstream() (*Upstream, *pending.Tracker, *cache.Memory, chan *model.Exchange) {
	tracker := pending.New()
	answers := cache.NewMemory()
	respChan := make(chan *model.Exchange, 4)
	s := &Upstream{
		tracker:  tracker,
		cache:    answers,
		respChan: respChan,
		timeout:  time.Second,
		retries:  1,
	}
	return s, tracker, answers, respChan
}

func allocate(t *testing.T, tracker *pending.Tracker, name string, clientID uint16, sn uint64) *pending.Entry {
	t.Helper()
	req := new(dns.Msg)
	req.SetQuestion(name, dns.TypeA)
	req.Id = clientID
	e := &pending.Entry{
		SN:         sn,
		ClientAddr: clientAddr,
		Request:    req,
		Deadline:   time.Now().Add(time.Second),
	}
	if _, err := tracker.Allocate(e); err != nil {
		t.Fatal(err)
	}
	return e
}

func upstreamReply(e *pending.Entry, rcode int, answer string) *dns.Msg {
	resp := new(dns.Msg)
	resp.SetRcode(e.Request, rcode)
	resp.Id = e.RelayID
	if len(answer) > 0 {
		rr, _ := dns.NewRR(answer)
		resp.Answer = []dns.RR{rr}
	}
	return resp
}

func TestHandleCorrelates(t *testing.T) {
	s, tracker, answers, respChan := newTestUpstream()

	e := allocate(t, tracker, "example.com.", 0x1111, 9)
	s.handle(upstreamReply(e, dns.RcodeSuccess, "example.com. 300 IN A 93.184.216.34"))

	select {
	case ex := <-respChan:
		if ex.SN != 9 || ex.RemoteAddr != clientAddr {
			t.Errorf("exchange = %+v", ex)
		}
		if ex.Response.Id != 0x1111 {
			t.Errorf("client id = %#x, want 0x1111", ex.Response.Id)
		}
		if !ex.Response.RecursionAvailable {
			t.Error("recursion available flag not set")
		}
	default:
		t.Fatal("no exchange produced")
	}

	if _, ok := answers.Get("example.com.", dns.TypeA); !ok {
		t.Error("positive answer not cached")
	}
	if tracker.Len() != 0 {
		t.Errorf("tracker len = %d after match", tracker.Len())
	}
}

func TestHandleNegativeNotCached(t *testing.T) {
	s, tracker, answers, respChan := newTestUpstream()

	e := allocate(t, tracker, "nxdomain.test.", 0x2222, 10)
	s.handle(upstreamReply(e, dns.RcodeNameError, ""))

	select {
	case ex := <-respChan:
		if ex.Response.Rcode != dns.RcodeNameError || ex.Response.Id != 0x2222 {
			t.Errorf("response = %+v", ex.Response.MsgHdr)
		}
	default:
		t.Fatal("negative response not relayed")
	}

	if _, ok := answers.Get("nxdomain.test.", dns.TypeA); ok {
		t.Error("negative response cached")
	}
}

func TestHandleUnknownIDDiscarded(t *testing.T) {
	s, tracker, _, respChan := newTestUpstream()

	e := allocate(t, tracker, "example.com.", 0x3333, 11)
	resp := upstreamReply(e, dns.RcodeSuccess, "example.com. 300 IN A 93.184.216.34")
	resp.Id = e.RelayID + 1 // nobody waits for this id

	s.handle(resp)

	select {
	case ex := <-respChan:
		t.Fatalf("unexpected exchange %+v for unknown relay-id", ex)
	default:
	}
	if tracker.Len() != 1 {
		t.Errorf("tracker len = %d, want 1", tracker.Len())
	}
}

func TestHandleDuplicateDiscarded(t *testing.T) {
	s, tracker, _, respChan := newTestUpstream()

	e := allocate(t, tracker, "example.com.", 0x4444, 12)
	first := upstreamReply(e, dns.RcodeSuccess, "example.com. 300 IN A 93.184.216.34")
	duplicate := first.Copy()

	s.handle(first)
	s.handle(duplicate)

	if got := len(respChan); got != 1 {
		t.Errorf("exchanges produced = %d, want 1", got)
	}
}

func TestFail(t *testing.T) {
	s, tracker, _, respChan := newTestUpstream()

	e := allocate(t, tracker, "slow.test.", 0x5555, 13)

	s.fail(e)

	select {
	case ex := <-respChan:
		if ex.Response.Rcode != dns.RcodeServerFailure {
			t.Errorf("rcode = %d, want SERVFAIL", ex.Response.Rcode)
		}
		if ex.Response.Id != 0x5555 {
			t.Errorf("client id = %#x, want 0x5555", ex.Response.Id)
		}
	default:
		t.Fatal("no SERVFAIL produced")
	}
}
