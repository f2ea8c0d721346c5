// Package pending correlates forwarded queries with upstream
// responses.  Clients reuse their 16-bit transaction ids freely, so
// every forwarded query gets a relay-local id; the tracker owns that
// id space.
package pending

import (
	"errors"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/miekg/dns"
)

// ErrExhausted is returned when all 65536 relay-ids are in flight.
var ErrExhausted = errors.New("no free relay id")

// Entry binds one in-flight forwarded query.  An entry lives from
// Allocate until exactly one of Match or Sweep removes it.
type Entry struct {
	// RelayID substituted into the upstream leg, set by Allocate
	RelayID uint16

	// SN serial number of the inbound datagram
	SN uint64

	// ClientAddr and Request keep the client leg, Request still
	// carries the client's own transaction id
	ClientAddr *net.UDPAddr
	Request    *dns.Msg

	Deadline time.Time
	Retries  int
}

type Tracker struct {
	mu      sync.Mutex
	entries map[uint16]*Entry
	rnd     *rand.Rand
}

func New() *Tracker {
	return &Tracker{
		entries: make(map[uint16]*Entry),
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Allocate picks a relay-id not currently in flight, stores the entry
// under it and returns it.  Random starting point, linear probe; ids
// recycle only after their entry is removed.
func (t *Tracker) Allocate(e *Entry) (uint16, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.entries) >= 1<<16 {
		return 0, ErrExhausted
	}

	id := uint16(t.rnd.Intn(1 << 16))
	for {
		if _, used := t.entries[id]; !used {
			break
		}
		id++
	}

	e.RelayID = id
	t.entries[id] = e

	return id, nil
}

// Match consumes the entry for an upstream response.  Single-use: a
// second response with the same relay-id, spoofed or duplicated,
// finds nothing.
func (t *Tracker) Match(id uint16) (*Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[id]
	if ok {
		delete(t.entries, id)
	}

	return e, ok
}

// Sweep reaps entries past their deadline.  Entries with retries left
// get the deadline pushed out by extend and come back in resend,
// still tracked under the same relay-id; exhausted entries are
// removed and come back in expired for SERVFAIL emission.
func (t *Tracker) Sweep(now time.Time, extend time.Duration) (resend, expired []*Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for id, e := range t.entries {
		if !now.After(e.Deadline) {
			continue
		}

		if e.Retries > 0 {
			e.Retries--
			e.Deadline = now.Add(extend)
			resend = append(resend, e)
			continue
		}

		delete(t.entries, id)
		expired = append(expired, e)
	}

	return resend, expired
}

// Len reports the number of in-flight entries.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
