package cache

import (
	"sync"
	"time"

	"github.com/miekg/dns"
)

// Memory is the in-process backend: a mutex-guarded map with lazy
// eviction on read.  Remaining TTL is recomputed from the absolute
// expiry on every Get.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry
}

type memoryEntry struct {
	answers []dns.RR
	expire  time.Time
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]*memoryEntry)}
}

func (m *Memory) Get(name string, qtype uint16) ([]dns.RR, bool) {
	k := key(name, qtype)

	m.mu.RLock()
	entry, ok := m.entries[k]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}

	remaining := time.Until(entry.expire)
	if remaining <= 0 {
		m.mu.Lock()
		// entry may have been overwritten since the read
		if current, ok := m.entries[k]; ok && current == entry {
			delete(m.entries, k)
		}
		m.mu.Unlock()
		return nil, false
	}

	var ttl = uint32(remaining / time.Second)
	var answers = make([]dns.RR, len(entry.answers))
	for i, rr := range entry.answers {
		answers[i] = dns.Copy(rr)
		answers[i].Header().Ttl = ttl
	}

	return answers, true
}

func (m *Memory) Set(name string, qtype uint16, answers []dns.RR) {
	if len(answers) == 0 {
		return
	}

	ttl := minTTL(answers)
	if ttl == 0 {
		return
	}

	var stored = make([]dns.RR, len(answers))
	for i, rr := range answers {
		stored[i] = dns.Copy(rr)
	}

	entry := &memoryEntry{
		answers: stored,
		expire:  time.Now().Add(time.Duration(ttl) * time.Second),
	}

	m.mu.Lock()
	m.entries[key(name, qtype)] = entry
	m.mu.Unlock()
}

func (m *Memory) Delete(name string, qtype uint16) {
	m.mu.Lock()
	delete(m.entries, key(name, qtype))
	m.mu.Unlock()
}
