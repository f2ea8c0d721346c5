// Package cache stores previously forwarded answer sets keyed by
// question name and type.  Backends are pluggable; a failing backend
// only costs the relay its cache, never a query.
package cache

import (
	"strconv"

	"github.com/miekg/dns"
)

// Cache is the backend contract.  Get must never return answers past
// their expiry; Set overwrites the entry for the same key; both must
// be safe for concurrent use.
type Cache interface {
	// Get returns the stored answers with their remaining TTL, or
	// false on miss.  Backend errors are a miss.
	Get(name string, qtype uint16) ([]dns.RR, bool)

	// Set stores an answer set for the minimum TTL found among the
	// answers.  Empty and zero-TTL sets are not stored.
	Set(name string, qtype uint16, answers []dns.RR)

	// Delete drops the entry for the key, if any.
	Delete(name string, qtype uint16)
}

// None disables caching, every lookup is a miss.
type None struct{}

func (None) Get(string, uint16) ([]dns.RR, bool) { return nil, false }
func (None) Set(string, uint16, []dns.RR)        {}
func (None) Delete(string, uint16)               {}

func key(name string, qtype uint16) string {
	return dns.CanonicalName(name) + "/" + strconv.FormatUint(uint64(qtype), 10)
}

// minTTL returns the smallest TTL in the set, the lifetime of the
// whole cache entry.
func minTTL(answers []dns.RR) uint32 {
	var min uint32
	for i, rr := range answers {
		if ttl := rr.Header().Ttl; i == 0 || ttl < min {
			min = ttl
		}
	}
	return min
}
