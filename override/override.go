// Package override holds the static hostname to address table loaded
// at startup and consulted before cache or upstream.
package override

import (
	"bufio"
	"net"
	"os"
	"strings"

	"github.com/miekg/dns"

	"dnsrelay/log"
)

// TTL for synthesized override answers, seconds.
const TTL uint32 = 3600

// Table maps fully qualified lowercase names to addresses.  Read-only
// after Load, so lookups need no locking.
type Table struct {
	hosts map[string]net.IP
}

// Load parses a hosts-style file of "address hostname [hostname...]"
// lines.  Blank lines and #-comments are skipped, malformed lines are
// logged and skipped.  Only a missing or unreadable file is an error.
func Load(path string) (*Table, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	var t = &Table{hosts: make(map[string]net.IP)}

	var n int
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		n++
		line := strings.TrimSpace(scanner.Text())
		if len(line) == 0 || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 2 {
			log.Sugar.Warnf("override %s:%d skipped, need address and hostname", path, n)
			continue
		}

		ip := net.ParseIP(fields[0])
		if ip == nil {
			log.Sugar.Warnf("override %s:%d skipped, bad address %q", path, n, fields[0])
			continue
		}

		for _, host := range fields[1:] {
			t.hosts[dns.CanonicalName(host)] = ip
		}
	}
	if err = scanner.Err(); err != nil {
		return nil, err
	}

	log.Sugar.Infof("override table loaded, %d names from %s", len(t.hosts), path)

	return t, nil
}

// Lookup returns the address for name, case-insensitive exact match.
func (t *Table) Lookup(name string) (net.IP, bool) {
	if t == nil {
		return nil, false
	}
	ip, ok := t.hosts[dns.CanonicalName(name)]
	return ip, ok
}

// Answer synthesizes the override resource record for a question, or
// nil when the name is absent or the address family does not fit the
// query type.  A name overridden with the other family falls through
// to the normal resolution path.
func (t *Table) Answer(q dns.Question) dns.RR {
	ip, ok := t.Lookup(q.Name)
	if !ok {
		return nil
	}

	hdr := dns.RR_Header{
		Name:   q.Name,
		Rrtype: q.Qtype,
		Class:  q.Qclass,
		Ttl:    TTL,
	}

	switch q.Qtype {
	case dns.TypeA:
		if ip4 := ip.To4(); ip4 != nil {
			return &dns.A{Hdr: hdr, A: ip4}
		}
	case dns.TypeAAAA:
		if ip.To4() == nil {
			return &dns.AAAA{Hdr: hdr, AAAA: ip.To16()}
		}
	}

	return nil
}
