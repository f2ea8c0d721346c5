package override

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/miekg/dns"

	"dnsrelay/log"
)

func TestMain(m *testing.M) {
	_ = log.Init(log.Config{STDOUT: true})
	os.Exit(m.Run())
}

func load(t *testing.T, content string) *Table {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hosts")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	table, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return table
}

func TestLoad(t *testing.T) {
	table := load(t, `
# local overrides
10.0.0.5 foo.local
192.168.1.7   bar.local baz.local

not-an-address broken.local
10.0.0.9
fd00::1 six.local
`)

	tests := []struct {
		name  string
		query string
		want  string
		found bool
	}{
		{
			name:  "plain",
			query: "foo.local.",
			want:  "10.0.0.5",
			found: true,
		},
		{
			name:  "case insensitive",
			query: "FOO.Local.",
			want:  "10.0.0.5",
			found: true,
		},
		{
			name:  "without trailing dot",
			query: "foo.local",
			want:  "10.0.0.5",
			found: true,
		},
		{
			name:  "second hostname on line",
			query: "baz.local.",
			want:  "192.168.1.7",
			found: true,
		},
		{
			name:  "ipv6 entry",
			query: "six.local.",
			want:  "fd00::1",
			found: true,
		},
		{
			name:  "malformed line skipped",
			query: "broken.local.",
			found: false,
		},
		{
			name:  "unknown",
			query: "nope.local.",
			found: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ip, ok := table.Lookup(tt.query)
			if ok != tt.found {
				t.Fatalf("Lookup(%q) found = %t, want %t", tt.query, ok, tt.found)
			}
			if ok && ip.String() != tt.want {
				t.Errorf("Lookup(%q) = %s, want %s", tt.query, ip, tt.want)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Error("Load() expected error for missing file")
	}
}

func TestAnswer(t *testing.T) {
	table := load(t, "10.0.0.5 foo.local\nfd00::1 six.local\n")

	tests := []struct {
		name  string
		q     dns.Question
		want  string
		found bool
	}{
		{
			name:  "A hit",
			q:     dns.Question{Name: "foo.local.", Qtype: dns.TypeA, Qclass: dns.ClassINET},
			want:  "10.0.0.5",
			found: true,
		},
		{
			name:  "AAAA hit",
			q:     dns.Question{Name: "six.local.", Qtype: dns.TypeAAAA, Qclass: dns.ClassINET},
			want:  "fd00::1",
			found: true,
		},
		{
			name:  "family mismatch falls through",
			q:     dns.Question{Name: "foo.local.", Qtype: dns.TypeAAAA, Qclass: dns.ClassINET},
			found: false,
		},
		{
			name:  "non-address type falls through",
			q:     dns.Question{Name: "foo.local.", Qtype: dns.TypeMX, Qclass: dns.ClassINET},
			found: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := table.Answer(tt.q)
			if (rr != nil) != tt.found {
				t.Fatalf("Answer() = %v, found want %t", rr, tt.found)
			}
			if rr == nil {
				return
			}
			if rr.Header().Ttl != TTL {
				t.Errorf("Answer() ttl = %d, want %d", rr.Header().Ttl, TTL)
			}
			var got string
			switch rr := rr.(type) {
			case *dns.A:
				got = rr.A.String()
			case *dns.AAAA:
				got = rr.AAAA.String()
			}
			if got != tt.want {
				t.Errorf("Answer() = %s, want %s", got, tt.want)
			}
		})
	}
}
