// Package ipmatch implements the IP matcher: exact and CIDR lookups against
// a registry index, with a per-index CIDR cache refreshed on a timer and on
// index swap.
package ipmatch

import (
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/riskcore/riskcored/internal/metrics"
	"github.com/riskcore/riskcored/internal/registry"
)

const cidrCacheTTL = 5 * time.Minute

type cidrEntry struct {
	base uint32
	mask uint32
}

// Matcher caches parsed CIDR entries per index name, invalidated by the
// registry's swap generation counter and by a time-based TTL, whichever
// comes first.
type Matcher struct {
	reg *registry.Registry
	log *slog.Logger

	mu    sync.Mutex
	cache map[string]cidrCacheEntry
}

type cidrCacheEntry struct {
	entries    []cidrEntry
	generation uint64
	builtAt    time.Time
}

// New returns a Matcher backed by reg.
func New(reg *registry.Registry) *Matcher {
	return &Matcher{
		reg:   reg,
		log:   slog.Default(),
		cache: make(map[string]cidrCacheEntry),
	}
}

// Matches reports whether ipString, a syntactically valid dotted-quad
// IPv4 address, is present in the named index either as an exact entry or
// inside one of its CIDR entries. Any other shape of input returns false
// and logs at warn level.
func (m *Matcher) Matches(indexName, ipString string) bool {
	start := time.Now()
	matched := m.matches(indexName, ipString)
	result := "miss"
	if matched {
		result = "hit"
	}
	metrics.MatchDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())
	return matched
}

func (m *Matcher) matches(indexName, ipString string) bool {
	ip, ok := parseDottedQuad(ipString)
	if !ok {
		m.log.Warn("ipmatch: rejected non dotted-quad input", "index", indexName, "input", ipString)
		return false
	}

	if m.reg.Lookup(indexName, ipString) {
		return true
	}

	for _, e := range m.cidrEntries(indexName) {
		if ip&e.mask == e.base&e.mask {
			return true
		}
	}
	return false
}

func (m *Matcher) cidrEntries(indexName string) []cidrEntry {
	gen := m.reg.Generation()

	m.mu.Lock()
	cached, ok := m.cache[indexName]
	m.mu.Unlock()
	if ok && cached.generation == gen && time.Since(cached.builtAt) < cidrCacheTTL {
		return cached.entries
	}

	entries, err := m.reg.Scan(indexName)
	if err != nil {
		return nil
	}

	var parsed []cidrEntry
	for _, raw := range entries {
		if !strings.Contains(raw, "/") {
			continue
		}
		e, ok := parseCIDR(raw)
		if !ok {
			continue
		}
		parsed = append(parsed, e)
	}

	m.mu.Lock()
	m.cache[indexName] = cidrCacheEntry{entries: parsed, generation: gen, builtAt: time.Now()}
	m.mu.Unlock()
	return parsed
}

// parseDottedQuad validates strict dotted-quad IPv4 syntax: exactly four
// decimal octets 0-255, no leading '+', no extra dots, no leading zeros
// beyond a bare "0". net.ParseIP alone is too permissive (it accepts
// embedded IPv4-in-IPv6 and other shapes), so the grammar is enforced by
// hand.
func parseDottedQuad(s string) (uint32, bool) {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return 0, false
	}
	var out uint32
	for _, p := range parts {
		if p == "" || len(p) > 3 {
			return 0, false
		}
		if p[0] == '+' {
			return 0, false
		}
		if len(p) > 1 && p[0] == '0' {
			return 0, false
		}
		for _, c := range p {
			if c < '0' || c > '9' {
				return 0, false
			}
		}
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > 255 {
			return 0, false
		}
		out = out<<8 | uint32(n)
	}
	return out, true
}

func parseCIDR(s string) (cidrEntry, bool) {
	slash := strings.IndexByte(s, '/')
	if slash < 0 {
		return cidrEntry{}, false
	}
	baseStr, prefixStr := s[:slash], s[slash+1:]

	base, ok := parseDottedQuad(baseStr)
	if !ok {
		return cidrEntry{}, false
	}
	prefix, err := strconv.Atoi(prefixStr)
	if err != nil || prefix < 0 || prefix > 32 {
		return cidrEntry{}, false
	}

	var mask uint32
	if prefix > 0 {
		mask = ^uint32(0) << (32 - prefix)
	}
	return cidrEntry{base: base, mask: mask}, true
}
