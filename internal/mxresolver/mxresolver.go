// Package mxresolver implements the MX resolver: a process-wide proxy over
// a fixed pool of public DNS resolvers that caps query rate per upstream,
// round-robins load, and answers MX lookups with a 2-second deadline.
package mxresolver

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/miekg/dns"
	"github.com/riskcore/riskcored/internal/metrics"
	"github.com/riskcore/riskcored/internal/random"
)

// ErrRateLimited is returned when every resolver in the pool is out of
// tokens for the current second.
var ErrRateLimited = errors.New("mxresolver: rate_limited")

// DefaultBucketCapacity is the per-resolver token bucket size, refilled to
// full once per second.
const DefaultBucketCapacity = 100

const queryTimeout = 2 * time.Second

// Endpoint names one resolver in the pool.
type Endpoint struct {
	IP          string
	Port        int
	DisplayName string
}

// MXRecord is one answer from a lookup, sorted ascending by Priority.
type MXRecord struct {
	Priority uint16
	Host     string
}

type bucket struct {
	tokens        int32
	lastRefillSec int64
}

// Resolver round-robins across a fixed pool of DNS resolvers, rate-limiting
// each independently.
type Resolver struct {
	endpoints []Endpoint
	capacity  int32
	client    *dns.Client
	log       *slog.Logger

	// selectMu serializes the short critical section that picks a resolver
	// and debits its bucket. Everything after selection - the actual DNS
	// I/O - runs outside this lock.
	selectMu sync.Mutex
	buckets  []bucket
	cursor   int
}

// Option configures a Resolver at construction.
type Option func(*Resolver)

// WithBucketCapacity overrides the default per-resolver token bucket size.
func WithBucketCapacity(c int) Option {
	return func(r *Resolver) { r.capacity = int32(c) }
}

// WithLogger overrides the default logger.
func WithLogger(log *slog.Logger) Option {
	return func(r *Resolver) { r.log = log }
}

// New returns a Resolver over the given pool. Fewer than 3 endpoints is a
// configuration error: round-robin with rate limiting needs enough slots
// that one banned or exhausted upstream doesn't stall every lookup.
func New(endpoints []Endpoint, opts ...Option) (*Resolver, error) {
	if len(endpoints) < 3 {
		return nil, fmt.Errorf("mxresolver: pool must have at least 3 resolvers, got %d", len(endpoints))
	}
	r := &Resolver{
		endpoints: endpoints,
		capacity:  DefaultBucketCapacity,
		client:    &dns.Client{Timeout: queryTimeout},
		log:       slog.Default(),
		buckets:   make([]bucket, len(endpoints)),
	}
	for _, o := range opts {
		o(r)
	}
	now := time.Now().Unix()
	for i := range r.buckets {
		r.buckets[i] = bucket{tokens: r.capacity, lastRefillSec: now}
	}
	return r, nil
}

// selectResolver picks the next resolver with an available token, refilling
// buckets to full whenever the wall-clock second has advanced since their
// last refill. Returns the chosen endpoint's index, or -1 with
// ErrRateLimited if every resolver is exhausted this second.
func (r *Resolver) selectResolver() (int, error) {
	r.selectMu.Lock()
	defer r.selectMu.Unlock()

	now := time.Now().Unix()
	n := len(r.endpoints)
	for step := 0; step < n; step++ {
		i := (r.cursor + step) % n
		b := &r.buckets[i]
		if b.lastRefillSec != now {
			b.tokens = r.capacity
			b.lastRefillSec = now
		}
		if b.tokens > 0 {
			b.tokens--
			r.cursor = (i + 1) % n
			return i, nil
		}
	}
	return -1, ErrRateLimited
}

// LookupMX resolves the MX records for domain using exactly one resolver
// from the pool - never falling through to the system resolver - within a
// 2-second deadline. An empty answer set is a successful "no MX" result,
// not an error.
func (r *Resolver) LookupMX(ctx context.Context, domain string) ([]MXRecord, error) {
	records, outcome, err := r.lookupMX(ctx, domain)
	metrics.MXLookupsTotal.WithLabelValues(outcome).Inc()
	return records, err
}

func (r *Resolver) lookupMX(ctx context.Context, domain string) ([]MXRecord, string, error) {
	idx, err := r.selectResolver()
	if err != nil {
		return nil, "rate_limited", err
	}
	ep := r.endpoints[idx]

	fqdn := dns.Fqdn(strings.ToLower(domain))
	if _, ok := dns.IsDomainName(fqdn); !ok {
		r.log.Debug("mxresolver: malformed domain label, treating as no_mx", "domain", domain)
		return nil, "malformed_domain", fmt.Errorf("mxresolver: malformed domain %q", domain)
	}

	qname := apply0x20(fqdn)
	msg := new(dns.Msg)
	msg.SetQuestion(qname, dns.TypeMX)
	msg.Id = random.TransactionID()
	msg.RecursionDesired = true

	reqCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	nameserver := net.JoinHostPort(ep.IP, fmt.Sprintf("%d", ep.Port))
	resp, _, err := r.client.ExchangeContext(reqCtx, msg, nameserver)
	if err != nil {
		return nil, "lookup_failed", fmt.Errorf("mxresolver: exchange with %s (%s) failed: %w", ep.DisplayName, nameserver, err)
	}
	if resp == nil {
		return nil, "lookup_failed", fmt.Errorf("mxresolver: nil response from %s", ep.DisplayName)
	}
	if resp.Rcode != dns.RcodeSuccess {
		return nil, "lookup_failed", fmt.Errorf("mxresolver: %s returned rcode %s", ep.DisplayName, dns.RcodeToString[resp.Rcode])
	}

	var records []MXRecord
	for _, rr := range resp.Answer {
		mx, ok := rr.(*dns.MX)
		if !ok {
			continue
		}
		records = append(records, MXRecord{Priority: mx.Preference, Host: strings.TrimSuffix(mx.Mx, ".")})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Priority < records[j].Priority })
	if len(records) == 0 {
		return records, "empty", nil
	}
	return records, "ok", nil
}

// apply0x20 randomizes the case of letters in a DNS query name to harden
// against cache-poisoning and off-path spoofing attempts.
func apply0x20(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, c := range name {
		switch {
		case c >= 'a' && c <= 'z':
			if randomBool() {
				b.WriteRune(c - 32)
			} else {
				b.WriteRune(c)
			}
		case c >= 'A' && c <= 'Z':
			if randomBool() {
				b.WriteRune(c + 32)
			} else {
				b.WriteRune(c)
			}
		default:
			b.WriteRune(c)
		}
	}
	return b.String()
}

func randomBool() bool {
	n, err := rand.Int(rand.Reader, big.NewInt(2))
	if err != nil {
		return false
	}
	return n.Int64() == 1
}
