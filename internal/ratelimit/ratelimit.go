// Package ratelimit provides per-client request throttling for the admin
// HTTP surface: one token bucket per caller IP, with an exempt-network
// list for trusted sources.
package ratelimit

import (
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ClientLimiter throttles requests per source IP using a token bucket per
// client, with an exempt list for trusted networks (internal monitoring,
// load balancer health checks).
type ClientLimiter struct {
	mu              sync.RWMutex
	limitersByIP    map[string]*rate.Limiter
	queriesPerSec   rate.Limit
	burstSize       int
	cleanupInterval time.Duration
	lastCleanup     time.Time
	exemptNets      []*net.IPNet
}

// Config holds configuration for a ClientLimiter.
type Config struct {
	RequestsPerSecond float64       // Maximum requests per second per client
	BurstSize         int           // Maximum burst size
	CleanupInterval   time.Duration // How often to clear stale limiters
}

// DefaultConfig returns sensible defaults for the /classify endpoint.
func DefaultConfig() Config {
	return Config{
		RequestsPerSecond: 50,
		BurstSize:         100,
		CleanupInterval:   5 * time.Minute,
	}
}

// New creates a ClientLimiter with the given configuration.
func New(cfg Config) *ClientLimiter {
	return &ClientLimiter{
		limitersByIP:    make(map[string]*rate.Limiter),
		queriesPerSec:   rate.Limit(cfg.RequestsPerSecond),
		burstSize:       cfg.BurstSize,
		cleanupInterval: cfg.CleanupInterval,
		lastCleanup:     time.Now(),
		exemptNets:      make([]*net.IPNet, 0),
	}
}

// Allow reports whether a request from ip should be let through.
func (cl *ClientLimiter) Allow(ip net.IP) bool {
	if cl.isExempt(ip) {
		return true
	}

	ipStr := ip.String()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	if time.Since(cl.lastCleanup) > cl.cleanupInterval {
		cl.cleanup()
	}

	limiter, ok := cl.limitersByIP[ipStr]
	if !ok {
		limiter = rate.NewLimiter(cl.queriesPerSec, cl.burstSize)
		cl.limitersByIP[ipStr] = limiter
	}

	return limiter.Allow()
}

// AllowString is a convenience wrapper that parses an IP string, as produced
// by net/http's RemoteAddr after stripping the port.
func (cl *ClientLimiter) AllowString(ipStr string) bool {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	return cl.Allow(ip)
}

// AddExempt adds a CIDR or bare IP that bypasses throttling entirely.
func (cl *ClientLimiter) AddExempt(cidr string) error {
	_, ipnet, err := net.ParseCIDR(cidr)
	if err != nil {
		ip := net.ParseIP(cidr)
		if ip == nil {
			return err
		}
		if ip.To4() != nil {
			ipnet = &net.IPNet{IP: ip, Mask: net.CIDRMask(32, 32)}
		} else {
			ipnet = &net.IPNet{IP: ip, Mask: net.CIDRMask(128, 128)}
		}
	}
	cl.mu.Lock()
	defer cl.mu.Unlock()
	cl.exemptNets = append(cl.exemptNets, ipnet)
	return nil
}

func (cl *ClientLimiter) isExempt(ip net.IP) bool {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	for _, exempt := range cl.exemptNets {
		if exempt.Contains(ip) {
			return true
		}
	}
	return false
}

// cleanup drops every tracked limiter. Simple over precise: a client that
// reconnects after the cleanup interval just gets a fresh bucket.
func (cl *ClientLimiter) cleanup() {
	cl.limitersByIP = make(map[string]*rate.Limiter)
	cl.lastCleanup = time.Now()
}

// Stats reports current tracking counts.
func (cl *ClientLimiter) Stats() Stats {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return Stats{
		TrackedClients: len(cl.limitersByIP),
		ExemptNets:     len(cl.exemptNets),
	}
}

// Stats holds point-in-time statistics about a ClientLimiter.
type Stats struct {
	TrackedClients int
	ExemptNets     int
}
