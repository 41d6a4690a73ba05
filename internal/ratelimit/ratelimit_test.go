package ratelimit

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllow_BurstThenThrottled(t *testing.T) {
	cl := New(Config{RequestsPerSecond: 1, BurstSize: 2, CleanupInterval: time.Hour})
	ip := net.ParseIP("203.0.113.5")

	assert.True(t, cl.Allow(ip))
	assert.True(t, cl.Allow(ip))
	assert.False(t, cl.Allow(ip))
}

func TestAllow_SeparateClientsTrackedIndependently(t *testing.T) {
	cl := New(Config{RequestsPerSecond: 1, BurstSize: 1, CleanupInterval: time.Hour})
	a := net.ParseIP("203.0.113.5")
	b := net.ParseIP("203.0.113.6")

	assert.True(t, cl.Allow(a))
	assert.False(t, cl.Allow(a))
	assert.True(t, cl.Allow(b))
}

func TestAllowString_RejectsUnparseableInput(t *testing.T) {
	cl := New(DefaultConfig())
	assert.False(t, cl.AllowString("not-an-ip"))
}

func TestAddExempt_CIDRBypassesThrottling(t *testing.T) {
	cl := New(Config{RequestsPerSecond: 1, BurstSize: 1, CleanupInterval: time.Hour})
	require.NoError(t, cl.AddExempt("10.0.0.0/8"))
	ip := net.ParseIP("10.1.2.3")

	for i := 0; i < 5; i++ {
		assert.True(t, cl.Allow(ip))
	}
}

func TestAddExempt_BareIPIsTreatedAsSingleton(t *testing.T) {
	cl := New(Config{RequestsPerSecond: 1, BurstSize: 1, CleanupInterval: time.Hour})
	require.NoError(t, cl.AddExempt("203.0.113.9"))
	assert.True(t, cl.Allow(net.ParseIP("203.0.113.9")))
	assert.True(t, cl.Allow(net.ParseIP("203.0.113.10")))
	assert.False(t, cl.Allow(net.ParseIP("203.0.113.10")))
}

func TestStats_ReportsTrackedAndExemptCounts(t *testing.T) {
	cl := New(DefaultConfig())
	require.NoError(t, cl.AddExempt("10.0.0.0/8"))
	cl.Allow(net.ParseIP("203.0.113.5"))
	cl.Allow(net.ParseIP("203.0.113.6"))

	st := cl.Stats()
	assert.Equal(t, 2, st.TrackedClients)
	assert.Equal(t, 1, st.ExemptNets)
}

func TestCleanup_ClearsTrackedLimitersAfterInterval(t *testing.T) {
	cl := New(Config{RequestsPerSecond: 1, BurstSize: 1, CleanupInterval: time.Millisecond})
	ip := net.ParseIP("203.0.113.5")
	cl.Allow(ip)
	time.Sleep(5 * time.Millisecond)
	assert.True(t, cl.Allow(ip))
}
