package ipmatch

import (
	"testing"

	"github.com/riskcore/riskcored/internal/registry"
	"github.com/stretchr/testify/assert"
)

func TestMatches_ExactEntry(t *testing.T) {
	reg := registry.New()
	reg.Swap("malicious_ip", registry.FromSet(map[string]bool{"1.2.3.4": true}))
	m := New(reg)

	assert.True(t, m.Matches("malicious_ip", "1.2.3.4"))
	assert.False(t, m.Matches("malicious_ip", "1.2.3.5"))
}

func TestMatches_CIDREntry(t *testing.T) {
	reg := registry.New()
	reg.Swap("vpn_ip", registry.FromSet(map[string]bool{"10.0.0.0/8": true}))
	m := New(reg)

	assert.True(t, m.Matches("vpn_ip", "10.1.2.3"))
	assert.False(t, m.Matches("vpn_ip", "11.1.2.3"))
}

func TestMatches_SlashZeroMatchesEverything(t *testing.T) {
	reg := registry.New()
	reg.Swap("datacenter_ip", registry.FromSet(map[string]bool{"0.0.0.0/0": true}))
	m := New(reg)

	assert.True(t, m.Matches("datacenter_ip", "8.8.8.8"))
	assert.True(t, m.Matches("datacenter_ip", "255.255.255.255"))
}

func TestMatches_Slash32IsSingleton(t *testing.T) {
	reg := registry.New()
	reg.Swap("recent_attacker_ip", registry.FromSet(map[string]bool{"5.5.5.5/32": true}))
	m := New(reg)

	assert.True(t, m.Matches("recent_attacker_ip", "5.5.5.5"))
	assert.False(t, m.Matches("recent_attacker_ip", "5.5.5.6"))
}

func TestMatches_RejectsMalformedInput(t *testing.T) {
	reg := registry.New()
	reg.Swap("malicious_ip", registry.FromSet(map[string]bool{"1.2.3.4": true}))
	m := New(reg)

	cases := []string{
		"1.2.3",
		"1.2.3.4.5",
		"+1.2.3.4",
		"1.2.3.256",
		"01.2.3.4",
		"not.an.ip.at.all",
		"",
	}
	for _, c := range cases {
		assert.False(t, m.Matches("malicious_ip", c), "expected rejection for %q", c)
	}
}

func TestMatches_MalformedCIDREntriesAreSkipped(t *testing.T) {
	reg := registry.New()
	reg.Swap("suspicious_ip", registry.FromSet(map[string]bool{
		"10.0.0.0/8":  true,
		"bad/entry":   true,
		"10.0.0.0/xx": true,
		"300.0.0.0/8": true,
	}))
	m := New(reg)

	assert.True(t, m.Matches("suspicious_ip", "10.5.5.5"))
	assert.False(t, m.Matches("suspicious_ip", "20.5.5.5"))
}

func TestMatches_CacheInvalidatesOnSwap(t *testing.T) {
	reg := registry.New()
	reg.Swap("old_attacker_ip", registry.FromSet(map[string]bool{"10.0.0.0/8": true}))
	m := New(reg)

	assert.True(t, m.Matches("old_attacker_ip", "10.1.1.1"))

	reg.Swap("old_attacker_ip", registry.FromSet(map[string]bool{"192.168.0.0/16": true}))
	assert.False(t, m.Matches("old_attacker_ip", "10.1.1.1"))
	assert.True(t, m.Matches("old_attacker_ip", "192.168.1.1"))
}

func TestMatches_UnknownIndexReturnsFalse(t *testing.T) {
	reg := registry.New()
	m := New(reg)
	assert.False(t, m.Matches("no_such_index", "1.2.3.4"))
}
