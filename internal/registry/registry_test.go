package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistry_SwapAndLookup(t *testing.T) {
	r := New()
	assert.False(t, r.Exists("malicious_ip"))

	idx := FromSet(map[string]bool{"1.2.3.4": true})
	r.Swap("malicious_ip", idx)

	assert.True(t, r.Exists("malicious_ip"))
	assert.True(t, r.Lookup("malicious_ip", "1.2.3.4"))
	assert.False(t, r.Lookup("malicious_ip", "5.6.7.8"))
	assert.False(t, r.Lookup("no_such_category", "1.2.3.4"))
}

func TestRegistry_SwapReplacesOldIndexForNewReaders(t *testing.T) {
	r := New()
	r.Swap("tor_network_ip", FromSet(map[string]bool{"9.9.9.9": true}))
	assert.True(t, r.Lookup("tor_network_ip", "9.9.9.9"))

	r.Swap("tor_network_ip", FromSet(map[string]bool{"8.8.8.8": true}))
	assert.False(t, r.Lookup("tor_network_ip", "9.9.9.9"))
	assert.True(t, r.Lookup("tor_network_ip", "8.8.8.8"))
}

func TestRegistry_GenerationAdvancesOnSwapDeleteRename(t *testing.T) {
	r := New()
	g0 := r.Generation()

	r.Swap("vpn_ip", NewIndex())
	g1 := r.Generation()
	assert.Greater(t, g1, g0)

	r.Rename("vpn_ip", "vpn_ip_v2")
	g2 := r.Generation()
	assert.Greater(t, g2, g1)
	assert.False(t, r.Exists("vpn_ip"))
	assert.True(t, r.Exists("vpn_ip_v2"))

	r.Delete("vpn_ip_v2")
	g3 := r.Generation()
	assert.Greater(t, g3, g2)
	assert.False(t, r.Exists("vpn_ip_v2"))
}

func TestRegistry_SizeAndScanErrorOnMissingName(t *testing.T) {
	r := New()
	_, err := r.Size("missing")
	assert.Error(t, err)
	_, err = r.Scan("missing")
	assert.Error(t, err)

	r.Swap("datacenter_ip", FromSet(map[string]bool{"1.1.1.1": true, "2.2.2.2": true}))
	n, err := r.Size("datacenter_ip")
	assert.NoError(t, err)
	assert.Equal(t, 2, n)

	entries, err := r.Scan("datacenter_ip")
	assert.NoError(t, err)
	assert.ElementsMatch(t, []string{"1.1.1.1", "2.2.2.2"}, entries)
}

func TestRegistry_CreateIsNoOpWhenIndexExists(t *testing.T) {
	r := New()
	first := r.Create("malicious_ip")
	first.Insert("1.2.3.4")

	second := r.Create("malicious_ip")
	assert.Same(t, first, second)
	assert.True(t, r.Lookup("malicious_ip", "1.2.3.4"))
}

func TestRegistry_RenameNoOpWhenSourceMissing(t *testing.T) {
	r := New()
	g0 := r.Generation()
	r.Rename("nope", "also_nope")
	assert.Equal(t, g0, r.Generation())
	assert.False(t, r.Exists("also_nope"))
}
