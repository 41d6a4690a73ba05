// Package registry implements the index registry: the set of named, live,
// readable indexes classification reads from, with atomic staging-to-live
// swap.
package registry

import (
	"sync"

	"github.com/dchest/siphash"
)

// shardCount is fixed and small: index population tops out in the low
// millions of lines for the largest feeds.
const shardCount = 16

// siphash keys. Fixed per process: the only property needed is that an
// external caller cannot predict which shard an entry string lands in
// (the index is filled from attacker-influenced strings - emails, IPs -
// so a caller who could force collisions into one shard could degrade a
// lookup from O(1) to O(n) under contention).
var shardKey0, shardKey1 uint64

func init() {
	// Fixed, not random: a single process's shard assignment only needs to
	// be unpredictable to a remote caller, not to reproduce differently
	// across restarts, and fixed keys keep behavior deterministic for tests.
	shardKey0 = 0x9ae16a3b2f90404f
	shardKey1 = 0xc2b2ae3d27d4eb4f
}

type shard struct {
	mu      sync.RWMutex
	entries map[string]struct{}
}

// Index is a named, keyed set of entries. A feed-backed Index is never
// mutated in place after it is handed to the registry as "live" - refreshes
// build a new Index and the registry swaps the pointer (see Registry.Swap).
// The MX cache index is the exception: it is filled in place through
// Registry.Insert, with each shard's lock guarding concurrent readers.
type Index struct {
	shards [shardCount]*shard
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	idx := &Index{}
	for i := range idx.shards {
		idx.shards[i] = &shard{entries: make(map[string]struct{})}
	}
	return idx
}

func (idx *Index) shardFor(key string) *shard {
	h := siphash.Hash(shardKey0, shardKey1, []byte(key))
	return idx.shards[h%uint64(shardCount)]
}

// Insert adds key to the index. Presence is what matters; inserting an
// existing key is a no-op.
func (idx *Index) Insert(key string) {
	s := idx.shardFor(key)
	s.mu.Lock()
	s.entries[key] = struct{}{}
	s.mu.Unlock()
}

// Lookup reports whether key is present in the index.
func (idx *Index) Lookup(key string) bool {
	s := idx.shardFor(key)
	s.mu.RLock()
	_, ok := s.entries[key]
	s.mu.RUnlock()
	return ok
}

// Size returns the total number of entries across all shards.
func (idx *Index) Size() int {
	n := 0
	for _, s := range idx.shards {
		s.mu.RLock()
		n += len(s.entries)
		s.mu.RUnlock()
	}
	return n
}

// Scan returns every entry in the index. Used by the IP matcher to find
// CIDR-shaped keys and by tests; not meant for hot paths.
func (idx *Index) Scan() []string {
	out := make([]string, 0, idx.Size())
	for _, s := range idx.shards {
		s.mu.RLock()
		for k := range s.entries {
			out = append(out, k)
		}
		s.mu.RUnlock()
	}
	return out
}

// FromSet builds an Index from a pre-computed entry set, as produced by
// blocklist.ParseReader.
func FromSet(entries map[string]bool) *Index {
	idx := NewIndex()
	for k := range entries {
		idx.Insert(k)
	}
	return idx
}
