package registry

import (
	"fmt"
	"sync"
)

// Registry is the set of named, live indexes classification reads from.
// A named index is replaced wholesale by Swap: readers either see the old
// Index or the new one, never a partially-populated one, because an Index
// is only ever built once (in the loader, off to the side) and handed in
// as a finished value.
type Registry struct {
	mu   sync.RWMutex
	live map[string]*Index

	// generation increments on every Swap. Consumers that cache derived
	// state keyed off index contents (the IP matcher's CIDR cache) use it
	// to know when their cache is stale, without the registry needing to
	// know anything about what they cached.
	generation uint64
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{live: make(map[string]*Index)}
}

// Swap installs idx as the live index for name, replacing whatever was
// there before, and advances the generation counter. The previous Index
// (if any) is left untouched and is safe for any in-flight reader still
// holding it.
func (r *Registry) Swap(name string, idx *Index) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.live[name] = idx
	r.generation++
}

// Create installs a fresh, empty Index at name and returns it. Creating a
// name that already has a live index is a no-op returning the existing one,
// so two racing boot paths cannot clobber an index either of them already
// populated. Used at boot to give a category a live index before any
// snapshot has ever loaded for it; a refresh instead builds a replacement
// Index off to the side and installs it with Swap only once it is fully
// populated (see internal/loader).
func (r *Registry) Create(name string) *Index {
	r.mu.Lock()
	defer r.mu.Unlock()
	if idx, ok := r.live[name]; ok {
		return idx
	}
	idx := NewIndex()
	r.live[name] = idx
	r.generation++
	return idx
}

// Delete removes name from the registry entirely.
func (r *Registry) Delete(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.live, name)
	r.generation++
}

// Rename moves the index at oldName to newName. If oldName does not exist,
// Rename is a no-op. Any existing index at newName is discarded.
func (r *Registry) Rename(oldName, newName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx, ok := r.live[oldName]
	if !ok {
		return
	}
	delete(r.live, oldName)
	r.live[newName] = idx
	r.generation++
}

// Exists reports whether name currently has a live index.
func (r *Registry) Exists(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.live[name]
	return ok
}

// Get returns the live index for name, or nil if it has none.
func (r *Registry) Get(name string) *Index {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.live[name]
}

// Lookup reports whether key is present in the named index. A name with no
// live index reports false rather than erroring: a category whose feed has
// never successfully loaded contributes nothing to classification instead
// of blocking it.
func (r *Registry) Lookup(name, key string) bool {
	idx := r.Get(name)
	if idx == nil {
		return false
	}
	return idx.Lookup(key)
}

// Insert adds key to the named index in place. Used for insert-only caches
// (the MX cache) where entries accumulate between swaps rather than being
// replaced wholesale. A name with no live index is a no-op: there is
// nothing to insert into.
func (r *Registry) Insert(name, key string) {
	idx := r.Get(name)
	if idx == nil {
		return
	}
	idx.Insert(key)
}

// Size returns the entry count of the named index, and an error if the
// name has no live index.
func (r *Registry) Size(name string) (int, error) {
	idx := r.Get(name)
	if idx == nil {
		return 0, fmt.Errorf("registry: no live index named %q", name)
	}
	return idx.Size(), nil
}

// Scan returns every entry in the named index, and an error if the name
// has no live index.
func (r *Registry) Scan(name string) ([]string, error) {
	idx := r.Get(name)
	if idx == nil {
		return nil, fmt.Errorf("registry: no live index named %q", name)
	}
	return idx.Scan(), nil
}

// Names returns the names that currently have a live index, in no
// particular order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.live))
	for name := range r.live {
		out = append(out, name)
	}
	return out
}

// Generation returns the current swap generation. Callers that cache
// derived state (e.g. parsed CIDR blocks) re-derive it whenever this value
// changes from what they last observed.
func (r *Registry) Generation() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.generation
}
