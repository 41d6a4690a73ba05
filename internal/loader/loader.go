// Package loader implements the blocklist loader: the refresh lifecycle
// supervisor that owns boot, periodic refresh, retry, and status reporting
// for the index registry.
package loader

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/riskcore/riskcored/internal/blocklist"
	"github.com/riskcore/riskcored/internal/category"
	"github.com/riskcore/riskcored/internal/eventbus"
	"github.com/riskcore/riskcored/internal/fetcher"
	"github.com/riskcore/riskcored/internal/metrics"
	"github.com/riskcore/riskcored/internal/registry"
)

const (
	refreshInterval = 24 * time.Hour
	retryInterval   = 1 * time.Hour
)

// Status is the read-only snapshot returned by Status().
type Status struct {
	LastUpdate       time.Time
	LastStatus       string
	UpdateCount      uint64
	NextUpdateAt     time.Time
	PerCategorySizes map[string]int
}

// Loader owns the refresh lifecycle for a Registry rooted at a snapshot
// base directory.
type Loader struct {
	reg      *registry.Registry
	fetch    *fetcher.Fetcher
	base     string
	log      *slog.Logger
	bus      *eventbus.Bus
	urlOverr map[string]string

	// inFlight is a non-blocking semaphore: a second concurrent refresh
	// request observes it full and coalesces into the one already running
	// instead of starting a duplicate.
	inFlight chan struct{}

	mu      sync.Mutex
	status  Status
	clock   func() time.Time
	timerMu sync.Mutex
	timer   *time.Timer
}

// Option configures a Loader at construction.
type Option func(*Loader)

// WithURLOverrides sets per-category feed URL overrides.
func WithURLOverrides(m map[string]string) Option {
	return func(l *Loader) { l.urlOverr = m }
}

// WithLogger overrides the default logger.
func WithLogger(log *slog.Logger) Option {
	return func(l *Loader) { l.log = log }
}

// New returns a Loader for the given registry, snapshot base directory, and
// event bus (may be nil, in which case lifecycle events are not published).
func New(reg *registry.Registry, fetch *fetcher.Fetcher, base string, bus *eventbus.Bus, opts ...Option) *Loader {
	l := &Loader{
		reg:      reg,
		fetch:    fetch,
		base:     base,
		bus:      bus,
		log:      slog.Default(),
		inFlight: make(chan struct{}, 1),
		clock:    time.Now,
		status:   Status{LastStatus: "pending", PerCategorySizes: map[string]int{}},
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Boot runs the boot sequence: create empty live indexes for every catalog
// category plus the MX cache, attempt to load the most recent on-disk
// snapshot, and schedule the next periodic refresh. If no snapshot loads
// cleanly, Boot runs an immediate refresh itself and returns only once that
// refresh has finished (successfully or not); the refresh arms the next
// timer.
func (l *Loader) Boot(ctx context.Context) {
	cats := category.Catalog(l.urlOverr)
	for _, c := range cats {
		l.reg.Create(c.Name)
	}
	l.reg.Create(category.MXCacheIndex)

	if err := l.loadLatestSnapshot(cats); err != nil {
		// The immediate fetch arms its own follow-up timer: 24h on success,
		// the 1h retry on failure. Arming the periodic timer here too would
		// clobber a pending retry with the longer interval.
		l.log.Info("no usable snapshot at boot, running immediate fetch", "error", err)
		l.RequestRefresh(ctx)
		return
	}

	l.setStatus("ok", nil)
	l.publish("boot_loaded_snapshot", nil)
	l.scheduleNext(refreshInterval)
}

// loadLatestSnapshot lists base/, takes the lexicographically greatest
// entry, and loads every category's file from it into staging, then swaps.
func (l *Loader) loadLatestSnapshot(cats []category.Category) error {
	dirs, err := listSnapshotDirs(l.base)
	if err != nil || len(dirs) == 0 {
		return fmt.Errorf("no snapshot directories under %s", l.base)
	}
	latest := dirs[len(dirs)-1]
	dirPath := filepath.Join(l.base, latest)

	staged := make(map[string]*registry.Index, len(cats))
	for _, c := range cats {
		idx, err := buildIndexFromFile(filepath.Join(dirPath, c.Name+".txt"), c.Kind)
		if err != nil {
			return fmt.Errorf("loading %s from snapshot %s: %w", c.Name, latest, err)
		}
		staged[c.Name] = idx
	}

	sizes := make(map[string]int, len(staged))
	for name, idx := range staged {
		l.reg.Swap(name, idx)
		sizes[name] = idx.Size()
	}
	l.mu.Lock()
	l.status.LastUpdate = l.clock()
	l.status.PerCategorySizes = sizes
	l.mu.Unlock()
	metrics.SetCategorySizes(sizes)
	return nil
}

func listSnapshotDirs(base string) ([]string, error) {
	entries, err := os.ReadDir(base)
	if err != nil {
		return nil, err
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e.Name())
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}

func buildIndexFromFile(path string, kind category.Kind) (*registry.Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	entries, err := blocklist.ParseReader(f, kind)
	if err != nil {
		return nil, err
	}
	return registry.FromSet(entries), nil
}

// RequestRefresh runs the refresh protocol. A refresh already in flight
// absorbs this request instead of a second refresh running concurrently.
func (l *Loader) RequestRefresh(ctx context.Context) {
	select {
	case l.inFlight <- struct{}{}:
	default:
		l.log.Debug("refresh already in flight, coalescing request")
		return
	}
	defer func() { <-l.inFlight }()

	l.runRefresh(ctx)
}

func (l *Loader) runRefresh(ctx context.Context) {
	stamp := l.clock().UTC().Format("20060102")
	dir := filepath.Join(l.base, stamp)
	cats := category.Catalog(l.urlOverr)

	if err := l.fetch.FetchAll(ctx, dir, cats); err != nil {
		l.log.Error("feed download failed", "error", err)
		l.setStatus("error(download_failed)", err)
		l.publish("refresh_failed", err)
		metrics.RefreshTotal.WithLabelValues("download_failed").Inc()
		l.scheduleNext(retryInterval)
		return
	}

	staged := make(map[string]*registry.Index, len(cats))
	for _, c := range cats {
		idx, err := buildIndexFromFile(filepath.Join(dir, c.Name+".txt"), c.Kind)
		if err != nil {
			l.log.Error("parsing downloaded feed failed", "category", c.Name, "error", err)
			l.setStatus("error(load_failed)", err)
			l.publish("refresh_failed", err)
			metrics.RefreshTotal.WithLabelValues("load_failed").Inc()
			l.scheduleNext(retryInterval)
			return
		}
		staged[c.Name] = idx
	}

	sizes := make(map[string]int, len(staged))
	for name, idx := range staged {
		l.reg.Swap(name, idx)
		sizes[name] = idx.Size()
	}

	l.mu.Lock()
	l.status.LastUpdate = l.clock()
	l.status.UpdateCount++
	l.status.PerCategorySizes = sizes
	l.mu.Unlock()
	l.setStatus("ok", nil)
	l.publish("refresh_succeeded", sizes)
	metrics.RefreshTotal.WithLabelValues("ok").Inc()
	metrics.SetCategorySizes(sizes)
	l.scheduleNext(refreshInterval)
}

func (l *Loader) setStatus(status string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.status.LastStatus = status
	_ = err
}

func (l *Loader) scheduleNext(d time.Duration) {
	l.mu.Lock()
	l.status.NextUpdateAt = l.clock().Add(d)
	l.mu.Unlock()

	l.timerMu.Lock()
	defer l.timerMu.Unlock()
	if l.timer != nil {
		l.timer.Stop()
	}
	l.timer = time.AfterFunc(d, func() {
		l.RequestRefresh(context.Background())
	})
}

func (l *Loader) publish(event string, data interface{}) {
	if l.bus == nil {
		return
	}
	l.bus.Publish(context.Background(), eventbus.TopicLoader, map[string]interface{}{
		"event": event,
		"data":  data,
	})
}

// Status returns a read-only snapshot of the loader's current state.
// Cheap, no I/O.
func (l *Loader) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	sizes := make(map[string]int, len(l.status.PerCategorySizes))
	for k, v := range l.status.PerCategorySizes {
		sizes[k] = v
	}
	return Status{
		LastUpdate:       l.status.LastUpdate,
		LastStatus:       l.status.LastStatus,
		UpdateCount:      l.status.UpdateCount,
		NextUpdateAt:     l.status.NextUpdateAt,
		PerCategorySizes: sizes,
	}
}

// Stop cancels any pending scheduled refresh timer.
func (l *Loader) Stop() {
	l.timerMu.Lock()
	defer l.timerMu.Unlock()
	if l.timer != nil {
		l.timer.Stop()
	}
}
