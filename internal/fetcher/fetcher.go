// Package fetcher implements the feed fetcher: bounded-concurrency download
// of every catalog category's feed URL into a snapshot directory, writing
// each file atomically and only on HTTP 200.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/riskcore/riskcored/internal/category"
	"github.com/riskcore/riskcored/internal/metrics"
)

// maxInFlight is the maximum number of concurrent category downloads.
const maxInFlight = 5

// perRequestDeadline bounds a single category's download, independent of
// any deadline on the context FetchAll is called with.
const perRequestDeadline = 10 * time.Minute

// ErrDownloadFailed marks a batch where at least one category did not yield
// HTTP 200 within its deadline. The batch's directory must not be promoted
// to a snapshot.
var ErrDownloadFailed = errors.New("download_failed")

// Fetcher downloads catalog feeds to a snapshot directory.
type Fetcher struct {
	client *http.Client
	pool   *workerPool
}

// New returns a Fetcher. The worker pool is sized to maxInFlight regardless
// of GOMAXPROCS: fetch concurrency is bounded by politeness to upstream
// feed hosts, not by local CPU count.
func New() *Fetcher {
	return &Fetcher{
		client: &http.Client{},
		pool:   newWorkerPool(maxInFlight, maxInFlight*4),
	}
}

// Close releases the fetcher's worker pool.
func (f *Fetcher) Close() {
	f.pool.Close()
}

// Result is one category's download outcome.
type Result struct {
	Category string
	Err      error
}

// FetchAll downloads every category's feed URL into dir, one file per
// category named "<category>.txt", writing only on HTTP 200. It returns nil
// only if every category succeeded; otherwise it returns an error
// summarizing every category that failed, and callers must not promote dir
// to a snapshot.
func (f *Fetcher) FetchAll(ctx context.Context, dir string, categories []category.Category) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("fetcher: creating snapshot dir: %w", err)
	}

	var (
		mu      sync.Mutex
		results []Result
		wg      sync.WaitGroup
	)

	for _, c := range categories {
		c := c
		wg.Add(1)
		job := poolJob(func(jobCtx context.Context) error {
			return f.fetchOne(jobCtx, dir, c)
		})

		// Submit blocks the calling goroutine until a worker slot frees up
		// and the job runs, which is exactly the bounded-concurrency
		// behavior fetch_all requires; the per-category deadline is
		// attached to the job's own context, not this one.
		go func() {
			defer wg.Done()
			err := f.pool.Submit(ctx, job)
			mu.Lock()
			results = append(results, Result{Category: c.Name, Err: err})
			mu.Unlock()
		}()
	}

	wg.Wait()

	var failed []string
	for _, r := range results {
		if r.Err != nil {
			failed = append(failed, fmt.Sprintf("%s: %v", r.Category, r.Err))
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("%w: %d/%d categories failed: %v", ErrDownloadFailed, len(failed), len(categories), failed)
	}
	return nil
}

func (f *Fetcher) fetchOne(ctx context.Context, dir string, c category.Category) error {
	err := f.fetchOneImpl(ctx, dir, c)
	outcome := "ok"
	if err != nil {
		outcome = "failed"
	}
	metrics.FetchTotal.WithLabelValues(c.Name, outcome).Inc()
	return err
}

func (f *Fetcher) fetchOneImpl(ctx context.Context, dir string, c category.Category) error {
	reqCtx, cancel := context.WithTimeout(ctx, perRequestDeadline)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.URL, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("requesting %s: %w", c.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, c.URL)
	}

	path := filepath.Join(dir, c.Name+".txt")
	tmp := path + ".tmp"

	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("creating %s: %w", tmp, err)
	}

	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(tmp)
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("closing %s: %w", path, err)
	}

	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("finalizing %s: %w", path, err)
	}
	return nil
}
