package loader

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/riskcore/riskcored/internal/category"
	"github.com/riskcore/riskcored/internal/fetcher"
	"github.com/riskcore/riskcored/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLoader(t *testing.T, base string, urlOverr map[string]string) (*Loader, *registry.Registry) {
	t.Helper()
	reg := registry.New()
	f := fetcher.New()
	t.Cleanup(f.Close)
	l := New(reg, f, base, nil, WithURLOverrides(urlOverr))
	return l, reg
}

func TestLoader_BootCreatesEmptyIndexesWhenNoSnapshot(t *testing.T) {
	base := t.TempDir()
	l, reg := newTestLoader(t, base, nil)
	l.Boot(context.Background())
	defer l.Stop()

	for _, name := range category.Names() {
		assert.True(t, reg.Exists(name), "expected live index for %s", name)
	}
	assert.True(t, reg.Exists(category.MXCacheIndex))
}

func TestLoader_RefreshSucceedsAndPopulatesIndexes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("1.2.3.4\n10.0.0.0/8\n"))
	}))
	defer srv.Close()

	overrides := map[string]string{}
	for _, name := range category.Names() {
		overrides[name] = srv.URL
	}

	base := t.TempDir()
	l, reg := newTestLoader(t, base, overrides)
	// Boot finds no snapshot on disk and runs the immediate fetch itself.
	l.Boot(context.Background())
	defer l.Stop()

	status := l.Status()
	assert.Equal(t, "ok", status.LastStatus)
	assert.Equal(t, uint64(1), status.UpdateCount)
	assert.True(t, reg.Lookup("malicious_ip", "1.2.3.4"))

	// A second explicit refresh advances the count again.
	l.RequestRefresh(context.Background())
	assert.Equal(t, uint64(2), l.Status().UpdateCount)
}

func TestLoader_RefreshFailureLeavesPreviousIndexesIntact(t *testing.T) {
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("9.9.9.9\n"))
	}))
	defer good.Close()

	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()

	overrides := map[string]string{}
	for _, name := range category.Names() {
		overrides[name] = good.URL
	}

	base := t.TempDir()
	l, reg := newTestLoader(t, base, overrides)
	// Boot finds no snapshot on disk and runs the immediate fetch itself.
	l.Boot(context.Background())
	defer l.Stop()

	require.True(t, reg.Lookup("malicious_ip", "9.9.9.9"))

	// Now point one category at the failing server and refresh again.
	overrides["malicious_ip"] = bad.URL
	l.urlOverr = overrides
	l.RequestRefresh(context.Background())

	status := l.Status()
	assert.Contains(t, status.LastStatus, "error")
	// Previous live index must remain untouched.
	assert.True(t, reg.Lookup("malicious_ip", "9.9.9.9"))
}

func TestLoader_BootLoadsMostRecentSnapshot(t *testing.T) {
	base := t.TempDir()
	snapDir := filepath.Join(base, "20250101")
	require.NoError(t, os.MkdirAll(snapDir, 0o755))

	for _, name := range category.Names() {
		require.NoError(t, os.WriteFile(filepath.Join(snapDir, name+".txt"), []byte("7.7.7.7\n"), 0o644))
	}

	l, reg := newTestLoader(t, base, nil)
	l.Boot(context.Background())
	defer l.Stop()

	assert.Equal(t, "ok", l.Status().LastStatus)
	assert.True(t, reg.Lookup("malicious_ip", "7.7.7.7"))
}
