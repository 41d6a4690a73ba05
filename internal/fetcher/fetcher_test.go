package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/riskcore/riskcored/internal/category"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchAll_AllSucceed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("1.2.3.4\n5.6.7.8\n"))
	}))
	defer srv.Close()

	cats := []category.Category{
		{Name: "malicious_ip", Kind: category.KindIP, URL: srv.URL + "/a"},
		{Name: "tor_network_ip", Kind: category.KindIP, URL: srv.URL + "/b"},
	}

	f := New()
	defer f.Close()

	dir := t.TempDir()
	err := f.FetchAll(context.Background(), dir, cats)
	require.NoError(t, err)

	for _, c := range cats {
		data, err := os.ReadFile(filepath.Join(dir, c.Name+".txt"))
		require.NoError(t, err)
		assert.Contains(t, string(data), "1.2.3.4")
	}
}

func TestFetchAll_OneNon200FailsTheBatch(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	}))
	defer ok.Close()

	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()

	cats := []category.Category{
		{Name: "malicious_ip", Kind: category.KindIP, URL: ok.URL},
		{Name: "suspicious_ip", Kind: category.KindIP, URL: bad.URL},
	}

	f := New()
	defer f.Close()

	dir := t.TempDir()
	err := f.FetchAll(context.Background(), dir, cats)
	require.ErrorIs(t, err, ErrDownloadFailed)
	assert.Contains(t, err.Error(), "suspicious_ip")
}
