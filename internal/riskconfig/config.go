// Package riskconfig resolves effective process configuration from a YAML
// file overlaid with command-line flags, flags winning.
package riskconfig

import (
	"os"

	"gopkg.in/yaml.v3"
)

// File is the on-disk YAML configuration shape.
type File struct {
	SnapshotDir    string            `yaml:"snapshot_dir"`
	ListenAddr     string            `yaml:"listen"`
	MetricsListen  string            `yaml:"metrics_listen"`
	FeedURLs       map[string]string `yaml:"feed_urls"`
	BucketCapacity int               `yaml:"mx_bucket_capacity"`
	Resolvers      []ResolverEntry   `yaml:"resolvers"`
}

// ResolverEntry is one (ip, port, display_name) tuple in the MX resolver
// pool, as read from YAML.
type ResolverEntry struct {
	IP          string `yaml:"ip"`
	Port        int    `yaml:"port"`
	DisplayName string `yaml:"display_name"`
}

// Load reads and parses a YAML config file. An empty path is a valid
// no-op: callers treat a nil *File the same as an all-defaults file.
func Load(path string) (*File, error) {
	if path == "" {
		return nil, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f File
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// Resolved is the effective configuration after flags have overridden any
// file values that were set.
type Resolved struct {
	SnapshotDir    string
	ListenAddr     string
	MetricsListen  string
	FeedURLs       map[string]string
	BucketCapacity int
	Resolvers      []ResolverEntry
}

const defaultSnapshotDir = "priv/blocklists"

const defaultBucketCapacity = 100

// Overrides carries the flag-supplied values; a zero value for any field
// means "not set on the command line, defer to the file or the default".
type Overrides struct {
	SnapshotDir    string
	ListenAddr     string
	MetricsListen  string
	BucketCapacity int
}

// Resolve merges defaults, an optional file, and flag overrides, in that
// increasing priority order.
func Resolve(f *File, o Overrides) Resolved {
	r := Resolved{
		SnapshotDir:    defaultSnapshotDir,
		ListenAddr:     ":8443",
		MetricsListen:  ":9090",
		FeedURLs:       map[string]string{},
		BucketCapacity: defaultBucketCapacity,
	}

	if f != nil {
		if f.SnapshotDir != "" {
			r.SnapshotDir = f.SnapshotDir
		}
		if f.ListenAddr != "" {
			r.ListenAddr = f.ListenAddr
		}
		if f.MetricsListen != "" {
			r.MetricsListen = f.MetricsListen
		}
		if len(f.FeedURLs) > 0 {
			r.FeedURLs = f.FeedURLs
		}
		if f.BucketCapacity > 0 {
			r.BucketCapacity = f.BucketCapacity
		}
		if len(f.Resolvers) > 0 {
			r.Resolvers = f.Resolvers
		}
	}

	if o.SnapshotDir != "" {
		r.SnapshotDir = o.SnapshotDir
	}
	if o.ListenAddr != "" {
		r.ListenAddr = o.ListenAddr
	}
	if o.MetricsListen != "" {
		r.MetricsListen = o.MetricsListen
	}
	if o.BucketCapacity > 0 {
		r.BucketCapacity = o.BucketCapacity
	}

	return r
}
