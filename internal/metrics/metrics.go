// Package metrics defines the process's Prometheus collectors, registered
// once at init and incremented from the loader, fetcher, matcher, resolver
// and classifier hot paths.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// ClassificationsTotal counts classify() calls by resulting risk level.
	ClassificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riskcored_classifications_total",
			Help: "Total classification requests by resulting risk level.",
		},
		[]string{"level"},
	)

	// ClassificationDuration tracks classify() latency, dominated by the
	// occasional live MX lookup on a previously unseen domain.
	ClassificationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "riskcored_classification_duration_seconds",
			Help:    "classify() latency.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"had_email", "had_ip"},
	)

	// CategorySize reports the live entry count of each named index,
	// refreshed after every successful swap.
	CategorySize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "riskcored_category_size",
			Help: "Entry count of the live index for a category.",
		},
		[]string{"category"},
	)

	// RefreshTotal counts loader refresh attempts by outcome.
	RefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riskcored_refresh_total",
			Help: "Loader refresh attempts by outcome.",
		},
		[]string{"outcome"},
	)

	// MXLookupsTotal counts resolver lookups by outcome.
	MXLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riskcored_mx_lookups_total",
			Help: "MX resolver lookups by outcome.",
		},
		[]string{"outcome"},
	)

	// MXRateLimitedTotal counts classify() calls whose MX lookup was
	// dropped because every resolver in the pool was out of tokens, so
	// operators can see this degradation (classified as no_mx, never
	// surfaced as an error to the caller) without it being lost inside
	// MXLookupsTotal's "rate_limited" bucket, which fires from the
	// resolver regardless of whether a classification was in progress.
	MXRateLimitedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "riskcored_mx_rate_limited_total",
			Help: "classify() calls whose MX lookup was dropped because every resolver was rate-limited.",
		},
	)

	// FetchTotal counts per-category feed downloads by outcome.
	FetchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riskcored_fetch_total",
			Help: "Feed downloads by category and outcome.",
		},
		[]string{"category", "outcome"},
	)

	// MatchDuration tracks ipmatch.Matches latency, split by hit/miss since
	// a miss walks the full CIDR cache while a hit can short-circuit on the
	// exact-entry lookup.
	MatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "riskcored_ip_match_duration_seconds",
			Help:    "ipmatch.Matches latency.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(
		ClassificationsTotal,
		ClassificationDuration,
		CategorySize,
		RefreshTotal,
		MXLookupsTotal,
		MXRateLimitedTotal,
		FetchTotal,
		MatchDuration,
	)
}

// ObserveClassification records one classify() call's outcome and latency.
func ObserveClassification(level string, hadEmail, hadIP bool, elapsed time.Duration) {
	ClassificationsTotal.WithLabelValues(level).Inc()
	ClassificationDuration.WithLabelValues(boolLabel(hadEmail), boolLabel(hadIP)).Observe(elapsed.Seconds())
}

// SetCategorySizes updates the per-category gauge from a name->size map, as
// produced by loader.Status().PerCategorySizes.
func SetCategorySizes(sizes map[string]int) {
	for name, size := range sizes {
		CategorySize.WithLabelValues(name).Set(float64(size))
	}
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
