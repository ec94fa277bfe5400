// Package metrics exposes prometheus collectors for the fetch and decrypt pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "haystack_refreshes_total",
			Help: "Refresh cycles by outcome",
		},
		[]string{"outcome"},
	)

	FetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "haystack_fetch_duration_seconds",
			Help:    "Upstream fetch duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	FetchErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "haystack_fetch_errors_total",
			Help: "Failed upstream fetches by kind",
		},
		[]string{"kind"},
	)

	ReportsFetchedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "haystack_reports_fetched_total",
			Help: "Encrypted reports returned by the upstream network",
		},
	)

	ReportsSkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "haystack_reports_skipped_total",
			Help: "Reports that could not be turned into a location fix, by reason",
		},
		[]string{"reason"},
	)

	FixesAddedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "haystack_fixes_added_total",
			Help: "Location fixes merged into accessory history",
		},
	)

	KeysDerivedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "haystack_keys_derived_total",
			Help: "Advertisement keys derived for fetches",
		},
	)
)
