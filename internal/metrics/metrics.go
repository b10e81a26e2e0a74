package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookproxy_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bookproxy_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)
	UpstreamRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookproxy_upstream_requests_total",
			Help: "Upstream requests by target and outcome (HTTP status or \"error\")",
		},
		[]string{"target", "status"},
	)
	CatalogueCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookproxy_catalogue_cache_total",
			Help: "Catalogue cache lookups by result",
		},
		[]string{"result"},
	)
	CataloguePages = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bookproxy_catalogue_pages_fetched_total",
			Help: "Catalogue pages fetched from upstream",
		},
	)
	CatalogueEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bookproxy_catalogue_cached_entries",
			Help: "Entries held by the catalogue cache",
		},
	)
)

func MustRegister() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		UpstreamRequests,
		CatalogueCache,
		CataloguePages,
		CatalogueEntries,
	)
}
