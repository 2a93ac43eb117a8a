// Package metrics exposes Prometheus collectors for the cache, the fetcher and the media endpoint.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/desertthunder/tapedeck/internal/models"
)

const namespace = "tapedeck"

// Media request outcomes.
const (
	ResultHit        = "hit"
	ResultPending    = "pending"
	ResultNotFound   = "not_found"
	ResultFailed     = "failed"
	ResultRestricted = "restricted"
)

// Metrics owns a private registry so tests and multiple servers never collide.
type Metrics struct {
	registry *prometheus.Registry

	MediaRequests    *prometheus.CounterVec
	Evictions        prometheus.Counter
	EvictedBytes     prometheus.Counter
	Downloads        *prometheus.CounterVec
	DownloadDuration prometheus.Histogram
}

// New registers every collector plus the Go runtime collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		MediaRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "media_requests_total",
			Help:      "Media endpoint requests by outcome.",
		}, []string{"result"}),
		Evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_evictions_total",
			Help:      "Cache entries evicted to stay within budget.",
		}),
		EvictedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_evicted_bytes_total",
			Help:      "Bytes reclaimed by eviction.",
		}),
		Downloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloads_total",
			Help:      "Finished download jobs by final state.",
		}, []string{"state"}),
		DownloadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "download_duration_seconds",
			Help:      "Wall time of successful downloads.",
			Buckets:   []float64{1, 2, 5, 10, 20, 30, 60, 120, 300},
		}),
	}

	m.registry.MustRegister(
		m.MediaRequests,
		m.Evictions,
		m.EvictedBytes,
		m.Downloads,
		m.DownloadDuration,
		collectors.NewGoCollector(),
	)
	return m
}

// CacheSource reports live cache usage.
type CacheSource interface {
	Stats() models.CacheStats
}

// DownloadSource reports live fetcher activity.
type DownloadSource interface {
	Stats() models.DownloadStats
}

// WatchCache registers gauges sampling the cache at scrape time.
func (m *Metrics) WatchCache(c CacheSource) {
	m.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Name: "cache_size_bytes", Help: "Aggregate size of cached media.",
		}, func() float64 { return float64(c.Stats().Size) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Name: "cache_max_bytes", Help: "Configured cache budget.",
		}, func() float64 { return float64(c.Stats().MaxSize) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Name: "cache_entries", Help: "Number of cached files.",
		}, func() float64 { return float64(c.Stats().Count) }),
	)
}

// WatchDownloads registers gauges sampling the fetcher at scrape time.
func (m *Metrics) WatchDownloads(d DownloadSource) {
	m.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Name: "downloads_active", Help: "Downloads currently transferring.",
		}, func() float64 { return float64(d.Stats().Active) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Name: "downloads_queued", Help: "Downloads waiting for a slot.",
		}, func() float64 { return float64(d.Stats().Queued) }),
	)
}

// ObserveEviction is a cache eviction hook.
func (m *Metrics) ObserveEviction(entry models.CacheEntry) {
	m.Evictions.Inc()
	m.EvictedBytes.Add(float64(entry.Size))
}

// ObserveDownload is a fetcher completion hook.
func (m *Metrics) ObserveDownload(job models.DownloadJob) {
	m.Downloads.WithLabelValues(string(job.State)).Inc()
	if job.State == models.JobDone && !job.FinishedAt.IsZero() {
		m.DownloadDuration.Observe(job.FinishedAt.Sub(job.StartedAt).Seconds())
	}
}

// ObserveMedia counts one media endpoint outcome.
func (m *Metrics) ObserveMedia(result string) {
	m.MediaRequests.WithLabelValues(result).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
