// Package metrics exposes Prometheus collectors for the acquisition
// pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector on a private registry so tests can build
// isolated instances.
type Metrics struct {
	registry *prometheus.Registry

	DownloadsTotal   *prometheus.CounterVec
	DownloadDuration prometheus.Histogram
	SearchesTotal    prometheus.Counter
	SearchDuration   prometheus.Histogram
	QueueDepth       prometheus.Gauge
	SyncRunsTotal    *prometheus.CounterVec
	TracksCreated    prometheus.Counter
	CandidatesScored prometheus.Counter
	HistoryRowsSwept prometheus.Counter
	ActiveWorkers    prometheus.Gauge
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		DownloadsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tracknest_downloads_total",
			Help: "Finished download jobs by terminal status.",
		}, []string{"status"}),
		DownloadDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "tracknest_download_duration_seconds",
			Help:    "Wall-clock time of download jobs from start to finish.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		SearchesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "tracknest_searches_total",
			Help: "Candidate searches issued against the extractor.",
		}),
		SearchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "tracknest_search_duration_seconds",
			Help:    "Wall-clock time of candidate searches.",
			Buckets: prometheus.DefBuckets,
		}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "tracknest_queue_depth",
			Help: "Download jobs waiting in the scheduler queue.",
		}),
		SyncRunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tracknest_sync_runs_total",
			Help: "Playlist sync runs by outcome.",
		}, []string{"outcome"}),
		TracksCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "tracknest_tracks_created_total",
			Help: "Tracks created in the catalog.",
		}),
		CandidatesScored: factory.NewCounter(prometheus.CounterOpts{
			Name: "tracknest_candidates_scored_total",
			Help: "Search candidates scored by the ranking engine.",
		}),
		HistoryRowsSwept: factory.NewCounter(prometheus.CounterOpts{
			Name: "tracknest_download_history_swept_total",
			Help: "Terminal download rows removed by the history sweep.",
		}),
		ActiveWorkers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "tracknest_active_workers",
			Help: "Download workers currently processing a job.",
		}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
