package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "rainfall_trend"

// Metrics holds the Prometheus counters, histograms, and gauges for a trend run.
type Metrics struct {
	StationsLoaded   prometheus.Gauge
	StationsExcluded *prometheus.CounterVec   // labels: stage={load,trend,map}, kind
	TrendResults     *prometheus.CounterVec   // labels: level, trend={increasing,decreasing,no trend}
	StageDuration    *prometheus.HistogramVec // labels: stage
	LastRunTimestamp prometheus.Gauge

	// Rendering metrics.
	MapsRendered prometheus.Counter
	RenderErrors *prometheus.CounterVec // labels: artifact={point,idw,timeseries}

	// Sink metrics.
	ResultsPublished  prometheus.Counter
	ArtifactsUploaded prometheus.Counter
	SinkErrors        *prometheus.CounterVec // labels: sink

	// Geocoding metrics.
	GeocodeRequests    *prometheus.CounterVec   // labels: method=forward, outcome={success,error,empty}
	GeocodeCache       *prometheus.CounterVec   // labels: method=forward, result={hit,miss}
	GeocodeAPIDuration *prometheus.HistogramVec // labels: method
	GeocodeEnabled     prometheus.Gauge
}

// NewMetrics creates all run metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := newMetrics()
	reg.MustRegister(
		m.StationsLoaded,
		m.StationsExcluded,
		m.TrendResults,
		m.StageDuration,
		m.LastRunTimestamp,
		m.MapsRendered,
		m.RenderErrors,
		m.ResultsPublished,
		m.ArtifactsUploaded,
		m.SinkErrors,
		m.GeocodeRequests,
		m.GeocodeCache,
		m.GeocodeAPIDuration,
		m.GeocodeEnabled,
	)
	return m
}

// NewMetricsForTesting creates Metrics on a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}

func newMetrics() *Metrics {
	return &Metrics{
		StationsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stations_loaded",
			Help:      "Stations read from the metadata and daily inputs.",
		}),
		StationsExcluded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exclusions_total",
			Help:      "Stations or station levels left out of an output, by stage and error kind.",
		}, []string{"stage", "kind"}),
		TrendResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trend_results_total",
			Help:      "Trend results by aggregation level and reported trend.",
		}, []string{"level", "trend"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of each pipeline stage.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"stage"}),
		LastRunTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time at which the last run finished.",
		}),
		MapsRendered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "maps_rendered_total",
			Help:      "Map and chart images written.",
		}),
		RenderErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "render_errors_total",
			Help:      "Render failures by artifact type.",
		}, []string{"artifact"}),
		ResultsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "results_published_total",
			Help:      "Trend results written to the results topic.",
		}),
		ArtifactsUploaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifacts_uploaded_total",
			Help:      "Output files uploaded to object storage.",
		}),
		SinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_errors_total",
			Help:      "Sink delivery failures by sink.",
		}, []string{"sink"}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_requests_total",
			Help:      "Geocoding API requests by method and outcome.",
		}, []string{"method", "outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_cache_total",
			Help:      "Geocoding cache lookups by method and result.",
		}, []string{"method", "result"}),
		GeocodeAPIDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "geocode_api_duration_seconds",
			Help:      "Mapbox API request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"method"}),
		GeocodeEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "geocode_enabled",
			Help:      "1 when geocoding of missing coordinates is enabled, 0 otherwise.",
		}),
	}
}
