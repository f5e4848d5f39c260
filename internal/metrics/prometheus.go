package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the read-aloud pipeline.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Synthesis session metrics
	SynthesisSessions prometheus.Counter
	SynthesisFailures *prometheus.CounterVec
	SynthesisBytes    prometheus.Counter
	SynthesisDuration prometheus.Histogram

	// Cache metrics
	CacheHits      *prometheus.CounterVec
	CacheMisses    prometheus.Counter
	CacheEvictions prometheus.Counter
	CacheEntries   prometheus.Gauge
	CacheBytes     prometheus.Gauge

	// Scheduler metrics
	ChunksProduced *prometheus.CounterVec
	ChunkLength    prometheus.Histogram
	RunsStarted    *prometheus.CounterVec
	SilentChunks   prometheus.Counter

	// Playback metrics
	PlaybackErrors prometheus.Counter
	Reloads        prometheus.Counter
	FatalStops     prometheus.Counter
	CharsRead      prometheus.Gauge
}

// NewMetrics creates and registers all metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SynthesisSessions: f.NewCounter(prometheus.CounterOpts{
			Name: "aloud_synthesis_sessions_total",
			Help: "Total number of synthesis sessions opened",
		}),
		SynthesisFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "aloud_synthesis_failures_total",
			Help: "Total number of failed synthesis sessions by error code",
		}, []string{"code"}),
		SynthesisBytes: f.NewCounter(prometheus.CounterOpts{
			Name: "aloud_synthesis_bytes_total",
			Help: "Total audio bytes received from the backend",
		}),
		SynthesisDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "aloud_synthesis_duration_seconds",
			Help:    "Wall time of one synthesis session",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		}),

		CacheHits: f.NewCounterVec(prometheus.CounterOpts{
			Name: "aloud_cache_hits_total",
			Help: "Total number of cache hits by level",
		}, []string{"level"}),
		CacheMisses: f.NewCounter(prometheus.CounterOpts{
			Name: "aloud_cache_misses_total",
			Help: "Total number of cache misses",
		}),
		CacheEvictions: f.NewCounter(prometheus.CounterOpts{
			Name: "aloud_cache_evictions_total",
			Help: "Total number of entries evicted behind the playback position",
		}),
		CacheEntries: f.NewGauge(prometheus.GaugeOpts{
			Name: "aloud_cache_entries",
			Help: "Current number of entries in the memory cache",
		}),
		CacheBytes: f.NewGauge(prometheus.GaugeOpts{
			Name: "aloud_cache_bytes",
			Help: "Current size of the memory cache in bytes",
		}),

		ChunksProduced: f.NewCounterVec(prometheus.CounterOpts{
			Name: "aloud_chunks_produced_total",
			Help: "Total number of chunks produced by scheduler kind",
		}, []string{"kind"}),
		ChunkLength: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "aloud_chunk_length_chars",
			Help:    "Length of produced chunks in characters",
			Buckets: prometheus.LinearBuckets(100, 100, 10),
		}),
		RunsStarted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "aloud_runs_started_total",
			Help: "Total number of scheduler runs started by kind",
		}, []string{"kind"}),
		SilentChunks: f.NewCounter(prometheus.CounterOpts{
			Name: "aloud_silent_chunks_total",
			Help: "Total number of chunks replaced by the silent placeholder",
		}),

		PlaybackErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "aloud_playback_errors_total",
			Help: "Total number of player errors",
		}),
		Reloads: f.NewCounter(prometheus.CounterOpts{
			Name: "aloud_reloads_total",
			Help: "Total number of forced section reloads",
		}),
		FatalStops: f.NewCounter(prometheus.CounterOpts{
			Name: "aloud_fatal_stops_total",
			Help: "Total number of playback stops after exhausted retries",
		}),
		CharsRead: f.NewGauge(prometheus.GaugeOpts{
			Name: "aloud_chars_read",
			Help: "Section-relative characters read at the cursor",
		}),
	}
}

// ObserveSynthesis records one completed session.
func (m *Metrics) ObserveSynthesis(d time.Duration, bytes int, code string) {
	if m == nil {
		return
	}
	m.SynthesisSessions.Inc()
	m.SynthesisDuration.Observe(d.Seconds())
	m.SynthesisBytes.Add(float64(bytes))
	if code != "" {
		m.SynthesisFailures.WithLabelValues(code).Inc()
	}
}

// ObserveCacheHit records a hit at level ("memory" or "disk").
func (m *Metrics) ObserveCacheHit(level string) {
	if m == nil {
		return
	}
	m.CacheHits.WithLabelValues(level).Inc()
}

// ObserveCacheMiss records a miss.
func (m *Metrics) ObserveCacheMiss() {
	if m == nil {
		return
	}
	m.CacheMisses.Inc()
}

// SetCacheSize updates the cache gauges.
func (m *Metrics) SetCacheSize(entries int, bytes int64) {
	if m == nil {
		return
	}
	m.CacheEntries.Set(float64(entries))
	m.CacheBytes.Set(float64(bytes))
}

// ObserveEvictions records n evicted entries.
func (m *Metrics) ObserveEvictions(n int) {
	if m == nil || n == 0 {
		return
	}
	m.CacheEvictions.Add(float64(n))
}

// ObserveChunk records a produced chunk.
func (m *Metrics) ObserveChunk(kind string, length int, silent bool) {
	if m == nil {
		return
	}
	m.ChunksProduced.WithLabelValues(kind).Inc()
	m.ChunkLength.Observe(float64(length))
	if silent {
		m.SilentChunks.Inc()
	}
}

// ObserveRun records a started run.
func (m *Metrics) ObserveRun(kind string) {
	if m == nil {
		return
	}
	m.RunsStarted.WithLabelValues(kind).Inc()
}

// ObservePlaybackError records a player error.
func (m *Metrics) ObservePlaybackError() {
	if m == nil {
		return
	}
	m.PlaybackErrors.Inc()
}

// ObserveReload records a forced reload.
func (m *Metrics) ObserveReload() {
	if m == nil {
		return
	}
	m.Reloads.Inc()
}

// ObserveFatal records a fatal stop.
func (m *Metrics) ObserveFatal() {
	if m == nil {
		return
	}
	m.FatalStops.Inc()
}

// SetCharsRead updates the cursor gauge.
func (m *Metrics) SetCharsRead(n int) {
	if m == nil {
		return
	}
	m.CharsRead.Set(float64(n))
}
