package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// GenerationMetrics records the lifecycle of blog generation jobs.
type GenerationMetrics struct {
	started         *prometheus.CounterVec
	finished        *prometheus.CounterVec
	duration        *prometheus.HistogramVec
	chunks          *prometheus.CounterVec
	droppedProgress prometheus.Counter
}

// NewGenerationMetrics registers generation metrics on the provided registerer.
func NewGenerationMetrics(reg prometheus.Registerer) *GenerationMetrics {
	if reg == nil {
		return &GenerationMetrics{}
	}
	started := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "generation_jobs_started",
		Help: "Generation jobs picked up by a worker.",
	}, []string{"provider"})
	finished := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "generation_jobs_finished",
		Help: "Generation jobs that reached a terminal state.",
	}, []string{"provider", "status"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "generation_duration_seconds",
		Help:    "Wall time from job pickup to terminal state.",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"provider"})
	chunks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "generation_chunks_flushed",
		Help: "Buffered text chunks flushed to stream consumers.",
	}, []string{"phase"})
	droppedProgress := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "generation_progress_writes_dropped",
		Help: "Progress updates lost to job state store errors.",
	})
	reg.MustRegister(started, finished, duration, chunks, droppedProgress)
	return &GenerationMetrics{
		started:         started,
		finished:        finished,
		duration:        duration,
		chunks:          chunks,
		droppedProgress: droppedProgress,
	}
}

// IncStarted increments the started counter for the provider.
func (g *GenerationMetrics) IncStarted(provider string) {
	if g == nil || g.started == nil {
		return
	}
	g.started.WithLabelValues(normalizeLabel(provider)).Inc()
}

// IncFinished increments the finished counter for the provider/status pair.
func (g *GenerationMetrics) IncFinished(provider, status string) {
	if g == nil || g.finished == nil {
		return
	}
	g.finished.WithLabelValues(normalizeLabel(provider), normalizeLabel(status)).Inc()
}

// ObserveDuration records how long a job ran.
func (g *GenerationMetrics) ObserveDuration(provider string, d time.Duration) {
	if g == nil || g.duration == nil {
		return
	}
	g.duration.WithLabelValues(normalizeLabel(provider)).Observe(d.Seconds())
}

// IncChunksFlushed counts one flushed stream chunk for the phase.
func (g *GenerationMetrics) IncChunksFlushed(phase string) {
	if g == nil || g.chunks == nil {
		return
	}
	g.chunks.WithLabelValues(normalizeLabel(phase)).Inc()
}

// IncProgressDropped counts one progress update the tracker could not persist.
func (g *GenerationMetrics) IncProgressDropped() {
	if g == nil || g.droppedProgress == nil {
		return
	}
	g.droppedProgress.Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
