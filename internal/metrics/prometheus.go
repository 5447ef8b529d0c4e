package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the transcription pipeline.
// All helper methods are safe on a nil receiver so collectors stay optional.
type Metrics struct {
	// Job lifecycle metrics
	JobsStarted   prometheus.Counter
	JobsCompleted prometheus.Counter
	JobsFailed    prometheus.Counter
	JobFallbacks  prometheus.Counter
	JobDuration   prometheus.Histogram

	// Chunk metrics
	ChunksCompleted prometheus.Counter
	ChunkDuration   prometheus.Histogram

	// Enhancement metrics
	EnhancementFallbacks prometheus.Counter
	VocabularyHits       prometheus.Counter

	// Correction feedback metrics
	CorrectionsRecorded prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		JobsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "meetlens_jobs_started_total",
			Help: "Total number of transcription jobs started",
		}),
		JobsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "meetlens_jobs_completed_total",
			Help: "Total number of transcription jobs completed",
		}),
		JobsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "meetlens_jobs_failed_total",
			Help: "Total number of transcription jobs that failed",
		}),
		JobFallbacks: promauto.NewCounter(prometheus.CounterOpts{
			Name: "meetlens_job_fallbacks_total",
			Help: "Total number of jobs that fell back to a whole-file pass",
		}),
		JobDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "meetlens_job_duration_seconds",
			Help:    "Wall-clock duration of transcription jobs",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~68 minutes
		}),
		ChunksCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "meetlens_chunks_completed_total",
			Help: "Total number of audio chunks transcribed",
		}),
		ChunkDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "meetlens_chunk_audio_seconds",
			Help:    "Audio duration of transcribed chunks",
			Buckets: prometheus.LinearBuckets(30, 30, 8), // 30s to 4 minutes
		}),
		EnhancementFallbacks: promauto.NewCounter(prometheus.CounterOpts{
			Name: "meetlens_enhancement_fallbacks_total",
			Help: "Total number of jobs that shipped the raw transcript after an enhancement failure",
		}),
		VocabularyHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "meetlens_vocabulary_substitutions_total",
			Help: "Total number of vocabulary substitutions applied",
		}),
		CorrectionsRecorded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "meetlens_corrections_recorded_total",
			Help: "Total number of user corrections recorded",
		}),
	}
}

// JobStarted increments the jobs started counter.
func (m *Metrics) JobStarted() {
	if m == nil {
		return
	}
	m.JobsStarted.Inc()
}

// JobCompleted records a completed job and its wall-clock duration.
func (m *Metrics) JobCompleted(took time.Duration) {
	if m == nil {
		return
	}
	m.JobsCompleted.Inc()
	m.JobDuration.Observe(took.Seconds())
}

// JobFailed increments the failed jobs counter.
func (m *Metrics) JobFailed() {
	if m == nil {
		return
	}
	m.JobsFailed.Inc()
}

// JobFallback increments the whole-file fallback counter.
func (m *Metrics) JobFallback() {
	if m == nil {
		return
	}
	m.JobFallbacks.Inc()
}

// ChunkCompleted records one transcribed chunk and its audio duration.
func (m *Metrics) ChunkCompleted(audioSeconds float64) {
	if m == nil {
		return
	}
	m.ChunksCompleted.Inc()
	m.ChunkDuration.Observe(audioSeconds)
}

// EnhancementFallback counts a job that kept the raw transcript.
func (m *Metrics) EnhancementFallback() {
	if m == nil {
		return
	}
	m.EnhancementFallbacks.Inc()
}

// VocabularySubstitutions adds n applied vocabulary substitutions.
func (m *Metrics) VocabularySubstitutions(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.VocabularyHits.Add(float64(n))
}

// CorrectionRecorded increments the user corrections counter.
func (m *Metrics) CorrectionRecorded() {
	if m == nil {
		return
	}
	m.CorrectionsRecorded.Inc()
}
