package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/meetlens/meetlens/internal/audio"
	"github.com/meetlens/meetlens/internal/metrics"
	"github.com/meetlens/meetlens/internal/models"
	"github.com/meetlens/meetlens/internal/providers/llm"
	"github.com/meetlens/meetlens/internal/utils"
)

// Downloader fetches the source audio. A failure here is the only fatal
// error class besides exhaustion of the fallback pass.
type Downloader interface {
	Download(ctx context.Context, objectPath string) ([]byte, error)
}

// AudioPreprocessor is the cleanup stage contract.
type AudioPreprocessor interface {
	Preprocess(ctx context.Context, asset *models.AudioAsset, opts audio.Options) (*audio.Result, error)
	Enhance(ctx context.Context, asset *models.AudioAsset) (*audio.Result, error)
}

// VocabularyEnhancer applies organization vocabulary to the final text.
type VocabularyEnhancer interface {
	Enhance(ctx context.Context, organizationID, language, text string) (enhanced string, replacements int, err error)
	MatchRate(ctx context.Context, organizationID, text string) (float64, error)
}

// TranscriptStore persists job state. All writes are non-fatal to the
// transcription result itself.
type TranscriptStore interface {
	SetProgress(ctx context.Context, jobID string, progress float64) error
	Complete(ctx context.Context, t *models.Transcription) error
	Fail(ctx context.Context, jobID, reason string) error
}

// MetricsAppender receives one AccuracyMetrics record per completed job.
type MetricsAppender interface {
	Append(ctx context.Context, m *models.AccuracyMetrics) error
}

// StatusSink receives progress and terminal updates for the orchestrating
// system.
type StatusSink interface {
	Progress(ctx context.Context, jobID string, chunksCompleted, chunksTotal int)
	Completed(ctx context.Context, jobID string, result *JobResult)
	Failed(ctx context.Context, jobID, reason string)
}

// EventSink publishes job lifecycle events to the message bus.
type EventSink interface {
	PublishJobEvent(ctx context.Context, event, jobID string, payload any) error
}

// JobRequest describes one transcription job.
type JobRequest struct {
	JobID          string
	OrganizationID string
	ObjectPath     string
	Language       string

	DurationSeconds float64 // optional; probed from the audio when zero
	SampleRate      int
	MultiPass       bool
}

// JobResult is the terminal payload of a completed job. Even degraded jobs
// produce best-effort text; Warnings lists what went sideways on the way.
type JobResult struct {
	JobID           string
	OrganizationID  string
	Text            string
	Segments        []models.Segment
	Language        string
	Confidence      float64
	Quality         models.QualityLevel
	DurationSeconds float64
	PassCount       int
	Enhancements    []string
	Warnings        []string
	Metrics         *models.AccuracyMetrics
}

// OrchestratorConfig carries the pipeline tunables.
type OrchestratorConfig struct {
	WorkerCap             int
	MultiPassTemperatures []float64
	DiarizationGapSeconds float64
	EnhanceSystemContext  string
}

func (c OrchestratorConfig) withDefaults() OrchestratorConfig {
	if c.WorkerCap <= 0 {
		c.WorkerCap = 10
	}
	if len(c.MultiPassTemperatures) == 0 {
		c.MultiPassTemperatures = []float64{0.0, 0.2, 0.4}
	}
	if c.EnhanceSystemContext == "" {
		c.EnhanceSystemContext = "You are a meeting transcript editor. Fix recognition errors without changing meaning."
	}
	return c
}

// Orchestrator composes the whole pipeline: download, preprocess, plan,
// execute, reconcile, enhance, score, persist. Every collaborator except the
// downloader and executor is optional; missing ones degrade the job instead
// of failing it.
type Orchestrator struct {
	downloader Downloader
	pre        AudioPreprocessor
	planner    PlannerConfig
	reconciler *Reconciler
	executor   *Executor

	vocab       VocabularyEnhancer
	llm         llm.Provider
	transcripts TranscriptStore
	accuracy    MetricsAppender
	status      StatusSink
	events      EventSink
	prom        *metrics.Metrics

	cfg OrchestratorConfig
	log *logrus.Entry
}

// OrchestratorDeps groups the injected collaborators.
type OrchestratorDeps struct {
	Downloader   Downloader
	Preprocessor AudioPreprocessor
	Executor     *Executor
	Reconciler   *Reconciler

	Vocabulary  VocabularyEnhancer
	LLM         llm.Provider
	Transcripts TranscriptStore
	Accuracy    MetricsAppender
	Status      StatusSink
	Events      EventSink
	Prometheus  *metrics.Metrics
}

func NewOrchestrator(deps OrchestratorDeps, planner PlannerConfig, cfg OrchestratorConfig, log *logrus.Logger) *Orchestrator {
	return &Orchestrator{
		downloader:  deps.Downloader,
		pre:         deps.Preprocessor,
		planner:     planner,
		reconciler:  deps.Reconciler,
		executor:    deps.Executor,
		vocab:       deps.Vocabulary,
		llm:         deps.LLM,
		transcripts: deps.Transcripts,
		accuracy:    deps.Accuracy,
		status:      deps.Status,
		events:      deps.Events,
		prom:        deps.Prometheus,
		cfg:         cfg.withDefaults(),
		log:         log.WithField("component", "orchestrator"),
	}
}

// Run executes one job end to end. Only a download failure or exhaustion of
// the whole-file fallback pass surfaces as an error; everything else
// degrades into warnings on a completed result.
func (o *Orchestrator) Run(ctx context.Context, job JobRequest) (*JobResult, error) {
	const op = "Orchestrator.Run"
	started := time.Now()
	log := o.log.WithFields(logrus.Fields{"job_id": job.JobID, "organization_id": job.OrganizationID})

	o.prom.JobStarted()

	raw, err := o.downloader.Download(ctx, job.ObjectPath)
	if err != nil {
		ferr := utils.E(utils.CodeUnavailable, op, "cannot fetch source audio", err)
		o.finishFailed(ctx, job.JobID, ferr.Error())
		return nil, ferr
	}

	asset := &models.AudioAsset{Data: raw, DurationSeconds: job.DurationSeconds, SampleRate: job.SampleRate}
	if asset.DurationSeconds <= 0 {
		asset.DurationSeconds = audio.DurationOf(raw, 0)
	}

	var warnings, enhancements []string

	pre := o.preprocess(ctx, asset, log)
	if pre.Degraded {
		warnings = append(warnings, "audio preprocessing degraded; default quality metrics in use")
	} else {
		enhancements = append(enhancements, "preprocessing")
		if pre.NeedsEnhancement {
			if enh, _ := o.pre.Enhance(ctx, &models.AudioAsset{
				Data:            pre.ProcessedAudio,
				DurationSeconds: pre.ProcessedDuration,
				SampleRate:      asset.SampleRate,
			}); enh != nil && !enh.Degraded {
				pre.ProcessedAudio = enh.ProcessedAudio
				pre.ProcessedDuration = enh.ProcessedDuration
				enhancements = append(enhancements, "audio-enhancement")
			}
		}
	}

	working := pre.ProcessedAudio
	duration := pre.ProcessedDuration
	if duration <= 0 {
		duration = asset.DurationSeconds
	}

	var merged *MergedTranscript
	var passCount int
	if job.MultiPass {
		merged, passCount, err = o.runMultiPass(ctx, working, duration, job, log)
	} else {
		merged, passCount, err = o.runChunked(ctx, working, duration, job, log, &warnings)
	}
	if err != nil {
		o.finishFailed(ctx, job.JobID, err.Error())
		return nil, err
	}

	AssignSpeakers(merged.Segments, o.cfg.DiarizationGapSeconds)

	text := merged.Text
	if o.llm != nil && text != "" {
		if res, enhErr := o.llm.Enhance(ctx, text, o.cfg.EnhanceSystemContext); enhErr != nil {
			log.WithError(enhErr).Warn("llm enhancement unavailable, keeping raw transcript")
			warnings = append(warnings, "text enhancement skipped")
			o.prom.EnhancementFallback()
		} else {
			text = res.CorrectedText
			enhancements = append(enhancements, "llm-correction")
		}
	}

	vocabReplacements := 0
	if o.vocab != nil && text != "" {
		if enhanced, n, vErr := o.vocab.Enhance(ctx, job.OrganizationID, job.Language, text); vErr != nil {
			log.WithError(vErr).Warn("vocabulary enhancement unavailable")
			warnings = append(warnings, "vocabulary enhancement skipped")
		} else {
			text = enhanced
			vocabReplacements = n
			o.prom.VocabularySubstitutions(n)
			if n > 0 {
				enhancements = append(enhancements, "vocabulary")
			}
		}
	}

	matchRate := 0.0
	if o.vocab != nil {
		if mr, mrErr := o.vocab.MatchRate(ctx, job.OrganizationID, text); mrErr == nil {
			matchRate = mr
		}
	}

	result := &JobResult{
		JobID:           job.JobID,
		OrganizationID:  job.OrganizationID,
		Text:            text,
		Segments:        merged.Segments,
		Language:        job.Language,
		Confidence:      merged.Confidence,
		Quality:         pre.Metrics.Quality,
		DurationSeconds: duration,
		PassCount:       passCount,
		Enhancements:    enhancements,
		Warnings:        warnings,
		Metrics: &models.AccuracyMetrics{
			TranscriptionID:     job.JobID,
			OrganizationID:      job.OrganizationID,
			VocabularyMatchRate: matchRate,
			ConfidenceScore:     merged.Confidence,
			AudioQuality:        pre.Metrics.Quality,
			DurationSeconds:     duration,
			PassCount:           passCount,
			EnhancementsApplied: len(enhancements) + vocabReplacements,
			CreatedAt:           time.Now().UTC(),
		},
	}

	o.persist(ctx, job, result, log)
	o.finishCompleted(ctx, job.JobID, result, time.Since(started))
	log.WithFields(logrus.Fields{
		"passes":     passCount,
		"confidence": result.Confidence,
		"warnings":   len(warnings),
	}).Info("transcription job completed")
	return result, nil
}

func (o *Orchestrator) preprocess(ctx context.Context, asset *models.AudioAsset, log *logrus.Entry) *audio.Result {
	if o.pre == nil {
		return &audio.Result{
			ProcessedAudio:    asset.Data,
			OriginalDuration:  asset.DurationSeconds,
			ProcessedDuration: asset.DurationSeconds,
			Metrics:           models.QualityMetrics{Quality: models.QualityFair},
			Degraded:          true,
		}
	}
	pre, err := o.pre.Preprocess(ctx, asset, audio.DefaultOptions())
	if err != nil || pre == nil {
		log.WithError(err).Warn("preprocessor returned an error, proceeding with raw audio")
		return &audio.Result{
			ProcessedAudio:    asset.Data,
			OriginalDuration:  asset.DurationSeconds,
			ProcessedDuration: asset.DurationSeconds,
			Metrics:           models.QualityMetrics{Quality: models.QualityFair},
			Degraded:          true,
		}
	}
	return pre
}

// runChunked fans the planned chunks out over the bounded worker pool,
// buffers all results, and stitches them in chunk-id order. Any chunk
// failure aborts the parallel attempt and falls back to one whole-file pass.
func (o *Orchestrator) runChunked(ctx context.Context, working []byte, duration float64, job JobRequest, log *logrus.Entry, warnings *[]string) (*MergedTranscript, int, error) {
	const op = "Orchestrator.runChunked"

	chunks := o.planner.Plan(0, duration, o.cfg.WorkerCap)
	if len(chunks) == 0 {
		chunks = []models.Chunk{{ID: 0, Start: 0, End: duration}}
	}

	if len(chunks) == 1 {
		pass, err := o.executor.Execute(ctx, working, chunks[0], PassRequest{
			OrganizationID: job.OrganizationID,
			Language:       job.Language,
		})
		if err != nil {
			return nil, 0, utils.E(utils.CodeUnavailable, op, "transcription failed", err)
		}
		o.reportProgress(ctx, job.JobID, 1, 1)
		return o.reconciler.MergePasses([]models.PassResult{*pass}), 1, nil
	}

	results := make([]ChunkResult, len(chunks))
	errs := make([]error, len(chunks))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sem := make(chan struct{}, o.cfg.WorkerCap)
	var wg sync.WaitGroup
	var completed int
	var mu sync.Mutex

	for i, chunk := range chunks {
		wg.Add(1)
		go func(i int, chunk models.Chunk) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-runCtx.Done():
				errs[i] = runCtx.Err()
				return
			}

			slice := audio.SliceWAV(working, chunk.Start, chunk.End)
			pass, err := o.executor.Execute(runCtx, slice, chunk, PassRequest{
				OrganizationID: job.OrganizationID,
				Language:       job.Language,
			})
			if err != nil {
				errs[i] = err
				cancel() // one exhausted chunk aborts the parallel attempt
				return
			}
			results[i] = ChunkResult{Chunk: chunk, Pass: *pass}
			o.prom.ChunkCompleted(chunk.End - chunk.Start)

			mu.Lock()
			completed++
			done := completed
			mu.Unlock()
			o.reportProgress(ctx, job.JobID, done, len(chunks))
		}(i, chunk)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			log.WithError(err).Warn("chunked transcription failed, falling back to a single whole-file pass")
			*warnings = append(*warnings, "chunked transcription failed; whole-file fallback used")
			o.prom.JobFallback()

			pass, fbErr := o.executor.Execute(ctx, working, models.Chunk{ID: 0, Start: 0, End: duration}, PassRequest{
				OrganizationID: job.OrganizationID,
				Language:       job.Language,
			})
			if fbErr != nil {
				return nil, 0, utils.E(utils.CodeUnavailable, op, "fallback transcription failed", fbErr)
			}
			o.reportProgress(ctx, job.JobID, 1, 1)
			return o.reconciler.MergePasses([]models.PassResult{*pass}), 1, nil
		}
	}

	o.reportProgress(ctx, job.JobID, len(chunks), len(chunks))
	return o.reconciler.StitchChunks(results), len(chunks), nil
}

// runMultiPass decodes the whole file several times at different
// temperatures and reconciles the divergent outputs. Failed passes are
// dropped; the job fails only when every pass fails.
func (o *Orchestrator) runMultiPass(ctx context.Context, working []byte, duration float64, job JobRequest, log *logrus.Entry) (*MergedTranscript, int, error) {
	const op = "Orchestrator.runMultiPass"

	temps := o.cfg.MultiPassTemperatures
	passes := make([]*models.PassResult, len(temps))

	sem := make(chan struct{}, o.cfg.WorkerCap)
	var wg sync.WaitGroup
	for i, temp := range temps {
		wg.Add(1)
		go func(i int, temp float64) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			pass, err := o.executor.Execute(ctx, working, models.Chunk{ID: 0, Start: 0, End: duration}, PassRequest{
				OrganizationID: job.OrganizationID,
				Language:       job.Language,
				Temperature:    temp,
			})
			if err != nil {
				log.WithError(err).WithField("temperature", temp).Warn("pass failed, dropping it from the merge")
				return
			}
			passes[i] = pass
			o.reportProgress(ctx, job.JobID, i+1, len(temps))
		}(i, temp)
	}
	wg.Wait()

	kept := make([]models.PassResult, 0, len(passes))
	for _, p := range passes {
		if p != nil {
			kept = append(kept, *p)
		}
	}
	if len(kept) == 0 {
		return nil, 0, utils.E(utils.CodeUnavailable, op, "all transcription passes failed", nil)
	}
	return o.reconciler.MergePasses(kept), len(kept), nil
}

// persist writes the transcript document and the accuracy record. Failures
// here are logged and downgrade to warnings; the transcription result itself
// already exists.
func (o *Orchestrator) persist(ctx context.Context, job JobRequest, result *JobResult, log *logrus.Entry) {
	if o.transcripts != nil {
		now := time.Now().UTC()
		doc := &models.Transcription{
			JobID:           job.JobID,
			OrganizationID:  job.OrganizationID,
			Language:        job.Language,
			Status:          "completed",
			Progress:        100,
			Text:            result.Text,
			Segments:        result.Segments,
			Confidence:      result.Confidence,
			Warnings:        result.Warnings,
			AudioQuality:    result.Quality,
			DurationSeconds: result.DurationSeconds,
			PassCount:       result.PassCount,
			CompletedAt:     &now,
		}
		if err := o.transcripts.Complete(ctx, doc); err != nil {
			log.WithError(err).Error("failed to persist transcript")
			result.Warnings = append(result.Warnings, "transcript persistence failed")
		}
	}

	if o.accuracy != nil && result.Metrics != nil {
		if err := o.accuracy.Append(ctx, result.Metrics); err != nil {
			log.WithError(err).Error("failed to append accuracy metrics")
			result.Warnings = append(result.Warnings, "accuracy metrics not recorded")
		}
	}
}

func (o *Orchestrator) reportProgress(ctx context.Context, jobID string, done, total int) {
	if o.status != nil {
		o.status.Progress(ctx, jobID, done, total)
	}
	if o.transcripts != nil && total > 0 {
		_ = o.transcripts.SetProgress(ctx, jobID, float64(done)/float64(total)*100)
	}
}

func (o *Orchestrator) finishCompleted(ctx context.Context, jobID string, result *JobResult, took time.Duration) {
	if o.status != nil {
		o.status.Completed(ctx, jobID, result)
	}
	if o.events != nil {
		_ = o.events.PublishJobEvent(ctx, "job.completed", jobID, result.Metrics)
	}
	o.prom.JobCompleted(took)
}

func (o *Orchestrator) finishFailed(ctx context.Context, jobID, reason string) {
	if o.transcripts != nil {
		_ = o.transcripts.Fail(ctx, jobID, reason)
	}
	if o.status != nil {
		o.status.Failed(ctx, jobID, reason)
	}
	if o.events != nil {
		_ = o.events.PublishJobEvent(ctx, "job.failed", jobID, reason)
	}
	o.prom.JobFailed()
}
