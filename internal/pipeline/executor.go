package pipeline

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/meetlens/meetlens/internal/models"
	"github.com/meetlens/meetlens/internal/providers/stt"
	"github.com/meetlens/meetlens/internal/utils"
)

// PromptBuilder supplies the vocabulary-aware prompt fed into every pass.
// This is the feedback path from the learned vocabulary into transcription.
type PromptBuilder interface {
	BuildPromptVocabulary(ctx context.Context, organizationID, format string) (string, error)
}

type ExecutorConfig struct {
	Timeout      time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
	PromptFormat string
}

func (c ExecutorConfig) withDefaults() ExecutorConfig {
	if c.Timeout <= 0 {
		c.Timeout = 2 * time.Minute
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = time.Second
	}
	if c.PromptFormat == "" {
		c.PromptFormat = "whisper"
	}
	return c
}

// PassRequest describes one transcription attempt.
type PassRequest struct {
	OrganizationID string
	Language       string
	Temperature    float64
}

// Executor issues a single transcription pass against the external engine.
// Its own logic is limited to prompt construction, timestamp offsetting, and
// heuristic confidence scoring; the literal decode belongs to the engine.
type Executor struct {
	stt     stt.Provider
	prompts PromptBuilder
	cfg     ExecutorConfig
	log     *logrus.Entry
}

func NewExecutor(provider stt.Provider, prompts PromptBuilder, cfg ExecutorConfig, log *logrus.Logger) *Executor {
	return &Executor{
		stt:     provider,
		prompts: prompts,
		cfg:     cfg.withDefaults(),
		log:     log.WithField("component", "executor"),
	}
}

// Execute runs one pass over the given audio slice. Retries up to the
// configured budget with backoff; the error returned after exhaustion is the
// last engine error.
func (e *Executor) Execute(ctx context.Context, audioSlice []byte, chunk models.Chunk, req PassRequest) (*models.PassResult, error) {
	const op = "Executor.Execute"

	prompt := ""
	if e.prompts != nil && req.OrganizationID != "" {
		p, err := e.prompts.BuildPromptVocabulary(ctx, req.OrganizationID, e.cfg.PromptFormat)
		if err != nil {
			e.log.WithError(err).WithField("organization_id", req.OrganizationID).
				Warn("vocabulary prompt unavailable, transcribing without it")
		} else {
			prompt = p
		}
	}

	sttReq := stt.Request{
		Language:       req.Language,
		Temperature:    req.Temperature,
		Prompt:         prompt,
		ResponseFormat: "verbose_json",
	}

	var result *stt.Result
	var lastErr error
	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, utils.E(utils.CodeTimeout, op, "cancelled while retrying", ctx.Err())
			case <-time.After(e.cfg.RetryBackoff * time.Duration(attempt)):
			}
			e.log.WithFields(logrus.Fields{"chunk_id": chunk.ID, "attempt": attempt}).
				Debug("retrying transcription pass")
		}

		callCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
		result, lastErr = e.stt.Transcribe(callCtx, audioSlice, sttReq)
		cancel()
		if lastErr == nil {
			break
		}
	}
	if lastErr != nil {
		return nil, utils.E(utils.CodeUnavailable, op, "transcription pass failed after retries", lastErr)
	}

	pass := &models.PassResult{
		ChunkID:     chunk.ID,
		Text:        strings.TrimSpace(result.Text),
		Temperature: req.Temperature,
		Language:    result.Language,
		Confidence:  scoreConfidence(result),
	}
	for i, s := range result.Segments {
		pass.Segments = append(pass.Segments, models.Segment{
			ID:    i,
			Start: s.Start + chunk.Start, // engine timestamps are slice-relative
			End:   s.End + chunk.Start,
			Text:  strings.TrimSpace(s.Text),
		})
	}
	return pass, nil
}

// scoreConfidence estimates how trustworthy a pass is from surface signals:
// transcript length, segment count, reported non-speech probability, and the
// regularity of inter-segment timing. Always in [0,1].
func scoreConfidence(result *stt.Result) float64 {
	conf := 0.5

	textLen := len(strings.TrimSpace(result.Text))
	switch {
	case textLen >= 200:
		conf += 0.15
	case textLen >= 50:
		conf += 0.1
	case textLen < 10:
		conf -= 0.2
	}

	if len(result.Segments) > 0 {
		conf += 0.05
	}

	// average non-speech probability, when the engine supplies it
	sumNS, haveNS := 0.0, false
	for _, s := range result.Segments {
		if s.NoSpeechProb > 0 {
			haveNS = true
		}
		sumNS += s.NoSpeechProb
	}
	if haveNS && len(result.Segments) > 0 {
		avg := sumNS / float64(len(result.Segments))
		conf += (0.5 - avg) * 0.3
	}

	// smaller, more uniform gaps between segments mean cleaner decoding
	if len(result.Segments) >= 2 {
		gaps := make([]float64, 0, len(result.Segments)-1)
		for i := 1; i < len(result.Segments); i++ {
			gap := result.Segments[i].Start - result.Segments[i-1].End
			if gap < 0 {
				gap = 0
			}
			gaps = append(gaps, gap)
		}
		mean := 0.0
		for _, g := range gaps {
			mean += g
		}
		mean /= float64(len(gaps))

		variance := 0.0
		for _, g := range gaps {
			variance += (g - mean) * (g - mean)
		}
		variance /= float64(len(gaps))

		if mean < 0.5 {
			conf += 0.1
		}
		if math.Sqrt(variance) < 0.3 {
			conf += 0.05
		}
	}

	return clamp01(conf)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
