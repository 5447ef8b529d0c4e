package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/meetlens/meetlens/internal/metrics"
	"github.com/meetlens/meetlens/internal/models"
	mongorepo "github.com/meetlens/meetlens/internal/repositories/mongo"
	pgrepo "github.com/meetlens/meetlens/internal/repositories/postgres"
	"github.com/meetlens/meetlens/internal/utils"
)

const (
	confidenceStepDown  = -0.05
	confidenceStepUp    = 0.02
	confidenceFloor     = 0.1
	confidenceCap       = 1.0
	patternMinRecurring = 2
	maxPatternExamples  = 5
	maxReportErrors     = 10
)

// AccuracyService turns reviewer corrections into error rates, mined
// patterns, and vocabulary confidence adjustments, and aggregates it all
// into reports.
type AccuracyService interface {
	RecordCorrection(ctx context.Context, c *models.CorrectionRecord) error
	ProcessPending(ctx context.Context, organizationID string) (int, error)
	Suggest(ctx context.Context, organizationID, text string) ([]models.PatternSummary, error)
	Report(ctx context.Context, organizationID string, from, to time.Time) (*models.AccuracyReport, error)
}

type accuracyService struct {
	metricsRepo pgrepo.MetricsRepository
	patterns    pgrepo.PatternRepository
	vocabulary  pgrepo.VocabularyRepository
	corrections mongorepo.CorrectionRepository
	prom        *metrics.Metrics
	log         *logrus.Entry
}

func NewAccuracyService(
	metricsRepo pgrepo.MetricsRepository,
	patterns pgrepo.PatternRepository,
	vocabulary pgrepo.VocabularyRepository,
	corrections mongorepo.CorrectionRepository,
	prom *metrics.Metrics,
	log *logrus.Logger,
) AccuracyService {
	return &accuracyService{
		metricsRepo: metricsRepo,
		patterns:    patterns,
		vocabulary:  vocabulary,
		corrections: corrections,
		prom:        prom,
		log:         log.WithField("component", "accuracy"),
	}
}

// RecordCorrection stores the correction, backfills WER/CER onto the job's
// metrics row, mines error patterns from the edit spans, adjusts vocabulary
// confidence, and archives the record.
func (s *accuracyService) RecordCorrection(ctx context.Context, c *models.CorrectionRecord) error {
	const op = "AccuracyService.RecordCorrection"

	if c == nil || c.TranscriptionID == "" || c.OrganizationID == "" {
		return utils.E(utils.CodeInvalidArgument, op, "transcription_id and organization_id are required", nil)
	}
	if c.Original == "" || c.Corrected == "" {
		return utils.E(utils.CodeInvalidArgument, op, "original and corrected texts are required", nil)
	}

	if err := s.corrections.Insert(ctx, c); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to store correction", err)
	}

	if err := s.apply(ctx, c); err != nil {
		return err
	}

	if err := s.corrections.Archive(ctx, c.ID); err != nil {
		s.log.WithError(err).Warn("correction processed but not archived")
	}
	s.prom.CorrectionRecorded()
	return nil
}

// ProcessPending drains unarchived corrections, applying each one. Returns
// the number processed. Used by the worker to catch corrections submitted
// while the service was down.
func (s *accuracyService) ProcessPending(ctx context.Context, organizationID string) (int, error) {
	const op = "AccuracyService.ProcessPending"

	pending, err := s.corrections.ListPending(ctx, organizationID, 0)
	if err != nil {
		return 0, utils.E(utils.CodeInternal, op, "failed to list pending corrections", err)
	}

	processed := 0
	for i := range pending {
		c := &pending[i]
		if err := s.apply(ctx, c); err != nil {
			s.log.WithError(err).WithField("correction_id", c.ID.Hex()).Warn("skipping correction")
			continue
		}
		if err := s.corrections.Archive(ctx, c.ID); err != nil {
			s.log.WithError(err).Warn("correction processed but not archived")
		}
		processed++
	}
	return processed, nil
}

func (s *accuracyService) apply(ctx context.Context, c *models.CorrectionRecord) error {
	const op = "AccuracyService.apply"

	wer := wordErrorRate(c.Original, c.Corrected)
	cer := characterErrorRate(c.Original, c.Corrected)
	if err := s.metricsRepo.AttachCorrection(ctx, c.TranscriptionID, wer, cer); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to attach error rates", err)
	}

	for _, span := range c.Spans {
		if span.Original == "" && span.Corrected == "" {
			continue
		}
		s.minePattern(ctx, c, span)
		s.adjustVocabulary(ctx, c.OrganizationID, span)
	}
	return nil
}

func (s *accuracyService) minePattern(ctx context.Context, c *models.CorrectionRecord, span models.CorrectionSpan) {
	examples, _ := json.Marshal([]string{snippetAround(c.Corrected, span.Corrected)})
	p := &models.CorrectionPattern{
		OrganizationID: c.OrganizationID,
		Original:       strings.ToLower(strings.TrimSpace(span.Original)),
		Corrected:      strings.TrimSpace(span.Corrected),
		Occurrences:    1,
		Examples:       examples,
	}
	if p.Original == "" || p.Corrected == "" {
		return
	}
	if err := s.patterns.Upsert(ctx, p); err != nil {
		s.log.WithError(err).Warn("failed to record correction pattern")
	}
}

// adjustVocabulary nudges term confidence from one edit span: a term the
// reviewer put in was missed by the engine and steps up; a term the reviewer
// removed was a false recognition and steps down.
func (s *accuracyService) adjustVocabulary(ctx context.Context, organizationID string, span models.CorrectionSpan) {
	if t, err := s.vocabulary.GetByTerm(ctx, organizationID, strings.TrimSpace(span.Corrected)); err == nil {
		_ = s.vocabulary.AdjustConfidence(ctx, organizationID, t.Term, confidenceStepUp, confidenceFloor, confidenceCap)
		_ = s.vocabulary.IncrementUsage(ctx, organizationID, t.Term)
	}
	if t, err := s.vocabulary.GetByTerm(ctx, organizationID, strings.TrimSpace(span.Original)); err == nil {
		_ = s.vocabulary.AdjustConfidence(ctx, organizationID, t.Term, confidenceStepDown, confidenceFloor, confidenceCap)
	}
}

// Suggest surfaces recurring mined patterns whose original substring occurs
// in text, so reviewers see the likely fixes before editing. An exact earlier
// correction of the selected text is suggested even before it recurs.
func (s *accuracyService) Suggest(ctx context.Context, organizationID, text string) ([]models.PatternSummary, error) {
	const op = "AccuracyService.Suggest"

	lower := strings.ToLower(text)
	var out []models.PatternSummary

	exact, err := s.patterns.FindByOriginal(ctx, organizationID, strings.TrimSpace(lower))
	if err == nil {
		out = append(out, models.PatternSummary{
			Original:    exact.Original,
			Corrected:   exact.Corrected,
			Occurrences: exact.Occurrences,
		})
	}

	recurring, err := s.patterns.ListRecurring(ctx, organizationID, patternMinRecurring, 0)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to load patterns", err)
	}

	for _, p := range recurring {
		if exact != nil && p.Original == exact.Original && p.Corrected == exact.Corrected {
			continue
		}
		if p.Original != "" && strings.Contains(lower, p.Original) {
			out = append(out, models.PatternSummary{
				Original:    p.Original,
				Corrected:   p.Corrected,
				Occurrences: p.Occurrences,
			})
		}
	}
	return out, nil
}

// Report aggregates the accuracy rows in [from, to) with the recurring
// error patterns and per-term recognition health.
func (s *accuracyService) Report(ctx context.Context, organizationID string, from, to time.Time) (*models.AccuracyReport, error) {
	const op = "AccuracyService.Report"

	rows, err := s.metricsRepo.ListByWindow(ctx, organizationID, from, to)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to load accuracy metrics", err)
	}

	report := &models.AccuracyReport{
		OrganizationID:      organizationID,
		From:                from,
		To:                  to,
		TotalJobs:           len(rows),
		QualityDistribution: map[models.QualityLevel]int{},
	}

	var werSum, confSum float64
	werCount := 0
	for i := range rows {
		r := &rows[i]
		if r.WordErrorRate != nil {
			werSum += *r.WordErrorRate
			werCount++
		}
		confSum += r.ConfidenceScore
		report.TotalCorrections += r.UserCorrections
		if r.AudioQuality != "" {
			report.QualityDistribution[r.AudioQuality]++
		}
	}
	if werCount > 0 {
		report.AverageWER = werSum / float64(werCount)
	}
	// The correction store is authoritative for the window; the per-row sum
	// only covers jobs that still have a metrics row.
	if n, cerr := s.corrections.CountByWindow(ctx, organizationID, from, to); cerr == nil {
		report.TotalCorrections = int(n)
	} else {
		s.log.WithError(cerr).Warn("correction count unavailable for report")
	}
	if len(rows) > 0 {
		report.AverageConfidence = confSum / float64(len(rows))
	}

	if patterns, perr := s.patterns.ListRecurring(ctx, organizationID, patternMinRecurring, maxReportErrors); perr == nil {
		for _, p := range patterns {
			report.TopErrors = append(report.TopErrors, models.PatternSummary{
				Original:    p.Original,
				Corrected:   p.Corrected,
				Occurrences: p.Occurrences,
			})
		}
	} else {
		s.log.WithError(perr).Warn("recurring patterns unavailable for report")
	}

	if terms, verr := s.vocabulary.ListByOrganization(ctx, organizationID); verr == nil {
		for _, t := range terms {
			switch {
			case t.ConfidenceScore > 0.8:
				report.WellRecognizedTerms = append(report.WellRecognizedTerms, t.Term)
			case t.ConfidenceScore < 0.5:
				report.PoorlyRecognizedTerms = append(report.PoorlyRecognizedTerms, t.Term)
			}
		}
	} else {
		s.log.WithError(verr).Warn("vocabulary unavailable for report")
	}

	report.Recommendations = recommend(report, rows)
	return report, nil
}

func recommend(report *models.AccuracyReport, rows []models.AccuracyMetrics) []string {
	var out []string

	if report.TotalJobs > 0 {
		poor := report.QualityDistribution[models.QualityPoor]
		if rate := float64(poor) / float64(report.TotalJobs); rate > 0.2 {
			out = append(out, fmt.Sprintf("%.0f%% of recordings were classified as poor quality; check microphone placement and room noise", rate*100))
		}
	}
	if report.AverageWER > 0.25 {
		out = append(out, "average word error rate is above 25%; review the vocabulary for missing domain terms")
	}
	if len(report.PoorlyRecognizedTerms) > 3 {
		out = append(out, fmt.Sprintf("%d vocabulary terms have low recognition confidence; add phonetic hints or variations for them", len(report.PoorlyRecognizedTerms)))
	}

	multiPassCandidates := 0
	for i := range rows {
		if rows[i].PassCount <= 1 && rows[i].ConfidenceScore < 0.5 {
			multiPassCandidates++
		}
	}
	if multiPassCandidates > 0 && report.TotalJobs > 0 &&
		float64(multiPassCandidates)/float64(report.TotalJobs) > 0.3 {
		out = append(out, "many single-pass jobs finished with low confidence; enable multi-pass transcription for this organization")
	}
	return out
}

// snippetAround returns corrected-side context for a pattern example.
func snippetAround(text, needle string) string {
	idx := strings.Index(text, needle)
	if idx < 0 {
		return needle
	}
	lo := idx - 40
	if lo < 0 {
		lo = 0
	}
	hi := idx + len(needle) + 40
	if hi > len(text) {
		hi = len(text)
	}
	// Snap to rune boundaries.
	for lo > 0 && lo < len(text) && (text[lo]&0xC0) == 0x80 {
		lo--
	}
	for hi < len(text) && (text[hi]&0xC0) == 0x80 {
		hi++
	}
	return text[lo:hi]
}
