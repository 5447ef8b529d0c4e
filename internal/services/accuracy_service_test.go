package services

import (
	"context"
	"io"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/meetlens/meetlens/internal/models"
	"github.com/meetlens/meetlens/internal/utils"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

type fakeMetricsRepo struct {
	rows     []models.AccuracyMetrics
	attached map[string][2]float64
}

func (f *fakeMetricsRepo) Append(_ context.Context, m *models.AccuracyMetrics) error {
	f.rows = append(f.rows, *m)
	return nil
}

func (f *fakeMetricsRepo) ListByWindow(_ context.Context, organizationID string, from, to time.Time) ([]models.AccuracyMetrics, error) {
	var out []models.AccuracyMetrics
	for _, r := range f.rows {
		if r.OrganizationID == organizationID && !r.CreatedAt.Before(from) && r.CreatedAt.Before(to) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeMetricsRepo) AttachCorrection(_ context.Context, transcriptionID string, wer, cer float64) error {
	if f.attached == nil {
		f.attached = map[string][2]float64{}
	}
	f.attached[transcriptionID] = [2]float64{wer, cer}
	return nil
}

type fakePatternRepo struct {
	patterns []models.CorrectionPattern
}

func (f *fakePatternRepo) Upsert(_ context.Context, p *models.CorrectionPattern) error {
	for i := range f.patterns {
		e := &f.patterns[i]
		if e.OrganizationID == p.OrganizationID && e.Original == p.Original && e.Corrected == p.Corrected {
			e.Occurrences += p.Occurrences
			e.LastSeenAt = p.LastSeenAt
			return nil
		}
	}
	f.patterns = append(f.patterns, *p)
	return nil
}

func (f *fakePatternRepo) FindByOriginal(_ context.Context, organizationID, original string) (*models.CorrectionPattern, error) {
	for i := range f.patterns {
		if f.patterns[i].OrganizationID == organizationID && f.patterns[i].Original == original {
			return &f.patterns[i], nil
		}
	}
	return nil, utils.ErrNotFound
}

func (f *fakePatternRepo) ListRecurring(_ context.Context, organizationID string, minOccurrences int64, limit int) ([]models.CorrectionPattern, error) {
	var out []models.CorrectionPattern
	for _, p := range f.patterns {
		if p.OrganizationID == organizationID && p.Occurrences >= minOccurrences {
			out = append(out, p)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeCorrectionRepo struct {
	records  []models.CorrectionRecord
	archived map[string]bool
}

func (f *fakeCorrectionRepo) Insert(_ context.Context, c *models.CorrectionRecord) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	if c.ID.IsZero() {
		c.ID = primitive.NewObjectID()
	}
	f.records = append(f.records, *c)
	return nil
}

func (f *fakeCorrectionRepo) ListPending(_ context.Context, organizationID string, _ int64) ([]models.CorrectionRecord, error) {
	var out []models.CorrectionRecord
	for _, r := range f.records {
		if r.OrganizationID == organizationID && !f.archived[r.ID.Hex()] {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeCorrectionRepo) Archive(_ context.Context, id any) error {
	// Like UpdateOne against a zero _id, archiving nothing is not an error.
	oid, ok := id.(primitive.ObjectID)
	if !ok || oid.IsZero() {
		return nil
	}
	if f.archived == nil {
		f.archived = map[string]bool{}
	}
	f.archived[oid.Hex()] = true
	return nil
}

func (f *fakeCorrectionRepo) CountByWindow(_ context.Context, organizationID string, from, to time.Time) (int64, error) {
	var n int64
	for _, r := range f.records {
		if r.OrganizationID == organizationID && !r.CreatedAt.Before(from) && r.CreatedAt.Before(to) {
			n++
		}
	}
	return n, nil
}

type accuracyFixture struct {
	svc         AccuracyService
	metricsRepo *fakeMetricsRepo
	patterns    *fakePatternRepo
	vocab       *fakeVocabularyRepo
	corrections *fakeCorrectionRepo
}

func newAccuracyFixture(vocabTerms []models.VocabularyTerm) *accuracyFixture {
	f := &accuracyFixture{
		metricsRepo: &fakeMetricsRepo{},
		patterns:    &fakePatternRepo{},
		vocab:       &fakeVocabularyRepo{terms: vocabTerms},
		corrections: &fakeCorrectionRepo{},
	}
	f.svc = NewAccuracyService(f.metricsRepo, f.patterns, f.vocab, f.corrections, nil, quietLogger())
	return f
}

func TestWordErrorRate(t *testing.T) {
	tests := []struct {
		name string
		hyp  string
		ref  string
		want float64
	}{
		{"identical", "az árbevétel nőtt", "az árbevétel nőtt", 0},
		{"one substitution of four", "a b c d", "a b c x", 0.25},
		{"empty hypothesis", "", "a b", 1},
		{"both empty", "", "", 0},
		{"capped at one", "x y z w q r s t", "a", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := wordErrorRate(tt.hyp, tt.ref); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("wordErrorRate(%q, %q) = %v, want %v", tt.hyp, tt.ref, got, tt.want)
			}
		})
	}
}

func TestCharacterErrorRate(t *testing.T) {
	// "árbevétel" vs "árbevetel": one rune substitution over 9 runes.
	got := characterErrorRate("árbevetel", "árbevétel")
	if math.Abs(got-1.0/9.0) > 1e-9 {
		t.Errorf("characterErrorRate = %v, want 1/9", got)
	}
	// Whitespace normalization: extra spaces are not errors.
	if got := characterErrorRate("a  b", "a b"); got != 0 {
		t.Errorf("characterErrorRate with extra spaces = %v, want 0", got)
	}
}

func TestRecordCorrectionAdjustsVocabulary(t *testing.T) {
	f := newAccuracyFixture([]models.VocabularyTerm{{
		ID: 1, OrganizationID: "org-1", Term: "árbevétel", ConfidenceScore: 0.5,
	}})

	err := f.svc.RecordCorrection(context.Background(), &models.CorrectionRecord{
		TranscriptionID: "job-1",
		OrganizationID:  "org-1",
		Original:        "a negyedéves ár bevétel nőtt",
		Corrected:       "a negyedéves árbevétel nőtt",
		Spans: []models.CorrectionSpan{{
			Original: "ár bevétel", Corrected: "árbevétel", Type: "substitution",
		}},
	})
	if err != nil {
		t.Fatalf("RecordCorrection() error = %v", err)
	}

	term, _ := f.vocab.GetByTerm(context.Background(), "org-1", "árbevétel")
	if math.Abs(term.ConfidenceScore-0.52) > 1e-9 {
		t.Errorf("ConfidenceScore = %v, want 0.52 after one confirmation", term.ConfidenceScore)
	}
	if f.vocab.usageBumps["árbevétel"] != 1 {
		t.Errorf("usageBumps = %v, want one usage bump", f.vocab.usageBumps)
	}
	if _, ok := f.metricsRepo.attached["job-1"]; !ok {
		t.Error("error rates were not attached to the metrics row")
	}
	if len(f.corrections.archived) != 1 {
		t.Error("correction record was not archived")
	}
}

func TestRecordCorrectionArchivesStoredRecord(t *testing.T) {
	f := newAccuracyFixture([]models.VocabularyTerm{{
		ID: 1, OrganizationID: "org-1", Term: "árbevétel", ConfidenceScore: 0.5,
	}})

	c := &models.CorrectionRecord{
		TranscriptionID: "job-1",
		OrganizationID:  "org-1",
		Original:        "az ár bevétel nőtt",
		Corrected:       "az árbevétel nőtt",
		Spans: []models.CorrectionSpan{{
			Original: "ár bevétel", Corrected: "árbevétel", Type: "substitution",
		}},
	}
	if err := f.svc.RecordCorrection(context.Background(), c); err != nil {
		t.Fatalf("RecordCorrection() error = %v", err)
	}

	// The archive must target the id the store generated, not the zero id,
	// otherwise the record stays pending and gets re-applied forever.
	if c.ID.IsZero() {
		t.Fatal("stored correction kept the zero id")
	}
	if !f.corrections.archived[c.ID.Hex()] {
		t.Fatal("stored correction was not archived under its generated id")
	}

	n, err := f.svc.ProcessPending(context.Background(), "org-1")
	if err != nil {
		t.Fatalf("ProcessPending() error = %v", err)
	}
	if n != 0 {
		t.Errorf("drain after archive processed = %d, want 0", n)
	}
	term, _ := f.vocab.GetByTerm(context.Background(), "org-1", "árbevétel")
	if math.Abs(term.ConfidenceScore-0.52) > 1e-9 {
		t.Errorf("ConfidenceScore = %v, want 0.52 (correction applied exactly once)", term.ConfidenceScore)
	}
}

func TestRecordCorrectionStepsDownFalseRecognition(t *testing.T) {
	f := newAccuracyFixture([]models.VocabularyTerm{{
		ID: 1, OrganizationID: "org-1", Term: "Kubernetes", ConfidenceScore: 0.12,
	}})

	err := f.svc.RecordCorrection(context.Background(), &models.CorrectionRecord{
		TranscriptionID: "job-2",
		OrganizationID:  "org-1",
		Original:        "a Kubernetes szerint",
		Corrected:       "a kubernyetes szerint",
		Spans: []models.CorrectionSpan{{
			Original: "Kubernetes", Corrected: "kubernyetes", Type: "substitution",
		}},
	})
	if err != nil {
		t.Fatalf("RecordCorrection() error = %v", err)
	}

	term, _ := f.vocab.GetByTerm(context.Background(), "org-1", "Kubernetes")
	// 0.12 - 0.05 would cross the floor; it clamps at 0.1.
	if math.Abs(term.ConfidenceScore-0.1) > 1e-9 {
		t.Errorf("ConfidenceScore = %v, want floor 0.1", term.ConfidenceScore)
	}
}

func TestRecordCorrectionMinesPatterns(t *testing.T) {
	f := newAccuracyFixture(nil)

	span := models.CorrectionSpan{Original: "ár bevétel", Corrected: "árbevétel", Type: "substitution"}
	for i := 0; i < 2; i++ {
		err := f.svc.RecordCorrection(context.Background(), &models.CorrectionRecord{
			TranscriptionID: "job-3",
			OrganizationID:  "org-1",
			Original:        "az ár bevétel nőtt",
			Corrected:       "az árbevétel nőtt",
			Spans:           []models.CorrectionSpan{span},
		})
		if err != nil {
			t.Fatalf("RecordCorrection() error = %v", err)
		}
	}

	recurring, err := f.patterns.ListRecurring(context.Background(), "org-1", 2, 0)
	if err != nil {
		t.Fatalf("ListRecurring() error = %v", err)
	}
	if len(recurring) != 1 {
		t.Fatalf("recurring patterns = %d, want 1", len(recurring))
	}
	if recurring[0].Original != "ár bevétel" || recurring[0].Occurrences != 2 {
		t.Errorf("pattern = %+v, want ár bevétel with 2 occurrences", recurring[0])
	}

	// A single occurrence never counts as recurring.
	once, _ := f.patterns.ListRecurring(context.Background(), "org-1", 2, 0)
	for _, p := range once {
		if p.Occurrences < 2 {
			t.Errorf("pattern %+v below the recurrence threshold", p)
		}
	}
}

func TestSuggest(t *testing.T) {
	f := newAccuracyFixture(nil)
	f.patterns.patterns = []models.CorrectionPattern{
		{OrganizationID: "org-1", Original: "ár bevétel", Corrected: "árbevétel", Occurrences: 3},
		{OrganizationID: "org-1", Original: "mély tanulás", Corrected: "mélytanulás", Occurrences: 1},
	}

	out, err := f.svc.Suggest(context.Background(), "org-1", "Az ár bevétel és a mély tanulás is szóba került.")
	if err != nil {
		t.Fatalf("Suggest() error = %v", err)
	}
	// Only the recurring pattern qualifies.
	if len(out) != 1 || out[0].Corrected != "árbevétel" {
		t.Errorf("Suggest() = %+v, want only the recurring árbevétel pattern", out)
	}

	out, err = f.svc.Suggest(context.Background(), "org-1", "semmi ismerős")
	if err != nil {
		t.Fatalf("Suggest() error = %v", err)
	}
	if len(out) != 0 {
		t.Errorf("Suggest() = %+v, want none", out)
	}

	// Selecting exactly a known original surfaces the pattern even before
	// it recurs.
	out, err = f.svc.Suggest(context.Background(), "org-1", "Mély Tanulás")
	if err != nil {
		t.Fatalf("Suggest() error = %v", err)
	}
	if len(out) != 1 || out[0].Corrected != "mélytanulás" {
		t.Errorf("Suggest() = %+v, want the exact mélytanulás pattern", out)
	}

	// No duplicate when the exact hit is also recurring.
	out, err = f.svc.Suggest(context.Background(), "org-1", "ár bevétel")
	if err != nil {
		t.Fatalf("Suggest() error = %v", err)
	}
	if len(out) != 1 || out[0].Corrected != "árbevétel" {
		t.Errorf("Suggest() = %+v, want the árbevétel pattern once", out)
	}
}

func TestRecordCorrectionValidation(t *testing.T) {
	f := newAccuracyFixture(nil)

	if err := f.svc.RecordCorrection(context.Background(), nil); err == nil {
		t.Error("nil correction must fail")
	}
	if err := f.svc.RecordCorrection(context.Background(), &models.CorrectionRecord{
		TranscriptionID: "job", OrganizationID: "org",
	}); err == nil {
		t.Error("correction without texts must fail")
	}
}

func TestProcessPending(t *testing.T) {
	f := newAccuracyFixture(nil)

	for i := 0; i < 3; i++ {
		_ = f.corrections.Insert(context.Background(), &models.CorrectionRecord{
			TranscriptionID: "job-4",
			OrganizationID:  "org-1",
			Original:        "rossz szöveg",
			Corrected:       "jó szöveg",
		})
	}

	n, err := f.svc.ProcessPending(context.Background(), "org-1")
	if err != nil {
		t.Fatalf("ProcessPending() error = %v", err)
	}
	if n != 3 {
		t.Errorf("processed = %d, want 3", n)
	}

	n, err = f.svc.ProcessPending(context.Background(), "org-1")
	if err != nil {
		t.Fatalf("ProcessPending() error = %v", err)
	}
	if n != 0 {
		t.Errorf("second drain processed = %d, want 0", n)
	}
}

func TestReport(t *testing.T) {
	f := newAccuracyFixture([]models.VocabularyTerm{
		{OrganizationID: "org-1", Term: "árbevétel", ConfidenceScore: 0.95},
		{OrganizationID: "org-1", Term: "mélytanulás", ConfidenceScore: 0.2},
	})

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	wer := 0.3
	rows := []models.AccuracyMetrics{
		{OrganizationID: "org-1", AudioQuality: models.QualityPoor, ConfidenceScore: 0.4, WordErrorRate: &wer, UserCorrections: 1, CreatedAt: base},
		{OrganizationID: "org-1", AudioQuality: models.QualityGood, ConfidenceScore: 0.8, CreatedAt: base.Add(time.Hour)},
		{OrganizationID: "org-1", AudioQuality: models.QualityPoor, ConfidenceScore: 0.3, PassCount: 1, CreatedAt: base.Add(2 * time.Hour)},
	}
	for i := range rows {
		_ = f.metricsRepo.Append(context.Background(), &rows[i])
	}
	_ = f.corrections.Insert(context.Background(), &models.CorrectionRecord{
		TranscriptionID: "job-5",
		OrganizationID:  "org-1",
		Original:        "rossz",
		Corrected:       "jó",
		CreatedAt:       base.Add(time.Minute),
	})

	report, err := f.svc.Report(context.Background(), "org-1", base, base.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("Report() error = %v", err)
	}
	if report.TotalJobs != 3 {
		t.Errorf("TotalJobs = %d, want 3", report.TotalJobs)
	}
	if report.TotalCorrections != 1 {
		t.Errorf("TotalCorrections = %d, want 1 from the correction store", report.TotalCorrections)
	}
	if math.Abs(report.AverageWER-0.3) > 1e-9 {
		t.Errorf("AverageWER = %v, want 0.3 (only rows with a WER count)", report.AverageWER)
	}
	if math.Abs(report.AverageConfidence-0.5) > 1e-9 {
		t.Errorf("AverageConfidence = %v, want 0.5", report.AverageConfidence)
	}
	if report.QualityDistribution[models.QualityPoor] != 2 {
		t.Errorf("QualityDistribution = %v, want 2 poor", report.QualityDistribution)
	}
	if len(report.WellRecognizedTerms) != 1 || report.WellRecognizedTerms[0] != "árbevétel" {
		t.Errorf("WellRecognizedTerms = %v", report.WellRecognizedTerms)
	}
	if len(report.PoorlyRecognizedTerms) != 1 || report.PoorlyRecognizedTerms[0] != "mélytanulás" {
		t.Errorf("PoorlyRecognizedTerms = %v", report.PoorlyRecognizedTerms)
	}
	// Two of three jobs were poor quality, so the audio recommendation fires.
	found := false
	for _, r := range report.Recommendations {
		if strings.Contains(r, "poor quality") {
			found = true
		}
	}
	if !found {
		t.Errorf("Recommendations = %v, want a poor-quality warning", report.Recommendations)
	}
}
