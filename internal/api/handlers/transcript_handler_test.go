package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/meetlens/meetlens/internal/models"
	"github.com/meetlens/meetlens/internal/utils"
)

type fakeTranscriptRepo struct {
	byJob map[string]*models.Transcription
}

func (f *fakeTranscriptRepo) Create(_ context.Context, t *models.Transcription) error {
	if f.byJob == nil {
		f.byJob = map[string]*models.Transcription{}
	}
	f.byJob[t.JobID] = t
	return nil
}

func (f *fakeTranscriptRepo) GetByJobID(_ context.Context, jobID string) (*models.Transcription, error) {
	if t, ok := f.byJob[jobID]; ok {
		return t, nil
	}
	return nil, utils.ErrNotFound
}

func (f *fakeTranscriptRepo) SetProgress(context.Context, string, float64) error { return nil }

func (f *fakeTranscriptRepo) Complete(context.Context, *models.Transcription) error { return nil }

func (f *fakeTranscriptRepo) Fail(context.Context, string, string) error { return nil }

func (f *fakeTranscriptRepo) ListByOrganization(_ context.Context, organizationID string, _ int64) ([]models.Transcription, error) {
	var out []models.Transcription
	for _, t := range f.byJob {
		if t.OrganizationID == organizationID {
			out = append(out, *t)
		}
	}
	return out, nil
}

type fakeSigner struct{}

func (fakeSigner) SignedGetURL(_ context.Context, objectName string, _ time.Duration) (string, error) {
	return "https://signed.example.com/" + objectName, nil
}

func newTranscriptRouter(repo *fakeTranscriptRepo) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewTranscriptHandler(repo, nil, fakeSigner{}, nil, "")

	r := gin.New()
	r.GET("/transcriptions/:job_id", h.Get)
	r.GET("/transcriptions/:job_id/audio", h.AudioURL)
	r.GET("/organizations/:organization_id/transcriptions", h.List)
	return r
}

func TestTranscriptHandlerGet(t *testing.T) {
	repo := &fakeTranscriptRepo{}
	_ = repo.Create(context.Background(), &models.Transcription{
		JobID:          "job-1",
		OrganizationID: "org-1",
		Status:         "completed",
		Text:           "az árbevétel nőtt",
	})
	r := newTranscriptRouter(repo)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/transcriptions/job-1", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var got models.Transcription
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if got.Text != "az árbevétel nőtt" {
		t.Errorf("Text = %q", got.Text)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/transcriptions/unknown", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("status for unknown job = %d, want 404", w.Code)
	}
}

func TestTranscriptHandlerAudioURL(t *testing.T) {
	repo := &fakeTranscriptRepo{}
	_ = repo.Create(context.Background(), &models.Transcription{
		JobID:          "job-1",
		OrganizationID: "org-1",
		ObjectPath:     "uploads/org-1/job-1.wav",
	})
	_ = repo.Create(context.Background(), &models.Transcription{
		JobID:          "job-2",
		OrganizationID: "org-1",
	})
	r := newTranscriptRouter(repo)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/transcriptions/job-1/audio", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var got AudioURLResponse
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if got.URL != "https://signed.example.com/uploads/org-1/job-1.wav" {
		t.Errorf("URL = %q", got.URL)
	}

	// No stored recording means nothing to sign.
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/transcriptions/job-2/audio", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("status without object path = %d, want 404", w.Code)
	}
}

func TestTranscriptHandlerList(t *testing.T) {
	repo := &fakeTranscriptRepo{}
	_ = repo.Create(context.Background(), &models.Transcription{JobID: "job-1", OrganizationID: "org-1"})
	_ = repo.Create(context.Background(), &models.Transcription{JobID: "job-2", OrganizationID: "org-2"})
	r := newTranscriptRouter(repo)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/organizations/org-1/transcriptions", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var got struct {
		Transcriptions []models.Transcription `json:"transcriptions"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if len(got.Transcriptions) != 1 || got.Transcriptions[0].JobID != "job-1" {
		t.Errorf("transcriptions = %+v, want only org-1 jobs", got.Transcriptions)
	}
}
