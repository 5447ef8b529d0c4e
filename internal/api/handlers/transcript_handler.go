package handlers

import (
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/meetlens/meetlens/internal/models"
	mongorepo "github.com/meetlens/meetlens/internal/repositories/mongo"
	"github.com/meetlens/meetlens/internal/storage"
	"github.com/meetlens/meetlens/internal/utils"
)

const signedURLTTL = 15 * time.Minute

var audioContentTypes = map[string]string{
	".wav":  "audio/wav",
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".ogg":  "audio/ogg",
	".flac": "audio/flac",
}

// TranscriptHandler accepts recordings, enqueues transcription jobs, and
// serves the resulting documents.
type TranscriptHandler struct {
	transcripts mongorepo.TranscriptRepository
	uploads     storage.Uploader
	signer      storage.Signer
	queue       *redis.Client
	stream      string
}

func NewTranscriptHandler(
	transcripts mongorepo.TranscriptRepository,
	uploads storage.Uploader,
	signer storage.Signer,
	queue *redis.Client,
	stream string,
) *TranscriptHandler {
	if stream == "" {
		stream = "transcriptions:stream"
	}
	return &TranscriptHandler{
		transcripts: transcripts,
		uploads:     uploads,
		signer:      signer,
		queue:       queue,
		stream:      stream,
	}
}

type SubmitTranscriptionResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

func (h *TranscriptHandler) Submit(c *gin.Context) {
	const op = "TranscriptHandler.Submit"

	orgID, ok := requireParam(c, "organization_id")
	if !ok {
		return
	}

	fh, err := c.FormFile("file")
	if err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "missing multipart field 'file'", err))
		return
	}

	ext := strings.ToLower(filepath.Ext(fh.Filename))
	contentType, ok := audioContentTypes[ext]
	if !ok {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "unsupported audio format "+ext, nil))
		return
	}
	if fh.Size <= 0 || fh.Size > 512<<20 {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "file too large (max 512MB)", nil))
		return
	}

	file, err := fh.Open()
	if err != nil {
		writeError(c, utils.E(utils.CodeInternal, op, "failed to open upload", err))
		return
	}
	defer file.Close()

	jobID := uuid.NewString()
	objectPath := "uploads/" + orgID + "/" + jobID + ext

	if _, err := h.uploads.Upload(c.Request.Context(), objectPath, contentType, file); err != nil {
		writeError(c, utils.E(utils.CodeUnavailable, op, "failed to store recording", err))
		return
	}

	duration, _ := strconv.ParseFloat(c.PostForm("duration_seconds"), 64)
	language := c.PostForm("language")
	multiPass := c.PostForm("multi_pass") == "true"

	t := &models.Transcription{
		JobID:           jobID,
		OrganizationID:  orgID,
		ObjectPath:      objectPath,
		Language:        language,
		Status:          "queued",
		DurationSeconds: duration,
	}
	if err := h.transcripts.Create(c.Request.Context(), t); err != nil {
		writeError(c, utils.E(utils.CodeInternal, op, "failed to create transcription record", err))
		return
	}

	err = h.queue.XAdd(c.Request.Context(), &redis.XAddArgs{
		Stream: h.stream,
		Values: map[string]any{
			"job_id":           jobID,
			"object_path":      objectPath,
			"organization_id":  orgID,
			"language":         language,
			"duration_seconds": strconv.FormatFloat(duration, 'f', -1, 64),
			"multi_pass":       strconv.FormatBool(multiPass),
		},
	}).Err()
	if err != nil {
		writeError(c, utils.E(utils.CodeUnavailable, op, "failed to enqueue transcription job", err))
		return
	}

	c.JSON(http.StatusAccepted, SubmitTranscriptionResponse{
		JobID:  jobID,
		Status: "queued",
	})
}

func (h *TranscriptHandler) Get(c *gin.Context) {
	const op = "TranscriptHandler.Get"

	jobID, ok := requireParam(c, "job_id")
	if !ok {
		return
	}

	t, err := h.transcripts.GetByJobID(c.Request.Context(), jobID)
	if err != nil {
		if err == utils.ErrNotFound {
			writeError(c, utils.E(utils.CodeNotFound, op, "transcription not found", err))
			return
		}
		writeError(c, utils.E(utils.CodeInternal, op, "failed to load transcription", err))
		return
	}

	c.JSON(http.StatusOK, t)
}

func (h *TranscriptHandler) List(c *gin.Context) {
	const op = "TranscriptHandler.List"

	orgID, ok := requireParam(c, "organization_id")
	if !ok {
		return
	}

	limit, _ := strconv.ParseInt(c.Query("limit"), 10, 64)
	out, err := h.transcripts.ListByOrganization(c.Request.Context(), orgID, limit)
	if err != nil {
		writeError(c, utils.E(utils.CodeInternal, op, "failed to list transcriptions", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"transcriptions": out})
}

type AudioURLResponse struct {
	URL       string `json:"url"`
	ExpiresIn int    `json:"expires_in_seconds"`
}

// AudioURL hands out a short-lived download link for the stored recording.
func (h *TranscriptHandler) AudioURL(c *gin.Context) {
	const op = "TranscriptHandler.AudioURL"

	jobID, ok := requireParam(c, "job_id")
	if !ok {
		return
	}

	t, err := h.transcripts.GetByJobID(c.Request.Context(), jobID)
	if err != nil {
		if err == utils.ErrNotFound {
			writeError(c, utils.E(utils.CodeNotFound, op, "transcription not found", err))
			return
		}
		writeError(c, utils.E(utils.CodeInternal, op, "failed to load transcription", err))
		return
	}
	if t.ObjectPath == "" {
		writeError(c, utils.E(utils.CodeNotFound, op, "no stored recording for this job", nil))
		return
	}

	url, err := h.signer.SignedGetURL(c.Request.Context(), t.ObjectPath, signedURLTTL)
	if err != nil {
		writeError(c, utils.E(utils.CodeUnavailable, op, "failed to sign recording URL", err))
		return
	}

	c.JSON(http.StatusOK, AudioURLResponse{
		URL:       url,
		ExpiresIn: int(signedURLTTL.Seconds()),
	})
}
