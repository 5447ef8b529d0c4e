package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/meetlens/meetlens/internal/models"
	"github.com/meetlens/meetlens/internal/services"
	"github.com/meetlens/meetlens/internal/utils"
)

// AccuracyHandler receives reviewer corrections and serves suggestions and
// accuracy reports.
type AccuracyHandler struct {
	svc services.AccuracyService
}

func NewAccuracyHandler(svc services.AccuracyService) *AccuracyHandler {
	return &AccuracyHandler{svc: svc}
}

type RecordCorrectionRequest struct {
	TranscriptionID string                  `json:"transcription_id" binding:"required"`
	Original        string                  `json:"original" binding:"required"`
	Corrected       string                  `json:"corrected" binding:"required"`
	Spans           []models.CorrectionSpan `json:"spans"`
}

func (h *AccuracyHandler) Record(c *gin.Context) {
	const op = "AccuracyHandler.Record"

	orgID, ok := requireParam(c, "organization_id")
	if !ok {
		return
	}

	var req RecordCorrectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "invalid request body", err))
		return
	}

	rec := &models.CorrectionRecord{
		TranscriptionID: req.TranscriptionID,
		OrganizationID:  orgID,
		Original:        req.Original,
		Corrected:       req.Corrected,
		Spans:           req.Spans,
	}
	if err := h.svc.RecordCorrection(c.Request.Context(), rec); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": rec.ID.Hex(), "status": "applied"})
}

func (h *AccuracyHandler) Suggest(c *gin.Context) {
	const op = "AccuracyHandler.Suggest"

	orgID, ok := requireParam(c, "organization_id")
	if !ok {
		return
	}

	text := c.Query("text")
	if text == "" {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "missing query parameter 'text'", nil))
		return
	}

	out, err := h.svc.Suggest(c.Request.Context(), orgID, text)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"suggestions": out})
}

func (h *AccuracyHandler) Report(c *gin.Context) {
	const op = "AccuracyHandler.Report"

	orgID, ok := requireParam(c, "organization_id")
	if !ok {
		return
	}

	to := time.Now().UTC()
	from := to.AddDate(0, 0, -7)
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(c, utils.E(utils.CodeInvalidArgument, op, "'from' must be RFC3339", err))
			return
		}
		from = t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(c, utils.E(utils.CodeInvalidArgument, op, "'to' must be RFC3339", err))
			return
		}
		to = t
	}

	report, err := h.svc.Report(c.Request.Context(), orgID, from, to)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, report)
}
