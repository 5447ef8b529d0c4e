package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/meetlens/meetlens/internal/models"
	"github.com/meetlens/meetlens/internal/services"
	"github.com/meetlens/meetlens/internal/utils"
)

// VocabularyHandler exposes the admin edits on organization vocabularies.
type VocabularyHandler struct {
	svc services.VocabularyService
}

func NewVocabularyHandler(svc services.VocabularyService) *VocabularyHandler {
	return &VocabularyHandler{svc: svc}
}

type UpsertTermRequest struct {
	Term            string   `json:"term" binding:"required"`
	Variations      []string `json:"variations"`
	Category        string   `json:"category"`
	PhoneticHint    string   `json:"phonetic_hint"`
	ContextHints    []string `json:"context_hints"`
	ConfidenceScore float64  `json:"confidence_score"`
}

func (h *VocabularyHandler) Upsert(c *gin.Context) {
	const op = "VocabularyHandler.Upsert"

	orgID, ok := requireParam(c, "organization_id")
	if !ok {
		return
	}

	var req UpsertTermRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "invalid request body", err))
		return
	}

	t := &models.VocabularyTerm{
		OrganizationID:  orgID,
		Term:            req.Term,
		Variations:      req.Variations,
		Category:        req.Category,
		PhoneticHint:    req.PhoneticHint,
		ContextHints:    req.ContextHints,
		ConfidenceScore: req.ConfidenceScore,
	}
	if err := h.svc.Upsert(c.Request.Context(), t); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, t)
}

func (h *VocabularyHandler) List(c *gin.Context) {
	orgID, ok := requireParam(c, "organization_id")
	if !ok {
		return
	}

	terms, err := h.svc.List(c.Request.Context(), orgID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"terms": terms})
}

func (h *VocabularyHandler) Delete(c *gin.Context) {
	const op = "VocabularyHandler.Delete"

	orgID, ok := requireParam(c, "organization_id")
	if !ok {
		return
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "id must be numeric", err))
		return
	}

	if err := h.svc.Delete(c.Request.Context(), orgID, uint(id)); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}
