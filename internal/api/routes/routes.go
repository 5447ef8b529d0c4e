package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/meetlens/meetlens/internal/api/handlers"
)

type Deps struct {
	Transcripts *handlers.TranscriptHandler
	Vocabulary  *handlers.VocabularyHandler
	Accuracy    *handlers.AccuracyHandler
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	api := r.Group("/api/v1")

	api.POST("/organizations/:organization_id/transcriptions", d.Transcripts.Submit)
	api.GET("/organizations/:organization_id/transcriptions", d.Transcripts.List)
	api.GET("/transcriptions/:job_id", d.Transcripts.Get)
	api.GET("/transcriptions/:job_id/audio", d.Transcripts.AudioURL)

	api.GET("/organizations/:organization_id/vocabulary", d.Vocabulary.List)
	api.PUT("/organizations/:organization_id/vocabulary", d.Vocabulary.Upsert)
	api.DELETE("/organizations/:organization_id/vocabulary/:id", d.Vocabulary.Delete)

	api.POST("/organizations/:organization_id/corrections", d.Accuracy.Record)
	api.GET("/organizations/:organization_id/suggestions", d.Accuracy.Suggest)
	api.GET("/organizations/:organization_id/report", d.Accuracy.Report)
}
