package models

// QualityLevel is the categorical audio quality assigned by preprocessing.
type QualityLevel string

const (
	QualityExcellent QualityLevel = "excellent"
	QualityGood      QualityLevel = "good"
	QualityFair      QualityLevel = "fair"
	QualityPoor      QualityLevel = "poor"
)

// AudioAsset holds the raw audio owned by a job while it is being processed.
type AudioAsset struct {
	Data            []byte  `json:"-"`
	DurationSeconds float64 `json:"duration_seconds"`
	SampleRate      int     `json:"sample_rate"`
}

// QualityMetrics is produced once per job by the preprocessor and read-only after.
type QualityMetrics struct {
	SNRDB          float64      `json:"snr_db"`
	PeakDB         float64      `json:"peak_db"`
	AverageDB      float64      `json:"average_db"`
	SilencePercent float64      `json:"silence_percent"`
	Clipping       bool         `json:"clipping"`
	Quality        QualityLevel `json:"quality"`
}

// VoiceSegment is a candidate speech interval, a hint only, not a transcript segment.
type VoiceSegment struct {
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Confidence float64 `json:"confidence"`
}
