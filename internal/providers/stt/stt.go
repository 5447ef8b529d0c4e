package stt

import "context"

// Request carries the decoding parameters for one transcription pass.
type Request struct {
	Language       string
	Temperature    float64
	Prompt         string
	ResponseFormat string // "verbose_json" or "text"
}

// ResultSegment is one timed interval returned by the engine.
type ResultSegment struct {
	Start        float64 `json:"start"`
	End          float64 `json:"end"`
	Text         string  `json:"text"`
	NoSpeechProb float64 `json:"no_speech_prob,omitempty"`
}

// Result is the raw engine output. The pipeline never assumes a specific
// vendor's error codes.
type Result struct {
	Text     string          `json:"text"`
	Segments []ResultSegment `json:"segments,omitempty"`
	Language string          `json:"language,omitempty"`
}

type Provider interface {
	Transcribe(ctx context.Context, audio []byte, req Request) (*Result, error)
	Close() error
}
