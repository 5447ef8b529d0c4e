package llm

import (
	"context"
	"errors"
)

// ErrMalformedPayload means the engine answered but the payload did not
// validate. Callers keep the pre-enhancement text when they see it.
var ErrMalformedPayload = errors.New("llm: malformed enhancement payload")

// Correction is one edit the engine claims to have made.
type Correction struct {
	Original  string `json:"original"`
	Corrected string `json:"corrected"`
	Reason    string `json:"reason,omitempty"`
}

// EnhanceResult is the validated engine output.
type EnhanceResult struct {
	CorrectedText string       `json:"corrected_text"`
	Corrections   []Correction `json:"corrections,omitempty"`
}

type Provider interface {
	// Enhance rewrites transcript text under the given system context.
	Enhance(ctx context.Context, text, systemContext string) (*EnhanceResult, error)
	Close() error
}
