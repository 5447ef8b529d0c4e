package llm

import (
	"context"
	"encoding/json"
	"strings"

	vertexgenai "cloud.google.com/go/vertexai/genai"
	"google.golang.org/api/iterator"
)

type VertexGemini struct {
	client *vertexgenai.Client
	model  *vertexgenai.GenerativeModel
}

func NewVertexGemini(ctx context.Context, projectID, location, modelName string) (*VertexGemini, error) {
	c, err := vertexgenai.NewClient(ctx, projectID, location)
	if err != nil {
		return nil, err
	}

	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}

	m := c.GenerativeModel(modelName)
	return &VertexGemini{client: c, model: m}, nil
}

func (v *VertexGemini) Close() error { return v.client.Close() }

// geminiPayload is the JSON shape the model is instructed to emit.
type geminiPayload struct {
	CorrectedText string       `json:"corrected_text"`
	Corrections   []Correction `json:"corrections"`
}

func (v *VertexGemini) Enhance(ctx context.Context, text, systemContext string) (*EnhanceResult, error) {
	prompt := systemContext +
		"\n\nCorrect the transcript below. Respond with JSON only:" +
		` {"corrected_text": "...", "corrections": [{"original": "...", "corrected": "...", "reason": "..."}]}` +
		"\n\nTranscript:\n" + text

	it := v.model.GenerateContentStream(ctx, vertexgenai.Text(prompt))

	var raw strings.Builder
	for {
		resp, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		for _, cand := range resp.Candidates {
			if cand.Content == nil {
				continue
			}
			for _, part := range cand.Content.Parts {
				if t, ok := part.(vertexgenai.Text); ok {
					raw.WriteString(string(t))
				}
			}
		}
	}

	return parsePayload(raw.String())
}

// parsePayload validates the model output. Anything that does not decode
// into the expected shape maps to ErrMalformedPayload, never to a panic or
// a partially applied result.
func parsePayload(raw string) (*EnhanceResult, error) {
	raw = strings.TrimSpace(raw)
	// Models wrap JSON in markdown fences more often than not.
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var p geminiPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, ErrMalformedPayload
	}
	if p.CorrectedText == "" {
		return nil, ErrMalformedPayload
	}
	return &EnhanceResult{CorrectedText: p.CorrectedText, Corrections: p.Corrections}, nil
}
