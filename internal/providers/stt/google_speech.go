package stt

import (
	"context"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
)

// GoogleSpeech adapts the Cloud Speech API to the Provider contract.
// Word time offsets are folded into per-result segments; the API has no
// temperature or prompt knob, so those request fields are ignored.
type GoogleSpeech struct {
	c *speech.Client

	Encoding     speechpb.RecognitionConfig_AudioEncoding
	SampleRateHz int32
}

func NewGoogleSpeech(ctx context.Context) (*GoogleSpeech, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &GoogleSpeech{
		c:            c,
		Encoding:     speechpb.RecognitionConfig_LINEAR16,
		SampleRateHz: 16000,
	}, nil
}

func (g *GoogleSpeech) Close() error { return g.c.Close() }

// language example: "en-US", "hu-HU"
func (g *GoogleSpeech) Transcribe(ctx context.Context, audio []byte, req Request) (*Result, error) {
	language := req.Language
	if language == "" {
		language = "en-US"
	}

	cfg := &speechpb.RecognitionConfig{
		Encoding:                   g.Encoding,
		SampleRateHertz:            g.SampleRateHz,
		LanguageCode:               language,
		EnableAutomaticPunctuation: true,
		EnableWordTimeOffsets:      true,
	}
	if req.Prompt != "" {
		cfg.SpeechContexts = []*speechpb.SpeechContext{{Phrases: splitPromptPhrases(req.Prompt)}}
	}

	resp, err := g.c.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: cfg,
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audio},
		},
	})
	if err != nil {
		return nil, err
	}

	out := &Result{Language: language}
	for _, r := range resp.Results {
		if len(r.Alternatives) == 0 {
			continue
		}
		alt := r.Alternatives[0]
		if alt.Transcript == "" {
			continue
		}
		seg := ResultSegment{Text: alt.Transcript}
		if n := len(alt.Words); n > 0 {
			seg.Start = alt.Words[0].StartTime.AsDuration().Seconds()
			seg.End = alt.Words[n-1].EndTime.AsDuration().Seconds()
		}
		out.Segments = append(out.Segments, seg)
		if out.Text != "" {
			out.Text += " "
		}
		out.Text += alt.Transcript
	}
	return out, nil
}

// splitPromptPhrases turns a vocabulary prompt into speech-context phrases.
func splitPromptPhrases(prompt string) []string {
	var phrases []string
	for _, p := range strings.FieldsFunc(prompt, func(r rune) bool { return r == ',' || r == '\n' }) {
		if p = strings.TrimSpace(p); p != "" {
			phrases = append(phrases, p)
		}
	}
	return phrases
}
