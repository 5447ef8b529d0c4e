package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// Whisper talks to a whisper-compatible HTTP endpoint
// (POST multipart/form-data, verbose_json response).
type Whisper struct {
	endpoint   string
	apiKey     string
	model      string
	httpClient *http.Client
}

func NewWhisper(endpoint, apiKey, model string, timeout time.Duration) (*Whisper, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("whisper endpoint cannot be empty")
	}
	if model == "" {
		model = "whisper-1"
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Whisper{
		endpoint: endpoint,
		apiKey:   apiKey,
		model:    model,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}, nil
}

func (w *Whisper) Close() error {
	w.httpClient.CloseIdleConnections()
	return nil
}

type whisperResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language,omitempty"`
	Duration float64 `json:"duration,omitempty"`
	Segments []struct {
		Start        float64 `json:"start"`
		End          float64 `json:"end"`
		Text         string  `json:"text"`
		NoSpeechProb float64 `json:"no_speech_prob,omitempty"`
	} `json:"segments,omitempty"`
}

func (w *Whisper) Transcribe(ctx context.Context, audio []byte, req Request) (*Result, error) {
	body, contentType, err := w.buildMultipart(audio, req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", contentType)
	if w.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+w.apiKey)
	}

	resp, err := w.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("whisper HTTP error %d: %s", resp.StatusCode, string(respBody))
	}

	var wr whisperResponse
	if err := json.Unmarshal(respBody, &wr); err != nil {
		return nil, fmt.Errorf("parse whisper response: %w", err)
	}

	out := &Result{Text: wr.Text, Language: wr.Language}
	for _, s := range wr.Segments {
		out.Segments = append(out.Segments, ResultSegment{
			Start:        s.Start,
			End:          s.End,
			Text:         s.Text,
			NoSpeechProb: s.NoSpeechProb,
		})
	}
	return out, nil
}

func (w *Whisper) buildMultipart(audio []byte, req Request) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fileWriter, err := writer.CreateFormFile("file", "audio.wav")
	if err != nil {
		return nil, "", err
	}
	if _, err := fileWriter.Write(audio); err != nil {
		return nil, "", err
	}

	format := req.ResponseFormat
	if format == "" {
		format = "verbose_json"
	}
	fields := map[string]string{
		"model":           w.model,
		"response_format": format,
		"temperature":     fmt.Sprintf("%.2f", req.Temperature),
	}
	if req.Language != "" {
		fields["language"] = req.Language
	}
	if req.Prompt != "" {
		fields["prompt"] = req.Prompt
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", key, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return &buf, writer.FormDataContentType(), nil
}
