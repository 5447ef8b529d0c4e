// Package audio cleans raw recordings before transcription and derives
// quality metrics and voice-activity hints from them. All real DSP work is
// delegated to ffmpeg; when the toolchain is missing the preprocessor
// degrades to conservative defaults instead of failing the job.
package audio

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/meetlens/meetlens/internal/models"
)

// Options toggles the individual cleanup stages.
type Options struct {
	BandPass       bool
	NoiseReduction bool
	Normalize      bool
	Compress       bool
	TrimSilence    bool
}

func DefaultOptions() Options {
	return Options{
		BandPass:       true,
		NoiseReduction: true,
		Normalize:      true,
		Compress:       true,
		TrimSilence:    true,
	}
}

// Result is what preprocessing hands to the pipeline. Degraded is set when
// the toolchain was unavailable and the metrics are assumed defaults.
type Result struct {
	ProcessedAudio    []byte
	OriginalDuration  float64
	ProcessedDuration float64
	Metrics           models.QualityMetrics
	VoiceSegments     []models.VoiceSegment
	NeedsEnhancement  bool
	Degraded          bool
}

type Preprocessor struct {
	ffmpegPath string
	workDir    string

	// assumed noise floor used to approximate SNR from measured levels
	noiseFloorDB float64
	// silences shorter than this are not treated as segment boundaries
	minSilenceSeconds float64
	silenceNoiseDB    float64
	sampleRate        int

	log *logrus.Entry
}

func NewPreprocessor(ffmpegPath, workDir string, log *logrus.Logger) *Preprocessor {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if workDir == "" {
		workDir = os.TempDir()
	}
	return &Preprocessor{
		ffmpegPath:        ffmpegPath,
		workDir:           workDir,
		noiseFloorDB:      -60,
		minSilenceSeconds: 0.3,
		silenceNoiseDB:    -35,
		sampleRate:        16000,
		log:               log.WithField("component", "preprocessor"),
	}
}

// Preprocess runs the enabled cleanup stages and measures the audio.
// It never hard-fails: any toolchain error yields a degraded Result with
// the original bytes and fair-quality defaults.
func (p *Preprocessor) Preprocess(ctx context.Context, asset *models.AudioAsset, opts Options) (*Result, error) {
	dir, err := os.MkdirTemp(p.workDir, "meetlens-pre-*")
	if err != nil {
		return p.degraded(asset), nil
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "in.wav")
	if err := os.WriteFile(in, asset.Data, 0o600); err != nil {
		return p.degraded(asset), nil
	}

	metrics, silences, analysisErr := p.analyze(ctx, in)
	if analysisErr != nil {
		p.log.WithError(analysisErr).Warn("audio analysis unavailable, using default metrics")
		return p.degraded(asset), nil
	}
	metrics.SilencePercent = silenceFraction(silences, asset.DurationSeconds) * 100
	metrics.Quality = ClassifyQuality(metrics.SNRDB, metrics.Clipping)

	out := &Result{
		OriginalDuration: asset.DurationSeconds,
		Metrics:          metrics,
		VoiceSegments:    VoiceSegments(silences, asset.DurationSeconds, p.minSilenceSeconds),
		NeedsEnhancement: metrics.Quality == models.QualityPoor || metrics.Quality == models.QualityFair,
	}

	processed, filterErr := p.runFilters(ctx, dir, in, p.filterChain(opts))
	if filterErr != nil {
		p.log.WithError(filterErr).Warn("filter chain failed, keeping original audio")
		out.ProcessedAudio = asset.Data
		out.ProcessedDuration = asset.DurationSeconds
		out.Degraded = true
		return out, nil
	}

	out.ProcessedAudio = processed
	out.ProcessedDuration = DurationOf(processed, asset.DurationSeconds)
	return out, nil
}

// Enhance is the aggressive path for poor and fair recordings: harder noise
// reduction, extra gain, stricter normalization.
func (p *Preprocessor) Enhance(ctx context.Context, asset *models.AudioAsset) (*Result, error) {
	dir, err := os.MkdirTemp(p.workDir, "meetlens-enh-*")
	if err != nil {
		return p.degraded(asset), nil
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "in.wav")
	if err := os.WriteFile(in, asset.Data, 0o600); err != nil {
		return p.degraded(asset), nil
	}

	chain := strings.Join([]string{
		"highpass=f=100",
		"lowpass=f=3800",
		"afftdn=nf=-20",
		"volume=4dB",
		"loudnorm=I=-14:TP=-1.0:LRA=7",
	}, ",")

	processed, filterErr := p.runFilters(ctx, dir, in, chain)
	if filterErr != nil {
		p.log.WithError(filterErr).Warn("enhancement failed, keeping original audio")
		return p.degraded(asset), nil
	}

	return &Result{
		ProcessedAudio:    processed,
		OriginalDuration:  asset.DurationSeconds,
		ProcessedDuration: DurationOf(processed, asset.DurationSeconds),
		Metrics:           models.QualityMetrics{Quality: models.QualityFair},
		VoiceSegments:     []models.VoiceSegment{{Start: 0, End: asset.DurationSeconds, Confidence: 0.5}},
	}, nil
}

func (p *Preprocessor) filterChain(opts Options) string {
	var filters []string
	if opts.BandPass {
		filters = append(filters, "highpass=f=80", "lowpass=f=8000")
	}
	if opts.NoiseReduction {
		filters = append(filters, "afftdn=nf=-25")
	}
	if opts.Normalize {
		filters = append(filters, "loudnorm=I=-16:TP=-1.5:LRA=11")
	}
	if opts.Compress {
		filters = append(filters, "acompressor=threshold=-18dB:ratio=3:attack=20:release=250")
	}
	if opts.TrimSilence {
		filters = append(filters,
			"silenceremove=start_periods=1:start_threshold=-45dB",
			"areverse",
			"silenceremove=start_periods=1:start_threshold=-45dB",
			"areverse",
		)
	}
	if len(filters) == 0 {
		filters = append(filters, "anull")
	}
	return strings.Join(filters, ",")
}

func (p *Preprocessor) runFilters(ctx context.Context, dir, in, chain string) ([]byte, error) {
	out := filepath.Join(dir, "out.wav")
	cmd := exec.CommandContext(ctx, p.ffmpegPath,
		"-y", "-i", in,
		"-af", chain,
		"-ac", "1", "-ar", strconv.Itoa(p.sampleRate),
		"-f", "wav",
		out,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg: %w: %s", err, truncate(stderr.String(), 400))
	}
	return os.ReadFile(out)
}

// analyze measures levels and silence intervals in a single null-output pass.
func (p *Preprocessor) analyze(ctx context.Context, in string) (models.QualityMetrics, []silenceInterval, error) {
	detect := fmt.Sprintf("volumedetect,silencedetect=noise=%.0fdB:d=%.2f", p.silenceNoiseDB, p.minSilenceSeconds)
	cmd := exec.CommandContext(ctx, p.ffmpegPath,
		"-i", in,
		"-af", detect,
		"-f", "null", "-",
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return models.QualityMetrics{}, nil, fmt.Errorf("ffmpeg analyze: %w", err)
	}

	return parseAnalysis(stderr.String(), p.noiseFloorDB)
}

func (p *Preprocessor) degraded(asset *models.AudioAsset) *Result {
	return &Result{
		ProcessedAudio:    asset.Data,
		OriginalDuration:  asset.DurationSeconds,
		ProcessedDuration: asset.DurationSeconds,
		Metrics:           models.QualityMetrics{Quality: models.QualityFair},
		VoiceSegments:     []models.VoiceSegment{{Start: 0, End: asset.DurationSeconds, Confidence: 0.5}},
		NeedsEnhancement:  true,
		Degraded:          true,
	}
}

// ClassifyQuality maps an approximate SNR to the categorical quality level.
// Clipping forces poor regardless of the measured ratio.
func ClassifyQuality(snrDB float64, clipping bool) models.QualityLevel {
	if clipping {
		return models.QualityPoor
	}
	switch {
	case snrDB < 10:
		return models.QualityPoor
	case snrDB < 20:
		return models.QualityFair
	case snrDB < 30:
		return models.QualityGood
	default:
		return models.QualityExcellent
	}
}

type silenceInterval struct {
	Start float64
	End   float64
}

var (
	meanVolumeRe   = regexp.MustCompile(`mean_volume:\s*(-?[0-9.]+)\s*dB`)
	maxVolumeRe    = regexp.MustCompile(`max_volume:\s*(-?[0-9.]+)\s*dB`)
	silenceStartRe = regexp.MustCompile(`silence_start:\s*(-?[0-9.]+)`)
	silenceEndRe   = regexp.MustCompile(`silence_end:\s*(-?[0-9.]+)`)
)

// parseAnalysis extracts level and silence information from ffmpeg stderr.
func parseAnalysis(stderr string, noiseFloorDB float64) (models.QualityMetrics, []silenceInterval, error) {
	m := models.QualityMetrics{PeakDB: -96, AverageDB: -96}

	if match := meanVolumeRe.FindStringSubmatch(stderr); match != nil {
		m.AverageDB, _ = strconv.ParseFloat(match[1], 64)
	}
	if match := maxVolumeRe.FindStringSubmatch(stderr); match != nil {
		m.PeakDB, _ = strconv.ParseFloat(match[1], 64)
	}

	// digital full scale reached means the recording clipped
	m.Clipping = m.PeakDB >= -0.1
	m.SNRDB = m.AverageDB - noiseFloorDB

	var silences []silenceInterval
	var open *silenceInterval
	for _, line := range strings.Split(stderr, "\n") {
		if match := silenceStartRe.FindStringSubmatch(line); match != nil {
			start, _ := strconv.ParseFloat(match[1], 64)
			if start < 0 {
				start = 0
			}
			open = &silenceInterval{Start: start}
			continue
		}
		if match := silenceEndRe.FindStringSubmatch(line); match != nil && open != nil {
			open.End, _ = strconv.ParseFloat(match[1], 64)
			silences = append(silences, *open)
			open = nil
		}
	}
	return m, silences, nil
}

// VoiceSegments derives candidate speech intervals as the complement of the
// detected silences. With no silence at all the whole clip is one interval.
func VoiceSegments(silences []silenceInterval, duration, minSilence float64) []models.VoiceSegment {
	if duration <= 0 {
		return nil
	}

	var kept []silenceInterval
	for _, s := range silences {
		if s.End-s.Start >= minSilence {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		return []models.VoiceSegment{{Start: 0, End: duration, Confidence: 0.9}}
	}

	var out []models.VoiceSegment
	cursor := 0.0
	for _, s := range kept {
		if s.Start > cursor {
			out = append(out, voiceSegment(cursor, s.Start))
		}
		if s.End > cursor {
			cursor = s.End
		}
	}
	if cursor < duration {
		out = append(out, voiceSegment(cursor, duration))
	}
	if len(out) == 0 {
		// clip was entirely silence; keep one low-confidence interval
		out = append(out, models.VoiceSegment{Start: 0, End: duration, Confidence: 0.1})
	}
	return out
}

func voiceSegment(start, end float64) models.VoiceSegment {
	// longer uninterrupted speech gets a higher confidence, capped at 0.95
	conf := 0.6 + (end-start)*0.05
	if conf > 0.95 {
		conf = 0.95
	}
	return models.VoiceSegment{Start: start, End: end, Confidence: conf}
}

func silenceFraction(silences []silenceInterval, duration float64) float64 {
	if duration <= 0 {
		return 0
	}
	total := 0.0
	for _, s := range silences {
		total += s.End - s.Start
	}
	frac := total / duration
	if frac > 1 {
		frac = 1
	}
	return frac
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
