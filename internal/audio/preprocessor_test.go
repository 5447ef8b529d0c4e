package audio

import (
	"context"
	"math"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/meetlens/meetlens/internal/models"
)

func TestClassifyQuality(t *testing.T) {
	tests := []struct {
		name     string
		snr      float64
		clipping bool
		want     models.QualityLevel
	}{
		{"very low snr", 5, false, models.QualityPoor},
		{"boundary poor", 9.99, false, models.QualityPoor},
		{"fair", 15, false, models.QualityFair},
		{"good", 25, false, models.QualityGood},
		{"excellent", 40, false, models.QualityExcellent},
		{"clipping overrides high snr", 45, true, models.QualityPoor},
		{"clipping overrides low snr", 5, true, models.QualityPoor},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyQuality(tt.snr, tt.clipping); got != tt.want {
				t.Errorf("ClassifyQuality(%v, %v) = %v, want %v", tt.snr, tt.clipping, got, tt.want)
			}
		})
	}
}

func TestParseAnalysis(t *testing.T) {
	stderr := `
[Parsed_volumedetect_0 @ 0x55e1] n_samples: 960000
[Parsed_volumedetect_0 @ 0x55e1] mean_volume: -23.4 dB
[Parsed_volumedetect_0 @ 0x55e1] max_volume: -3.2 dB
[silencedetect @ 0x55e2] silence_start: 4.5
[silencedetect @ 0x55e2] silence_end: 5.2 | silence_duration: 0.7
[silencedetect @ 0x55e2] silence_start: 10.0
[silencedetect @ 0x55e2] silence_end: 12.5 | silence_duration: 2.5
`
	m, silences, err := parseAnalysis(stderr, -60)
	if err != nil {
		t.Fatalf("parseAnalysis failed: %v", err)
	}
	if math.Abs(m.AverageDB-(-23.4)) > 1e-9 {
		t.Errorf("AverageDB = %v, want -23.4", m.AverageDB)
	}
	if math.Abs(m.PeakDB-(-3.2)) > 1e-9 {
		t.Errorf("PeakDB = %v, want -3.2", m.PeakDB)
	}
	if m.Clipping {
		t.Error("peak of -3.2 dB should not count as clipping")
	}
	if math.Abs(m.SNRDB-36.6) > 1e-9 {
		t.Errorf("SNRDB = %v, want 36.6", m.SNRDB)
	}
	if len(silences) != 2 {
		t.Fatalf("expected 2 silence intervals, got %d", len(silences))
	}
	if silences[1].Start != 10.0 || silences[1].End != 12.5 {
		t.Errorf("unexpected second silence: %+v", silences[1])
	}
}

func TestParseAnalysisClipping(t *testing.T) {
	stderr := "mean_volume: -12.0 dB\nmax_volume: 0.0 dB\n"
	m, _, err := parseAnalysis(stderr, -60)
	if err != nil {
		t.Fatalf("parseAnalysis failed: %v", err)
	}
	if !m.Clipping {
		t.Error("max_volume at full scale should flag clipping")
	}
	if got := ClassifyQuality(m.SNRDB, m.Clipping); got != models.QualityPoor {
		t.Errorf("clipped audio classified %v, want poor", got)
	}
}

func TestVoiceSegmentsComplement(t *testing.T) {
	silences := []silenceInterval{
		{Start: 4.0, End: 5.0},
		{Start: 8.0, End: 8.1}, // below minimum, ignored
		{Start: 10.0, End: 12.0},
	}
	segs := VoiceSegments(silences, 20, 0.3)
	if len(segs) != 3 {
		t.Fatalf("expected 3 voice segments, got %d: %+v", len(segs), segs)
	}
	want := [][2]float64{{0, 4}, {5, 10}, {12, 20}}
	for i, w := range want {
		if segs[i].Start != w[0] || segs[i].End != w[1] {
			t.Errorf("segment %d = [%v,%v], want [%v,%v]", i, segs[i].Start, segs[i].End, w[0], w[1])
		}
		if segs[i].Confidence <= 0 || segs[i].Confidence > 1 {
			t.Errorf("segment %d confidence %v out of (0,1]", i, segs[i].Confidence)
		}
	}
}

func TestVoiceSegmentsNoSilence(t *testing.T) {
	segs := VoiceSegments(nil, 30, 0.3)
	if len(segs) != 1 {
		t.Fatalf("expected whole clip as one segment, got %d", len(segs))
	}
	if segs[0].Start != 0 || segs[0].End != 30 {
		t.Errorf("unexpected segment: %+v", segs[0])
	}
}

func TestPreprocessDegradesWithoutToolchain(t *testing.T) {
	log := logrus.New()
	p := NewPreprocessor("/nonexistent/ffmpeg", t.TempDir(), log)

	asset := &models.AudioAsset{Data: []byte("not really audio"), DurationSeconds: 12, SampleRate: 16000}
	res, err := p.Preprocess(context.Background(), asset, DefaultOptions())
	if err != nil {
		t.Fatalf("Preprocess must not fail when the toolchain is missing: %v", err)
	}
	if !res.Degraded {
		t.Error("expected degraded result")
	}
	if res.Metrics.Quality != models.QualityFair {
		t.Errorf("degraded quality = %v, want fair", res.Metrics.Quality)
	}
	if string(res.ProcessedAudio) != string(asset.Data) {
		t.Error("degraded path must keep the original audio bytes")
	}
	if len(res.VoiceSegments) != 1 || res.VoiceSegments[0].End != 12 {
		t.Errorf("degraded path should cover the whole clip: %+v", res.VoiceSegments)
	}
}
