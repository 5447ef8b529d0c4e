package pipeline

import (
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/meetlens/meetlens/internal/models"
)

// ReconcilerConfig exposes the alignment and stitch tunables. The historical
// values (0.5 s tolerance, 20-200 char search window) are defaults, not
// guarantees.
type ReconcilerConfig struct {
	AlignToleranceSeconds float64
	StitchMinSearchChars  int
	StitchMaxSearchChars  int
	AgreementBonus        float64
}

func (c ReconcilerConfig) withDefaults() ReconcilerConfig {
	if c.AlignToleranceSeconds <= 0 {
		c.AlignToleranceSeconds = 0.5
	}
	if c.StitchMinSearchChars <= 0 {
		c.StitchMinSearchChars = 20
	}
	if c.StitchMaxSearchChars <= 0 {
		c.StitchMaxSearchChars = 200
	}
	if c.AgreementBonus <= 0 {
		c.AgreementBonus = 0.05
	}
	return c
}

// MergedTranscript is the single ordered, non-overlapping result of
// reconciliation.
type MergedTranscript struct {
	Text       string
	Segments   []models.Segment
	Confidence float64
}

// Reconciler merges divergent pass outputs and stitches chunked results back
// into one transcript.
type Reconciler struct {
	cfg ReconcilerConfig
	log *logrus.Entry
}

func NewReconciler(cfg ReconcilerConfig, log *logrus.Logger) *Reconciler {
	return &Reconciler{cfg: cfg.withDefaults(), log: log.WithField("component", "reconciler")}
}

// MergePasses reconciles several passes over the same audio. The pass with
// the highest confidence provides the reference segmentation; for every
// reference segment the aligned variants from the other passes vote on the
// text. Ties go to the reference pass, which keeps the merge deterministic.
func (r *Reconciler) MergePasses(passes []models.PassResult) *MergedTranscript {
	if len(passes) == 0 {
		return &MergedTranscript{}
	}

	ordered := make([]models.PassResult, len(passes))
	copy(ordered, passes)
	// deterministic reference selection: confidence desc, temperature asc
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Confidence != ordered[j].Confidence {
			return ordered[i].Confidence > ordered[j].Confidence
		}
		return ordered[i].Temperature < ordered[j].Temperature
	})
	ref := ordered[0]
	others := ordered[1:]

	if len(ref.Segments) == 0 {
		return &MergedTranscript{Text: ref.Text, Confidence: ref.Confidence}
	}

	tol := r.cfg.AlignToleranceSeconds
	merged := make([]models.Segment, 0, len(ref.Segments))

	for _, refSeg := range ref.Segments {
		type candidate struct {
			text string
			conf float64
		}
		candidates := []candidate{{refSeg.Text, segmentConfidence(refSeg, ref)}}

		for _, pass := range others {
			if aligned, ok := findAligned(pass.Segments, refSeg, tol); ok {
				candidates = append(candidates, candidate{aligned.Text, segmentConfidence(aligned, pass)})
			}
		}

		// majority vote over case-insensitive text; first occurrence (the
		// reference) wins ties by construction of the candidate order
		counts := make(map[string]int, len(candidates))
		for _, c := range candidates {
			counts[normalizeText(c.text)]++
		}
		bestText, bestCount := refSeg.Text, 0
		for _, c := range candidates {
			if n := counts[normalizeText(c.text)]; n > bestCount {
				bestText, bestCount = c.text, n
			}
		}

		confSum := 0.0
		for _, c := range candidates {
			confSum += c.conf
		}
		conf := confSum / float64(len(candidates))
		if len(candidates) > 1 {
			conf += r.cfg.AgreementBonus
		}

		out := refSeg
		out.Text = bestText
		out.Confidence = clamp01(conf)
		merged = append(merged, out)
	}

	return r.finalize(merged)
}

// ChunkResult pairs a planned chunk with the pass that transcribed it.
type ChunkResult struct {
	Chunk models.Chunk
	Pass  models.PassResult
}

// StitchChunks joins chunk results in chunk-id order, dropping segments that
// fall inside overlap already covered by the previous chunk and removing the
// duplicated text at the seams. When no textual overlap is found the chunks
// are concatenated as-is; duplication beats losing words.
func (r *Reconciler) StitchChunks(results []ChunkResult) *MergedTranscript {
	if len(results) == 0 {
		return &MergedTranscript{}
	}

	ordered := make([]ChunkResult, len(results))
	copy(ordered, results)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Chunk.ID < ordered[j].Chunk.ID })

	var merged []models.Segment
	var text strings.Builder
	confSum := 0.0

	for i, cr := range ordered {
		confSum += cr.Pass.Confidence

		if i == 0 {
			merged = append(merged, cr.Pass.Segments...)
			text.WriteString(cr.Pass.Text)
			continue
		}

		// segments wholly inside the already-covered overlap are duplicates
		cutoff := cr.Chunk.Start
		if len(merged) > 0 {
			cutoff = merged[len(merged)-1].End - cr.Chunk.OverlapPrev
		}
		for _, seg := range cr.Pass.Segments {
			if seg.Start < cutoff {
				continue
			}
			if n := len(merged); n > 0 && seg.Start < merged[n-1].End {
				seg.Start = merged[n-1].End
				if seg.End < seg.Start {
					seg.End = seg.Start
				}
			}
			merged = append(merged, seg)
		}

		chunkText := cr.Pass.Text
		if dup := overlapLength(text.String(), chunkText, r.cfg.StitchMinSearchChars, r.cfg.StitchMaxSearchChars); dup > 0 {
			chunkText = strings.TrimSpace(chunkText[dup:])
		} else {
			r.log.WithField("chunk_id", cr.Chunk.ID).Debug("no text overlap found at stitch point, concatenating")
		}
		if chunkText != "" {
			if text.Len() > 0 {
				text.WriteString(" ")
			}
			text.WriteString(chunkText)
		}
	}

	out := r.finalize(merged)
	out.Text = strings.TrimSpace(text.String())
	out.Confidence = confSum / float64(len(ordered))
	return out
}

// finalize renumbers ids sequentially and joins the segment texts.
func (r *Reconciler) finalize(segments []models.Segment) *MergedTranscript {
	texts := make([]string, 0, len(segments))
	confSum := 0.0
	for i := range segments {
		segments[i].ID = i
		if t := strings.TrimSpace(segments[i].Text); t != "" {
			texts = append(texts, t)
		}
		confSum += segments[i].Confidence
	}

	conf := 0.0
	if len(segments) > 0 {
		conf = confSum / float64(len(segments))
	}
	return &MergedTranscript{
		Text:       strings.Join(texts, " "),
		Segments:   segments,
		Confidence: clamp01(conf),
	}
}

// findAligned locates the segment whose start and end both fall within the
// tolerance window of the reference segment, preferring the closest start.
func findAligned(segments []models.Segment, ref models.Segment, tol float64) (models.Segment, bool) {
	best := models.Segment{}
	bestDelta := tol + 1
	found := false
	for _, s := range segments {
		dStart := abs(s.Start - ref.Start)
		dEnd := abs(s.End - ref.End)
		if dStart <= tol && dEnd <= tol && dStart < bestDelta {
			best, bestDelta, found = s, dStart, true
		}
	}
	return best, found
}

// overlapLength finds the longest suffix of merged (bounded by the search
// window) that is a prefix of next, returning its byte length.
func overlapLength(merged, next string, minChars, maxChars int) int {
	max := maxChars
	if len(merged) < max {
		max = len(merged)
	}
	if len(next) < max {
		max = len(next)
	}
	for l := max; l >= minChars; l-- {
		if strings.EqualFold(merged[len(merged)-l:], next[:l]) {
			return l
		}
	}
	return 0
}

func segmentConfidence(seg models.Segment, pass models.PassResult) float64 {
	if seg.Confidence > 0 {
		return seg.Confidence
	}
	return pass.Confidence
}

func normalizeText(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
