package pipeline

import (
	"strings"
	"testing"

	"github.com/meetlens/meetlens/internal/models"
)

func newTestReconciler() *Reconciler {
	return NewReconciler(ReconcilerConfig{}, quietLogger())
}

func TestMergePassesDisagreementTieGoesToReference(t *testing.T) {
	// Two passes disagree on one word within the alignment tolerance; with a
	// 1-1 count tie the higher-confidence pass's own text must win.
	reference := models.PassResult{
		Temperature: 0.0,
		Confidence:  0.9,
		Segments: []models.Segment{
			{ID: 0, Start: 0.0, End: 2.0, Text: "a bevétel nőtt"},
			{ID: 1, Start: 2.2, End: 4.0, Text: "az árbevétel alapján"},
		},
	}
	other := models.PassResult{
		Temperature: 0.2,
		Confidence:  0.7,
		Segments: []models.Segment{
			{ID: 0, Start: 0.1, End: 2.1, Text: "a bevétel nőtt"},
			{ID: 1, Start: 2.3, End: 4.1, Text: "az árbevetél alapján"},
		},
	}

	got := newTestReconciler().MergePasses([]models.PassResult{other, reference})
	if len(got.Segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(got.Segments))
	}
	if got.Segments[1].Text != "az árbevétel alapján" {
		t.Errorf("tie must resolve to reference text, got %q", got.Segments[1].Text)
	}
}

func TestMergePassesMajorityVote(t *testing.T) {
	mk := func(conf float64, temp float64, text string) models.PassResult {
		return models.PassResult{
			Confidence:  conf,
			Temperature: temp,
			Segments:    []models.Segment{{Start: 0, End: 2, Text: text}},
		}
	}
	// reference says "kvartal", two lower-confidence passes agree on "kvartál"
	got := newTestReconciler().MergePasses([]models.PassResult{
		mk(0.9, 0.0, "kvartal"),
		mk(0.7, 0.2, "kvartál"),
		mk(0.6, 0.4, "kvartál"),
	})
	if got.Segments[0].Text != "kvartál" {
		t.Errorf("majority should override the reference, got %q", got.Segments[0].Text)
	}
}

func TestMergePassesAgreementBonusCapped(t *testing.T) {
	mk := func(conf float64, temp float64) models.PassResult {
		return models.PassResult{
			Confidence:  conf,
			Temperature: temp,
			Segments:    []models.Segment{{Start: 0, End: 1, Text: "same", Confidence: conf}},
		}
	}
	got := newTestReconciler().MergePasses([]models.PassResult{mk(1.0, 0.0), mk(0.99, 0.2), mk(0.98, 0.4)})
	if c := got.Segments[0].Confidence; c > 1.0 {
		t.Errorf("confidence %v exceeds 1.0", c)
	}
	if c := got.Segments[0].Confidence; c < 0.99 {
		t.Errorf("agreement across all passes should raise confidence, got %v", c)
	}
}

func TestMergePassesOutputInvariants(t *testing.T) {
	pass := models.PassResult{
		Confidence: 0.8,
		Segments: []models.Segment{
			{ID: 7, Start: 0, End: 1, Text: "one"},
			{ID: 9, Start: 1, End: 2, Text: "two"},
			{ID: 13, Start: 2, End: 3, Text: "three"},
		},
	}
	got := newTestReconciler().MergePasses([]models.PassResult{pass})
	for i, s := range got.Segments {
		if s.ID != i {
			t.Errorf("segment %d has id %d, ids must be contiguous from 0", i, s.ID)
		}
		if i > 0 && got.Segments[i-1].Start > s.Start {
			t.Error("segments must be sorted by start")
		}
	}
	if got.Text != "one two three" {
		t.Errorf("text = %q, want space-joined segment texts", got.Text)
	}
}

func TestStitchChunksDropsOverlapSegments(t *testing.T) {
	// 10-minute clip in 3 chunks with 10 s overlap: the merged segment count
	// must be strictly less than the per-chunk sum.
	chunks := PlannerConfig{TargetChunkSeconds: 180, OverlapSeconds: 10}.Plan(0, 600, 10)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}

	results := make([]ChunkResult, 0, 3)
	totalSegs := 0
	for _, c := range chunks {
		var segs []models.Segment
		for s := c.Start; s+5 <= c.End; s += 5 {
			segs = append(segs, models.Segment{Start: s, End: s + 5, Text: "szó"})
		}
		totalSegs += len(segs)
		results = append(results, ChunkResult{Chunk: c, Pass: models.PassResult{
			Segments: segs, Confidence: 0.8, Text: strings.Repeat("szó ", len(segs)),
		}})
	}

	got := newTestReconciler().StitchChunks(results)
	if len(got.Segments) >= totalSegs {
		t.Errorf("merged %d segments, want strictly fewer than the per-chunk sum %d", len(got.Segments), totalSegs)
	}
	for i := 1; i < len(got.Segments); i++ {
		if got.Segments[i-1].End > got.Segments[i].Start+1e-9 {
			t.Errorf("segments %d and %d overlap after stitching", i-1, i)
		}
	}
	for i, s := range got.Segments {
		if s.ID != i {
			t.Errorf("segment %d has id %d", i, s.ID)
		}
	}
}

func TestStitchChunksTextDeduplication(t *testing.T) {
	shared := "és ez volt a negyedév legfontosabb eredménye"
	first := "az első rész vége előtt " + shared
	second := shared + " amely után folytatódott a megbeszélés"

	results := []ChunkResult{
		{Chunk: models.Chunk{ID: 0, Start: 0, End: 190, OverlapNext: 10},
			Pass: models.PassResult{Text: first, Confidence: 0.8}},
		{Chunk: models.Chunk{ID: 1, Start: 170, End: 360, OverlapPrev: 10},
			Pass: models.PassResult{Text: second, Confidence: 0.8}},
	}

	got := newTestReconciler().StitchChunks(results)
	if n := strings.Count(got.Text, shared); n != 1 {
		t.Errorf("shared overlap text appears %d times, want 1\ntext: %s", n, got.Text)
	}
	if !strings.HasSuffix(got.Text, "folytatódott a megbeszélés") {
		t.Errorf("stitched text lost the tail: %s", got.Text)
	}
	if !strings.HasPrefix(got.Text, "az első rész") {
		t.Errorf("stitched text lost the head: %s", got.Text)
	}
}

func TestStitchChunksNoOverlapConcatenates(t *testing.T) {
	// When the overlap text cannot be located, favor completeness: both chunk
	// texts survive untrimmed.
	results := []ChunkResult{
		{Chunk: models.Chunk{ID: 0, Start: 0, End: 190, OverlapNext: 10},
			Pass: models.PassResult{Text: "completely different opening text here", Confidence: 0.5}},
		{Chunk: models.Chunk{ID: 1, Start: 170, End: 360, OverlapPrev: 10},
			Pass: models.PassResult{Text: "and an unrelated continuation follows now", Confidence: 0.5}},
	}
	got := newTestReconciler().StitchChunks(results)
	if !strings.Contains(got.Text, "opening text here") || !strings.Contains(got.Text, "unrelated continuation") {
		t.Errorf("concatenation fallback lost text: %s", got.Text)
	}
}

func TestStitchChunksHandlesOutOfOrderResults(t *testing.T) {
	results := []ChunkResult{
		{Chunk: models.Chunk{ID: 2, Start: 340, End: 600, OverlapPrev: 10},
			Pass: models.PassResult{Text: "third", Segments: []models.Segment{{Start: 400, End: 410, Text: "third"}}, Confidence: 0.8}},
		{Chunk: models.Chunk{ID: 0, Start: 0, End: 190, OverlapNext: 10},
			Pass: models.PassResult{Text: "first", Segments: []models.Segment{{Start: 0, End: 10, Text: "first"}}, Confidence: 0.8}},
		{Chunk: models.Chunk{ID: 1, Start: 170, End: 360, OverlapPrev: 10, OverlapNext: 10},
			Pass: models.PassResult{Text: "second", Segments: []models.Segment{{Start: 200, End: 210, Text: "second"}}, Confidence: 0.8}},
	}
	got := newTestReconciler().StitchChunks(results)
	if got.Text != "first second third" {
		t.Errorf("results must be reconciled in chunk-id order, got %q", got.Text)
	}
}

func TestMergePassesEmpty(t *testing.T) {
	got := newTestReconciler().MergePasses(nil)
	if got.Text != "" || len(got.Segments) != 0 {
		t.Errorf("empty merge should be empty, got %+v", got)
	}
}
