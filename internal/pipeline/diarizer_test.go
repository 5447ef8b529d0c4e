package pipeline

import (
	"testing"

	"github.com/meetlens/meetlens/internal/models"
)

func TestAssignSpeakersAlternatesOnPauses(t *testing.T) {
	segments := []models.Segment{
		{ID: 0, Start: 0, End: 3, Text: "jó reggelt mindenkinek"},
		{ID: 1, Start: 3.2, End: 6, Text: "kezdjük a napirenddel"},
		{ID: 2, Start: 8.5, End: 11, Text: "köszönöm a lehetőséget"},
		{ID: 3, Start: 11.3, End: 14, Text: "az első pont a költségvetés"},
		{ID: 4, Start: 16.2, End: 18, Text: "egyetértek"},
	}

	AssignSpeakers(segments, 1.5)

	want := []string{"Speaker 1", "Speaker 1", "Speaker 2", "Speaker 2", "Speaker 1"}
	for i, s := range segments {
		if s.Speaker != want[i] {
			t.Errorf("segment %d speaker = %q, want %q", i, s.Speaker, want[i])
		}
	}
}

func TestAssignSpeakersKeepsExistingLabels(t *testing.T) {
	segments := []models.Segment{
		{ID: 0, Start: 0, End: 3, Speaker: "Anna"},
		{ID: 1, Start: 6, End: 9},
	}

	AssignSpeakers(segments, 1.5)

	if segments[0].Speaker != "Anna" {
		t.Errorf("existing label overwritten: %q", segments[0].Speaker)
	}
	if segments[1].Speaker != "" {
		t.Errorf("heuristic ran despite existing labels: %q", segments[1].Speaker)
	}
}

func TestAssignSpeakersEmpty(t *testing.T) {
	AssignSpeakers(nil, 1.5)
}
