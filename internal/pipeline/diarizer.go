package pipeline

import (
	"fmt"

	"github.com/meetlens/meetlens/internal/models"
)

// AssignSpeakers is a pause-heuristic placeholder for diarization: it
// alternates between two speaker labels whenever the gap between consecutive
// segments exceeds the threshold. Segments that already carry a speaker are
// left alone.
func AssignSpeakers(segments []models.Segment, gapThresholdSeconds float64) {
	if len(segments) == 0 {
		return
	}
	if gapThresholdSeconds <= 0 {
		gapThresholdSeconds = 1.5
	}
	for _, s := range segments {
		if s.Speaker != "" {
			return
		}
	}

	speaker := 1
	for i := range segments {
		if i > 0 && segments[i].Start-segments[i-1].End > gapThresholdSeconds {
			if speaker == 1 {
				speaker = 2
			} else {
				speaker = 1
			}
		}
		segments[i].Speaker = fmt.Sprintf("Speaker %d", speaker)
	}
}
