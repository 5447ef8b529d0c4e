// Package pipeline contains the multi-pass, chunked transcription pipeline:
// window planning, concurrent pass execution, reconciliation of the results
// into a single ordered transcript, and the orchestrator tying the stages
// together.
package pipeline

import (
	"math"

	"github.com/meetlens/meetlens/internal/models"
)

// PlannerConfig holds the chunking tunables. Zero values fall back to the
// defaults used in production.
type PlannerConfig struct {
	TargetChunkSeconds float64
	OverlapSeconds     float64
}

const (
	defaultTargetChunkSeconds = 180
	defaultOverlapSeconds     = 10
)

func (c PlannerConfig) targetSeconds() float64 {
	if c.TargetChunkSeconds > 0 {
		return c.TargetChunkSeconds
	}
	return defaultTargetChunkSeconds
}

func (c PlannerConfig) overlapSeconds() float64 {
	if c.OverlapSeconds > 0 {
		return c.OverlapSeconds
	}
	return defaultOverlapSeconds
}

// Plan splits [startTime, endTime] into overlapping windows. Each chunk is
// expanded on both sides by the overlap, clipped at the asset boundaries, so
// adjacent chunks share audio and word boundaries survive the stitch points.
// With overlaps removed the chunks cover the span exactly once.
func (c PlannerConfig) Plan(startTime, endTime float64, workerCap int) []models.Chunk {
	duration := endTime - startTime
	if duration <= 0 {
		return nil
	}
	if workerCap < 1 {
		workerCap = 1
	}

	numChunks := int(math.Ceil(duration / c.targetSeconds()))
	if numChunks > workerCap {
		numChunks = workerCap
	}
	if numChunks < 1 {
		numChunks = 1
	}

	base := duration / float64(numChunks)
	overlap := c.overlapSeconds()

	chunks := make([]models.Chunk, 0, numChunks)
	for i := 0; i < numChunks; i++ {
		coreStart := startTime + float64(i)*base
		coreEnd := coreStart + base
		if i == numChunks-1 {
			coreEnd = endTime // absorb float drift on the final chunk
		}

		start := coreStart - overlap
		if start < startTime {
			start = startTime
		}
		end := coreEnd + overlap
		if end > endTime {
			end = endTime
		}

		chunks = append(chunks, models.Chunk{
			ID:          i,
			Start:       start,
			End:         end,
			OverlapPrev: coreStart - start,
			OverlapNext: end - coreEnd,
		})
	}
	return chunks
}
