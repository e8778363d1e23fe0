package media

import "subweave/internal/subtitle"

// minTailSeconds is the shortest chunk worth transcribing on its own. A
// trailing sliver below this is folded into the previous chunk instead.
const minTailSeconds = 1.0

// PlanChunks splits a duration into fixed-size chunks. The final chunk
// absorbs any sub-second remainder so no chunk is uselessly short.
func PlanChunks(duration, chunkSeconds float64) []subtitle.Chunk {
	if duration <= 0 {
		return nil
	}
	if chunkSeconds <= 0 || chunkSeconds >= duration {
		return []subtitle.Chunk{{Index: 0, Start: 0, End: duration}}
	}

	chunks := make([]subtitle.Chunk, 0, int(duration/chunkSeconds)+1)
	start := 0.0
	for start < duration {
		end := start + chunkSeconds
		if end > duration {
			end = duration
		}
		chunks = append(chunks, subtitle.Chunk{Index: len(chunks), Start: start, End: end})
		start = end
	}

	last := len(chunks) - 1
	if last > 0 && chunks[last].Duration() < minTailSeconds {
		chunks[last-1].End = chunks[last].End
		chunks = chunks[:last]
	}
	return chunks
}
