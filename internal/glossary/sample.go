package glossary

import "subweave/internal/subtitle"

// SamplePolicy controls which chunks feed extraction. MaxSamples bounds the
// count; when SampleSeconds is positive, chunks are taken until their
// combined duration reaches it (whichever limit hits first).
type SamplePolicy struct {
	MaxSamples    int
	SampleSeconds float64
}

// SampleChunks picks an evenly spread subset of chunks. Spreading rather
// than taking a prefix matters: terminology introduced late in the media
// would otherwise never reach the glossary.
func SampleChunks(chunks []subtitle.Chunk, policy SamplePolicy) []subtitle.Chunk {
	if len(chunks) == 0 {
		return nil
	}
	max := policy.MaxSamples
	if max <= 0 {
		max = 1
	}
	if max > len(chunks) {
		max = len(chunks)
	}

	picked := make([]subtitle.Chunk, 0, max)
	if max == len(chunks) {
		picked = append(picked, chunks...)
	} else {
		// Even spread across the chunk list, always including the first chunk.
		stride := float64(len(chunks)) / float64(max)
		prev := -1
		for i := 0; i < max; i++ {
			idx := int(float64(i) * stride)
			if idx <= prev {
				idx = prev + 1
			}
			if idx >= len(chunks) {
				break
			}
			picked = append(picked, chunks[idx])
			prev = idx
		}
	}

	if policy.SampleSeconds <= 0 {
		return picked
	}
	var total float64
	for i, chunk := range picked {
		total += chunk.Duration()
		if total >= policy.SampleSeconds {
			return picked[:i+1]
		}
	}
	return picked
}
