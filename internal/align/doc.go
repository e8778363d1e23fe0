// Package align tightens subtitle timings with a local forced aligner. The
// aligner scores each line; lines scoring below the configured threshold are
// flagged low-confidence but keep their refined timing. Alignment is an
// optional polish stage, so any failure degrades to the unaligned timings.
package align
