package timeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subweave/internal/subtitle"
)

func items(specs ...[2]float64) []subtitle.Item {
	out := make([]subtitle.Item, 0, len(specs))
	for i, s := range specs {
		out = append(out, subtitle.Item{ID: string(rune('a' + i)), Start: s[0], End: s[1]})
	}
	return out
}

func TestDetectCleanSequence(t *testing.T) {
	report := Detect(items(
		[2]float64{0, 2}, [2]float64{2, 4}, [2]float64{4, 7}, [2]float64{7, 9},
	), DefaultThresholds())
	assert.True(t, report.Valid())
	assert.False(t, report.Retryable())
	assert.Empty(t, report.Issues())
}

func TestDetectCorruptedRangePairing(t *testing.T) {
	// Index 2 has duration 12s (excessive); index 5 starts 8s before index 4
	// (regression). Expected: one corrupted range spanning indices 2-4 and
	// zero independent anomalies.
	seq := items(
		[2]float64{0, 2},
		[2]float64{2, 4},
		[2]float64{4, 16},
		[2]float64{16, 18},
		[2]float64{18, 20},
		[2]float64{10, 12},
	)
	report := Detect(seq, DefaultThresholds())

	require.Len(t, report.Corrupted, 1)
	assert.Empty(t, report.Independent)

	c := report.Corrupted[0]
	assert.Equal(t, 2, c.StartIndex)
	assert.Equal(t, 4, c.EndIndex)
	assert.Equal(t, 3, c.AffectedCount)
	assert.Equal(t, AnomalyExcessiveDuration, c.Trigger.Type)
	assert.Equal(t, AnomalyTimeRegression, c.Recovery.Type)
	assert.Equal(t, 5, c.Recovery.Index)

	assert.False(t, report.Valid())
	assert.True(t, report.Retryable())
}

func TestDetectLoneRegressionIsIndependent(t *testing.T) {
	seq := items(
		[2]float64{0, 2},
		[2]float64{12, 14},
		[2]float64{4, 6},
	)
	report := Detect(seq, DefaultThresholds())
	require.Len(t, report.Independent, 1)
	assert.Equal(t, AnomalyTimeRegression, report.Independent[0].Type)
	assert.Equal(t, 2, report.Independent[0].Index)
	assert.Empty(t, report.Corrupted)
	// Isolated slips are marked, not retried.
	assert.False(t, report.Retryable())
}

func TestDetectLoneExcessiveDurationIsIndependent(t *testing.T) {
	seq := items(
		[2]float64{0, 15},
		[2]float64{15, 17},
	)
	report := Detect(seq, DefaultThresholds())
	require.Len(t, report.Independent, 1)
	assert.Equal(t, AnomalyExcessiveDuration, report.Independent[0].Type)
	assert.Empty(t, report.Corrupted)
}

func TestDetectGreedyLeftToRightClaiming(t *testing.T) {
	// Two excessive items, one regression after each: the first excessive
	// claims the first regression, the second claims the second.
	seq := items(
		[2]float64{0, 12},   // excessive 0
		[2]float64{12, 13},  // 1
		[2]float64{1, 14},   // regression 2 (claimed by 0), excessive 2 too (13s duration)
		[2]float64{14, 15},  // 3
		[2]float64{2, 4},    // regression 4 (claimed by excessive at 2)
	)
	report := Detect(seq, DefaultThresholds())
	require.Len(t, report.Corrupted, 2)
	assert.Equal(t, 0, report.Corrupted[0].StartIndex)
	assert.Equal(t, 1, report.Corrupted[0].EndIndex)
	assert.Equal(t, 2, report.Corrupted[1].StartIndex)
	assert.Equal(t, 3, report.Corrupted[1].EndIndex)
	assert.Empty(t, report.Independent)
}

func TestDetectHonorsConfiguredThresholds(t *testing.T) {
	seq := items(
		[2]float64{0, 8},
		[2]float64{8, 10},
	)
	strict := Detect(seq, Thresholds{ExcessiveDuration: 6, Regression: 3})
	require.Len(t, strict.Independent, 1)

	relaxed := Detect(seq, Thresholds{ExcessiveDuration: 9, Regression: 3})
	assert.True(t, relaxed.Valid())
}

func TestMarkIsNonDestructive(t *testing.T) {
	seq := items(
		[2]float64{0, 2},
		[2]float64{2, 14},
		[2]float64{14, 16},
		[2]float64{3, 5},
	)
	report := Detect(seq, DefaultThresholds())
	require.Len(t, report.Corrupted, 1)

	Mark(seq, report)
	assert.True(t, seq[1].CorruptedRangeIssue)
	assert.True(t, seq[2].CorruptedRangeIssue)
	assert.False(t, seq[0].CorruptedRangeIssue)
	assert.False(t, seq[3].CorruptedRangeIssue)
	// Content and timing survive marking untouched.
	assert.Equal(t, 2.0, seq[1].Start)
	assert.Equal(t, 14.0, seq[1].End)
}

func TestMarkIndependentRegression(t *testing.T) {
	seq := items(
		[2]float64{0, 2},
		[2]float64{12, 14},
		[2]float64{4, 6},
	)
	report := Detect(seq, DefaultThresholds())
	Mark(seq, report)
	assert.True(t, seq[2].RegressionIssue)
	assert.False(t, seq[1].RegressionIssue)
}
