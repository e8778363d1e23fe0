package timeline

import (
	"fmt"

	"subweave/internal/subtitle"
)

// AnomalyType classifies a single flagged item.
type AnomalyType string

const (
	// AnomalyExcessiveDuration flags an item whose duration exceeds the
	// configured ceiling.
	AnomalyExcessiveDuration AnomalyType = "excessive_duration"
	// AnomalyTimeRegression flags an item whose start time jumps backward
	// past the configured tolerance relative to the preceding item.
	AnomalyTimeRegression AnomalyType = "time_regression"
)

// Anomaly is one flagged item in a stage's output sequence.
type Anomaly struct {
	Type    AnomalyType
	Index   int
	ID      string
	Details string
}

// CorruptedRange is a contiguous span of items invalidated by an
// excessive-duration anomaly that a later regression recovered from.
type CorruptedRange struct {
	StartIndex    int
	EndIndex      int
	StartID       string
	EndID         string
	AffectedCount int
	Trigger       Anomaly
	Recovery      Anomaly
}

// Thresholds carries the detector's tunable limits in seconds. The defaults
// were tuned against one provider's failure modes and may not generalize, so
// callers take them from configuration.
type Thresholds struct {
	ExcessiveDuration float64
	Regression        float64
}

// DefaultThresholds returns the empirically tuned limits: 10s duration
// ceiling, 5s regression tolerance.
func DefaultThresholds() Thresholds {
	return Thresholds{ExcessiveDuration: 10, Regression: 5}
}

func (t Thresholds) orDefaults() Thresholds {
	defaults := DefaultThresholds()
	if t.ExcessiveDuration <= 0 {
		t.ExcessiveDuration = defaults.ExcessiveDuration
	}
	if t.Regression <= 0 {
		t.Regression = defaults.Regression
	}
	return t
}

// Report is the outcome of one detection pass. It is a derived, ephemeral
// artifact: recomputed each validation pass, never persisted.
type Report struct {
	Independent []Anomaly
	Corrupted   []CorruptedRange
}

// Valid reports whether the sequence passed with no findings at all.
func (r Report) Valid() bool {
	return len(r.Independent) == 0 && len(r.Corrupted) == 0
}

// Retryable reports whether re-running the stage is worthwhile. Corrupted
// ranges indicate degenerate output worth regenerating; independent anomalies
// alone are isolated slips where marking suffices.
func (r Report) Retryable() bool {
	return len(r.Corrupted) > 0
}

// Issues renders the findings as human-readable strings for post-check results.
func (r Report) Issues() []string {
	issues := make([]string, 0, len(r.Independent)+len(r.Corrupted))
	for _, c := range r.Corrupted {
		issues = append(issues, fmt.Sprintf(
			"corrupted range: items %d-%d (%d affected) between %s and recovery at index %d",
			c.StartIndex, c.EndIndex, c.AffectedCount, c.Trigger.Details, c.Recovery.Index,
		))
	}
	for _, a := range r.Independent {
		issues = append(issues, fmt.Sprintf("%s at index %d: %s", a.Type, a.Index, a.Details))
	}
	return issues
}

// Detect scans an ordered item sequence and pairs excessive-duration
// anomalies with the first unclaimed regression after each, greedily left to
// right. A matched pair becomes a corrupted range spanning from the excessive
// item through the item immediately before the regression; whatever never
// pairs up is reported independently.
func Detect(items []subtitle.Item, thresholds Thresholds) Report {
	thresholds = thresholds.orDefaults()

	var excessive []Anomaly
	var regressions []Anomaly
	for i, item := range items {
		if d := item.Duration(); d > thresholds.ExcessiveDuration {
			excessive = append(excessive, Anomaly{
				Type:    AnomalyExcessiveDuration,
				Index:   i,
				ID:      item.ID,
				Details: fmt.Sprintf("duration %.2fs exceeds %.2fs", d, thresholds.ExcessiveDuration),
			})
		}
		if i > 0 {
			if gap := items[i-1].Start - item.Start; gap > thresholds.Regression {
				regressions = append(regressions, Anomaly{
					Type:    AnomalyTimeRegression,
					Index:   i,
					ID:      item.ID,
					Details: fmt.Sprintf("start %.2fs jumps back %.2fs past previous item", item.Start, gap),
				})
			}
		}
	}

	var report Report
	claimed := make([]bool, len(regressions))
	for _, trigger := range excessive {
		matched := false
		for ri, recovery := range regressions {
			if claimed[ri] || recovery.Index <= trigger.Index {
				continue
			}
			endIndex := recovery.Index - 1
			report.Corrupted = append(report.Corrupted, CorruptedRange{
				StartIndex:    trigger.Index,
				EndIndex:      endIndex,
				StartID:       items[trigger.Index].ID,
				EndID:         items[endIndex].ID,
				AffectedCount: endIndex - trigger.Index + 1,
				Trigger:       trigger,
				Recovery:      recovery,
			})
			claimed[ri] = true
			matched = true
			break
		}
		if !matched {
			report.Independent = append(report.Independent, trigger)
		}
	}
	for ri, recovery := range regressions {
		if !claimed[ri] {
			report.Independent = append(report.Independent, recovery)
		}
	}

	return report
}

// Mark applies the report's findings to items as boolean quality markers.
// No item is deleted and no content or timing is rewritten.
func Mark(items []subtitle.Item, report Report) {
	for _, c := range report.Corrupted {
		for i := c.StartIndex; i <= c.EndIndex && i < len(items); i++ {
			items[i].CorruptedRangeIssue = true
		}
	}
	for _, a := range report.Independent {
		if a.Type == AnomalyTimeRegression && a.Index < len(items) {
			items[a.Index].RegressionIssue = true
		}
	}
}
