package pipeline

import (
	"sync"

	"subweave/internal/services/llm"
)

// StageUsage accumulates LLM accounting for one stage.
type StageUsage struct {
	Calls            int
	PromptTokens     int64
	CompletionTokens int64
}

// Analytics summarizes run quality, independent of token accounting.
type Analytics struct {
	ChunksTotal     int
	ChunksSucceeded int
	ChunksFailed    int

	// Fallbacks counts degraded step executions per stage name.
	Fallbacks map[string]int

	LowConfidenceItems int
	RegressionItems    int
	CorruptedRanges    int
}

// UsageReport is an immutable snapshot of a tracker.
type UsageReport struct {
	ByStage   map[string]StageUsage
	Analytics Analytics
}

// TotalTokens sums prompt and completion tokens across all stages.
func (r UsageReport) TotalTokens() int64 {
	var total int64
	for _, stage := range r.ByStage {
		total += stage.PromptTokens + stage.CompletionTokens
	}
	return total
}

// UsageTracker aggregates LLM usage and quality analytics across concurrent
// chunk workers. All methods are safe for concurrent use; a nil tracker is a
// no-op so steps never need to guard their recording calls.
type UsageTracker struct {
	mu        sync.Mutex
	byStage   map[string]StageUsage
	analytics Analytics
}

func NewUsageTracker() *UsageTracker {
	return &UsageTracker{
		byStage: make(map[string]StageUsage),
		analytics: Analytics{
			Fallbacks: make(map[string]int),
		},
	}
}

// RecordLLM adds one completed LLM call to the stage's tally.
func (t *UsageTracker) RecordLLM(stage string, usage llm.Usage) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	entry := t.byStage[stage]
	entry.Calls++
	entry.PromptTokens += int64(usage.PromptTokens)
	entry.CompletionTokens += int64(usage.CompletionTokens)
	t.byStage[stage] = entry
}

// RecordFallback notes a degraded step execution.
func (t *UsageTracker) RecordFallback(stage string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.analytics.Fallbacks[stage]++
}

// RecordChunk notes one finished chunk.
func (t *UsageTracker) RecordChunk(succeeded bool) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.analytics.ChunksTotal++
	if succeeded {
		t.analytics.ChunksSucceeded++
	} else {
		t.analytics.ChunksFailed++
	}
}

// RecordLowConfidence adds count items flagged below the alignment score
// threshold.
func (t *UsageTracker) RecordLowConfidence(count int) {
	if t == nil || count <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.analytics.LowConfidenceItems += count
}

// RecordAnomalies adds timeline findings that survived the refine retries.
func (t *UsageTracker) RecordAnomalies(regressionItems, corruptedRanges int) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.analytics.RegressionItems += regressionItems
	t.analytics.CorruptedRanges += corruptedRanges
}

// Snapshot copies the tracker state. The returned report does not alias
// tracker internals.
func (t *UsageTracker) Snapshot() UsageReport {
	if t == nil {
		return UsageReport{ByStage: map[string]StageUsage{}}
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	byStage := make(map[string]StageUsage, len(t.byStage))
	for stage, usage := range t.byStage {
		byStage[stage] = usage
	}
	fallbacks := make(map[string]int, len(t.analytics.Fallbacks))
	for stage, count := range t.analytics.Fallbacks {
		fallbacks[stage] = count
	}
	analytics := t.analytics
	analytics.Fallbacks = fallbacks
	return UsageReport{ByStage: byStage, Analytics: analytics}
}
