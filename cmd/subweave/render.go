package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"subweave/internal/glossary"
	"subweave/internal/pipeline"
	"subweave/internal/preflight"
)

func renderSummary(result pipeline.Result) string {
	analytics := result.Usage.Analytics

	rows := [][]string{
		{"Subtitle lines", strconv.Itoa(len(result.Subtitles))},
		{"Chunks succeeded", fmt.Sprintf("%d/%d", analytics.ChunksSucceeded, analytics.ChunksTotal)},
		{"Low-confidence lines", strconv.Itoa(analytics.LowConfidenceItems)},
		{"Regression markers", strconv.Itoa(analytics.RegressionItems)},
		{"Corrupted ranges", strconv.Itoa(analytics.CorruptedRanges)},
		{"LLM tokens", strconv.FormatInt(result.Usage.TotalTokens(), 10)},
	}
	if len(analytics.Fallbacks) > 0 {
		stages := make([]string, 0, len(analytics.Fallbacks))
		for stage := range analytics.Fallbacks {
			stages = append(stages, stage)
		}
		sort.Strings(stages)
		parts := make([]string, 0, len(stages))
		for _, stage := range stages {
			parts = append(parts, fmt.Sprintf("%s: %d", stage, analytics.Fallbacks[stage]))
		}
		rows = append(rows, []string{"Fallbacks", strings.Join(parts, ", ")})
	}

	return renderTable(
		[]string{"Metric", "Value"},
		rows,
		[]columnAlignment{alignLeft, alignRight},
	)
}

func renderConflicts(conflicts []glossary.Conflict) string {
	rows := make([][]string, 0, len(conflicts))
	for _, conflict := range conflicts {
		rows = append(rows, []string{conflict.Term, strings.Join(conflict.Translations, " / ")})
	}
	header := renderTable(
		[]string{"Conflicting term", "Candidate translations"},
		rows,
		[]columnAlignment{alignLeft, alignLeft},
	)
	return "glossary conflicts need manual review:\n" + header
}

func renderPreflight(results []preflight.Result) string {
	rows := make([][]string, 0, len(results))
	for _, result := range results {
		status := "FAIL"
		if result.Passed {
			status = "ok"
		} else if result.Optional {
			status = "skip"
		}
		rows = append(rows, []string{result.Name, status, result.Detail})
	}
	return renderTable(
		[]string{"Check", "Status", "Detail"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft},
	)
}
