// Package glossary extracts recurring terms and speaker profiles from a
// sampled subset of chunks so translation stays consistent across the run.
//
// Extraction fans out over the sample with its own concurrency bound,
// independent of the main chunk scheduler. Merging deduplicates identical
// term/translation pairs case-insensitively; the same term with different
// translations across samples is surfaced as a conflict for the caller to
// resolve rather than silently picking one.
package glossary
