// Package logging wraps log/slog with the attribute helpers, context
// propagation, and output handlers shared by every subweave component.
//
// Console output is a compact human-readable format intended for interactive
// runs; JSON output is line-delimited and suitable for ingestion. Context
// carries run, chunk, and stage identifiers so per-chunk pipeline logs can be
// correlated without threading loggers through every call.
package logging
