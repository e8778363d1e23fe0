// Package transcribe shells out to a local speech recognition binary and
// turns its per-clip JSON output into subtitle items on the source timeline.
// It implements both the pipeline transcription step and the sample source
// backing glossary extraction.
package transcribe
