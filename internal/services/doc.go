// Package services holds the error taxonomy and context plumbing shared by
// every external collaborator (LLM, transcriber, aligner, artifact store).
//
// Errors are tagged with sentinel markers so callers can classify failures
// without string matching: transport errors are retryable at the call layer,
// validation errors feed the retry-with-validation combinator, and
// cancellation is always context.Canceled and never rewrapped.
package services
