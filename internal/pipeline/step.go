package pipeline

import (
	"context"

	"subweave/internal/logging"
	"subweave/internal/services"
)

// Status is the terminal state of one step execution on one chunk.
type Status string

const (
	StatusSkipped   Status = "skipped"
	StatusSucceeded Status = "succeeded"
	StatusFallback  Status = "fallback_applied"
)

// Step is the uniform template every pipeline stage implements. The scheduler
// drives each chunk through the step chain in order and applies identical
// gating, artifact, and failure handling to all of them.
type Step interface {
	Name() string

	// Applicable reports whether this step should run for the chunk at all.
	// Inapplicable steps are skipped without touching their gate.
	Applicable(run *Context, state *ChunkState) bool

	// Gate returns the concurrency gate bounding this step's resource class.
	// A nil gate means the step is unbounded.
	Gate(run *Context) *Gate

	// Execute performs the stage work, mutating state in place.
	Execute(ctx context.Context, run *Context, state *ChunkState) error

	// Fallback repairs state after Execute failed for a non-cancellation
	// reason, leaving the chunk degraded but usable. Returning an error
	// fails the chunk.
	Fallback(ctx context.Context, run *Context, state *ChunkState, cause error) error

	// Artifact renders the step's output for persistence. ok=false means
	// nothing worth saving.
	Artifact(state *ChunkState) (payload []byte, ok bool)
}

// RunStep executes one step on one chunk: applicability check, gate
// acquisition, execution, fallback on failure, best-effort artifact save.
// Cancellation propagates unchanged and is never converted into a fallback.
func RunStep(ctx context.Context, run *Context, step Step, state *ChunkState) (Status, error) {
	if !step.Applicable(run, state) {
		return StatusSkipped, nil
	}

	stepCtx := services.WithStage(ctx, step.Name())
	logger := run.Logger.With(
		logging.String(logging.FieldStage, step.Name()),
		logging.Int(logging.FieldChunk, state.Chunk.Index),
	)

	gate := step.Gate(run)
	if err := gate.Acquire(stepCtx); err != nil {
		return "", err
	}
	defer gate.Release()

	status := StatusSucceeded
	if err := step.Execute(stepCtx, run, state); err != nil {
		if services.IsCancellation(err) {
			return "", err
		}
		logger.Warn("step failed; applying fallback", logging.Error(err))
		if fbErr := step.Fallback(stepCtx, run, state, err); fbErr != nil {
			return "", services.Wrap(nil, step.Name(), "fallback", "", fbErr)
		}
		run.Usage.RecordFallback(step.Name())
		status = StatusFallback
	}

	if run.Artifacts != nil {
		if payload, ok := step.Artifact(state); ok {
			artifact := Artifact{
				RunID:      run.RunID,
				ChunkIndex: state.Chunk.Index,
				Stage:      step.Name(),
				Payload:    payload,
			}
			if err := run.Artifacts.Save(stepCtx, artifact); err != nil && !services.IsCancellation(err) {
				logger.Warn("artifact save failed", logging.Error(err))
			}
		}
	}
	return status, nil
}
