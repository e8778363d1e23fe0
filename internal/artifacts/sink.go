package artifacts

import (
	"context"
	"log/slog"

	"subweave/internal/logging"
	"subweave/internal/pipeline"
)

// Sink adapts the store to the pipeline's artifact contract.
type Sink struct {
	store  *Store
	logger *slog.Logger
}

func NewSink(store *Store, logger *slog.Logger) *Sink {
	return &Sink{store: store, logger: logging.NewComponentLogger(logger, "artifacts")}
}

// Save persists one artifact. Errors are returned for the scheduler to log;
// it never fails a chunk over them.
func (s *Sink) Save(ctx context.Context, artifact pipeline.Artifact) error {
	record, err := s.store.Save(ctx, artifact.RunID, artifact.ChunkIndex, artifact.Stage, artifact.Payload)
	if err != nil {
		return err
	}
	s.logger.Debug("artifact saved",
		logging.String(logging.FieldRunID, artifact.RunID),
		logging.Int(logging.FieldChunk, artifact.ChunkIndex),
		logging.String(logging.FieldStage, artifact.Stage),
		logging.String("hash", record.Hash[:12]),
		logging.Int64("size_bytes", record.SizeBytes),
	)
	return nil
}
