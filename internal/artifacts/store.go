package artifacts

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"lukechampine.com/blake3"
	_ "modernc.org/sqlite"

	"subweave/internal/config"
	"subweave/internal/services"
)

// Record is one stored artifact row.
type Record struct {
	ID         string
	RunID      string
	ChunkIndex int
	Stage      string
	Hash       string
	SizeBytes  int64
	CreatedAt  time.Time
}

// Store manages artifact persistence backed by SQLite. A file lock guards
// the database against concurrent subweave processes.
type Store struct {
	db   *sql.DB
	path string
	lock *flock.Flock
}

// Open initializes or connects to the artifact database and applies
// migrations.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	lock := flock.New(filepath.Join(cfg.Paths.ArtifactDir, "artifacts.lock"))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire artifact lock: %w", err)
	}
	if !ok {
		return nil, errors.New("artifact store is locked by another subweave process")
	}

	dbPath := filepath.Join(cfg.Paths.ArtifactDir, "artifacts.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			_ = lock.Unlock()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath, lock: lock}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		_ = lock.Unlock()
		return nil, err
	}
	return store, nil
}

// Close closes the database and releases the file lock.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	var closeErr error
	if s.db != nil {
		closeErr = s.db.Close()
	}
	if s.lock != nil {
		if err := s.lock.Unlock(); err != nil && closeErr == nil {
			closeErr = err
		}
	}
	return closeErr
}

// Path returns the database file location.
func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// Save stores one artifact, deduplicating the payload by content hash.
func (s *Store) Save(ctx context.Context, runID string, chunkIndex int, stage string, payload []byte) (Record, error) {
	if len(payload) == 0 {
		return Record{}, services.Wrap(services.ErrValidation, "artifacts", "save", "empty payload", nil)
	}

	sum := blake3.Sum256(payload)
	hash := hex.EncodeToString(sum[:])

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Record{}, fmt.Errorf("begin artifact tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx,
		"INSERT OR IGNORE INTO payloads (hash, body, size_bytes) VALUES (?, ?, ?)",
		hash, payload, int64(len(payload)),
	); err != nil {
		return Record{}, fmt.Errorf("insert payload: %w", err)
	}

	record := Record{
		ID:         uuid.NewString(),
		RunID:      runID,
		ChunkIndex: chunkIndex,
		Stage:      stage,
		Hash:       hash,
		SizeBytes:  int64(len(payload)),
		CreatedAt:  time.Now().UTC(),
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO artifacts (id, run_id, chunk_index, stage, payload_hash, created_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		record.ID, record.RunID, record.ChunkIndex, record.Stage, record.Hash,
		record.CreatedAt.Format(time.RFC3339Nano),
	); err != nil {
		return Record{}, fmt.Errorf("insert artifact: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Record{}, fmt.Errorf("commit artifact: %w", err)
	}
	return record, nil
}

// Load returns the newest payload for one run, chunk, and stage.
func (s *Store) Load(ctx context.Context, runID string, chunkIndex int, stage string) ([]byte, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT p.body FROM artifacts a
         JOIN payloads p ON p.hash = a.payload_hash
         WHERE a.run_id = ? AND a.chunk_index = ? AND a.stage = ?
         ORDER BY a.created_at DESC, a.rowid DESC LIMIT 1`,
		runID, chunkIndex, stage,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "artifacts", "load",
			fmt.Sprintf("run %s chunk %d stage %s", runID, chunkIndex, stage), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("load artifact: %w", err)
	}
	return payload, nil
}

// List returns the artifact rows for one run, newest first.
func (s *Store) List(ctx context.Context, runID string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT a.id, a.run_id, a.chunk_index, a.stage, a.payload_hash, p.size_bytes, a.created_at
         FROM artifacts a
         JOIN payloads p ON p.hash = a.payload_hash
         WHERE a.run_id = ?
         ORDER BY a.created_at DESC`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var record Record
		var createdAt string
		if err := rows.Scan(&record.ID, &record.RunID, &record.ChunkIndex,
			&record.Stage, &record.Hash, &record.SizeBytes, &createdAt); err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		if parsed, parseErr := time.Parse(time.RFC3339Nano, createdAt); parseErr == nil {
			record.CreatedAt = parsed
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// Runs returns the distinct run IDs present in the store, newest first.
func (s *Store) Runs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT run_id, MAX(created_at) AS latest FROM artifacts GROUP BY run_id ORDER BY latest DESC")
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []string
	for rows.Next() {
		var runID, latest string
		if err := rows.Scan(&runID, &latest); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, runID)
	}
	return runs, rows.Err()
}
