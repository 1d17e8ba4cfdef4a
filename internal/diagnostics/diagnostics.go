// Package diagnostics persists per-poll-cycle acquisition statistics to
// a local sqlite database for post-hoc troubleshooting. It is wired in
// as an optional acquisition.DiagnosticsRecorder and is never consulted
// from the live polling path.
package diagnostics

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"

	"github.com/ecowatt/gateway/internal/acquisition"
	"github.com/ecowatt/gateway/internal/errors"
	"github.com/ecowatt/gateway/internal/logger"

	_ "github.com/mattn/go-sqlite3"
)

// Recorder persists acquisition.Statistics snapshots.
type Recorder interface {
	Record(ctx context.Context, stats acquisition.Statistics) error
	Close() error
}

type sqliteRecorder struct {
	db *sql.DB
	mu sync.Mutex
}

// New opens (creating if necessary) the sqlite database at cfg.DBPath
// and ensures its schema exists.
func New(cfg Config) (Recorder, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger.Debug().Str("path", cfg.DBPath).Msg("opening diagnostics database")

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), defaultDirPerm); err != nil {
		return nil, errFactory.Wrap(ErrStorageInit, err)
	}

	db, err := sql.Open("sqlite3", cfg.DBPath)
	if err != nil {
		return nil, errFactory.Wrap(ErrStorageInit, err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &sqliteRecorder{db: db}, nil
}

func (r *sqliteRecorder) Record(ctx context.Context, stats acquisition.Statistics) error {
	errFactory := errors.New()

	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO poll_cycles (
			timestamp, total_polls, successful_polls, failed_polls, last_error
		) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(timestamp) DO UPDATE SET
			total_polls      = excluded.total_polls,
			successful_polls = excluded.successful_polls,
			failed_polls     = excluded.failed_polls,
			last_error       = excluded.last_error
	`,
		stats.LastPollTime.Unix(),
		stats.TotalPolls,
		stats.SuccessfulPolls,
		stats.FailedPolls,
		stats.LastError,
	)
	if err != nil {
		return errFactory.Wrap(ErrStorageAccess, err)
	}

	return nil
}

func (r *sqliteRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.db.Close(); err != nil {
		return errors.New().Wrap(ErrStorageClose, err)
	}
	return nil
}
