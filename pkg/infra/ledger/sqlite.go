package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/herald/pkg/domain/interfaces"
	"github.com/m-mizutani/herald/pkg/domain/model"
	"github.com/m-mizutani/herald/pkg/domain/types"
	_ "modernc.org/sqlite"
)

// SQLite persists reservations in a SQLite database. The event identity is the primary key, so
// the reservation insert is the atomic check-and-create.
type SQLite struct {
	db *sql.DB
}

var _ interfaces.DispatchLedger = (*SQLite)(nil)

// NewSQLite opens (or creates) the ledger database at dsn
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open database", goerr.V("dsn", dsn))
	}

	// A single connection serialises writers and keeps shared in-memory databases alive.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, goerr.Wrap(err, "failed to enable WAL mode")
	}

	s := &SQLite{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *SQLite) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS dispatches (
			event_id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			pipeline_id TEXT NOT NULL,
			status TEXT NOT NULL,
			run TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_dispatches_run ON dispatches(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_dispatches_status ON dispatches(status)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return goerr.Wrap(err, "failed to execute schema statement")
		}
	}
	return nil
}

// Close closes the database
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) Reserve(ctx context.Context, run *model.PipelineRun) (*model.PipelineRun, error) {
	data, err := json.Marshal(run)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal run")
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO dispatches (event_id, run_id, pipeline_id, status, run, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(event_id) DO NOTHING`,
		string(run.EventID), string(run.ID), string(run.PipelineID), string(run.Status), string(data), now, now,
	)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to insert reservation", goerr.V("event_id", run.EventID))
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read affected rows")
	}
	if affected == 1 {
		return run, nil
	}

	return reservedBy(ctx, run.EventID, s.Get)
}

func (s *SQLite) Release(ctx context.Context, eventID types.EventID) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM dispatches WHERE event_id = ?`, string(eventID)); err != nil {
		return goerr.Wrap(err, "failed to delete reservation", goerr.V("event_id", eventID))
	}
	return nil
}

func (s *SQLite) Update(ctx context.Context, run *model.PipelineRun) error {
	data, err := json.Marshal(run)
	if err != nil {
		return goerr.Wrap(err, "failed to marshal run")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE dispatches SET run_id = ?, status = ?, run = ?, updated_at = ? WHERE event_id = ?`,
		string(run.ID), string(run.Status), string(data), time.Now().UTC(), string(run.EventID),
	)
	if err != nil {
		return goerr.Wrap(err, "failed to update run", goerr.V("event_id", run.EventID))
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return goerr.Wrap(err, "failed to read affected rows")
	}
	if affected == 0 {
		return goerr.Wrap(types.ErrRunNotFound, "no reservation to update", goerr.V("event_id", run.EventID))
	}
	return nil
}

func (s *SQLite) Get(ctx context.Context, eventID types.EventID) (*model.PipelineRun, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT run FROM dispatches WHERE event_id = ?`, string(eventID)).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, goerr.Wrap(types.ErrRunNotFound, "no run for event", goerr.V("event_id", eventID))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query run", goerr.V("event_id", eventID))
	}

	var run model.PipelineRun
	if err := json.Unmarshal([]byte(data), &run); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal run", goerr.V("event_id", eventID))
	}
	return &run, nil
}
