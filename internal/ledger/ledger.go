// Package ledger keeps an append-only SQLite record of task outcomes across
// runs.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite"

	"github.com/spachava753/promptbatch/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS outcomes (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      TEXT NOT NULL,
	position    INTEGER NOT NULL,
	category    TEXT NOT NULL,
	content     TEXT NOT NULL,
	status      TEXT NOT NULL,
	output_name TEXT NOT NULL DEFAULT '',
	output_dir  TEXT NOT NULL DEFAULT '',
	seed        TEXT,
	attempts    INTEGER NOT NULL DEFAULT 0,
	error_type  TEXT NOT NULL DEFAULT '',
	error_msg   TEXT NOT NULL DEFAULT '',
	started_at  TEXT NOT NULL,
	ended_at    TEXT NOT NULL,
	elapsed_sec REAL NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS outcomes_run ON outcomes (run_id, position);
`

// Ledger appends outcomes to a SQLite database.
type Ledger struct {
	db *sql.DB
}

// Open opens (creating if needed) the ledger database at path.
func Open(ctx context.Context, path string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating ledger directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}
	// A single connection serializes writers from concurrent workers.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating ledger: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Close closes the underlying database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Append records one outcome.
func (l *Ledger) Append(ctx context.Context, o models.Outcome) error {
	var seed sql.NullString
	if o.Seed != nil {
		// Seeds span the full uint64 range, beyond SQLite's signed INTEGER.
		seed = sql.NullString{String: strconv.FormatUint(*o.Seed, 10), Valid: true}
	}
	var errType, errMsg string
	if o.Error != nil {
		errType, errMsg = string(o.Error.Type), o.Error.Message
	}

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO outcomes (run_id, position, category, content, status, output_name, output_dir,
			seed, attempts, error_type, error_msg, started_at, ended_at, elapsed_sec)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.RunID, o.Position, o.Category, o.Content, string(o.Status), o.OutputName, o.OutputDir,
		seed, o.Attempts, errType, errMsg,
		o.StartedAt.UTC().Format(time.RFC3339Nano), o.EndedAt.UTC().Format(time.RFC3339Nano), o.ElapsedSec,
	)
	if err != nil {
		return fmt.Errorf("appending outcome for task %d: %w", o.Position, err)
	}
	return nil
}

// Outcomes returns every outcome recorded for a run, in position order.
func (l *Ledger) Outcomes(ctx context.Context, runID string) ([]models.Outcome, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT run_id, position, category, content, status, output_name, output_dir,
			seed, attempts, error_type, error_msg, started_at, ended_at, elapsed_sec
		FROM outcomes WHERE run_id = ? ORDER BY position, id`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying outcomes: %w", err)
	}
	defer rows.Close()

	var out []models.Outcome
	for rows.Next() {
		var (
			o                  models.Outcome
			status             string
			seed               sql.NullString
			errType, errMsg    string
			startedAt, endedAt string
		)
		if err := rows.Scan(&o.RunID, &o.Position, &o.Category, &o.Content, &status, &o.OutputName,
			&o.OutputDir, &seed, &o.Attempts, &errType, &errMsg, &startedAt, &endedAt, &o.ElapsedSec); err != nil {
			return nil, fmt.Errorf("scanning outcome: %w", err)
		}

		o.Status = models.TaskStatus(status)
		if seed.Valid {
			v, err := strconv.ParseUint(seed.String, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("parsing stored seed %q: %w", seed.String, err)
			}
			o.Seed = &v
		}
		if errType != "" {
			o.Error = &models.TaskError{Type: models.ErrorType(errType), Message: errMsg}
		}
		if o.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
			return nil, fmt.Errorf("parsing started_at: %w", err)
		}
		if o.EndedAt, err = time.Parse(time.RFC3339Nano, endedAt); err != nil {
			return nil, fmt.Errorf("parsing ended_at: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// LastRunID returns the run that appended most recently, or "" for an empty
// ledger.
func (l *Ledger) LastRunID(ctx context.Context) (string, error) {
	var id string
	err := l.db.QueryRowContext(ctx, `SELECT run_id FROM outcomes ORDER BY id DESC LIMIT 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("querying last run: %w", err)
	}
	return id, nil
}
