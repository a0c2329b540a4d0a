// --------------------------------------------------------------------------------
// Author: Thomas F McGeehan V
//
// This file is part of a software project developed by Thomas F McGeehan V.
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.
//
// For more information about the MIT License, please visit:
// https://opensource.org/licenses/MIT
//
// Acknowledgment appreciated but not required.
// --------------------------------------------------------------------------------

// Package ledger keeps a local SQLite history of load runs: one row per run
// and one row per file and stage, so a rerun can tell what was loaded.
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

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Stage names a step of a file's path through a run.
type Stage string

const (
	StageDownload  Stage = "download"
	StageTransform Stage = "transform"
	StageUpload    Stage = "upload"
)

// Status is the result of a stage or of a whole run.
type Status string

const (
	StatusRunning Status = "running"
	StatusOK      Status = "ok"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Entry is one file passing, or failing, one stage.
type Entry struct {
	RunID    string
	File     string
	Stage    Stage
	Status   Status
	Rows     int64
	Bytes    int64
	Checksum uint64
	Error    string
	At       time.Time
}

// Run is a row of the runs table.
type Run struct {
	ID       string
	Name     string
	Status   Status
	Started  time.Time
	Finished time.Time
}

// ErrUnknownRun is returned for a run id that was never begun.
var ErrUnknownRun = errors.New("ledger: unknown run")

// Ledger is safe for concurrent use; SQLite serializes the writes.
type Ledger struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the ledger database at path.
func Open(path string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger directory: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// single writer
	db.SetMaxOpenConns(1)

	l := &Ledger{db: db, now: time.Now}
	if err := l.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return l, nil
}

func (l *Ledger) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			status TEXT NOT NULL,
			started_at INTEGER NOT NULL,
			finished_at INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS entries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL REFERENCES runs(id),
			file TEXT NOT NULL,
			stage TEXT NOT NULL,
			status TEXT NOT NULL,
			rows INTEGER NOT NULL DEFAULT 0,
			bytes INTEGER NOT NULL DEFAULT 0,
			checksum TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT '',
			at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_run ON entries(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_file ON entries(file, stage)`,
	}
	for _, m := range migrations {
		if _, err := l.db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

// Begin starts a run and returns its id.
func (l *Ledger) Begin(ctx context.Context, name string) (string, error) {
	id := uuid.NewString()
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO runs (id, name, status, started_at) VALUES (?, ?, ?, ?)`,
		id, name, string(StatusRunning), l.now().UnixMicro())
	if err != nil {
		return "", fmt.Errorf("begin run: %w", err)
	}
	return id, nil
}

// Record appends an entry. A zero At is stamped with the current time.
func (l *Ledger) Record(ctx context.Context, e Entry) error {
	if e.RunID == "" {
		return errors.New("ledger: entry without run id")
	}
	if e.At.IsZero() {
		e.At = l.now()
	}
	checksum := ""
	if e.Checksum != 0 {
		checksum = strconv.FormatUint(e.Checksum, 16)
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO entries (run_id, file, stage, status, rows, bytes, checksum, error, at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RunID, e.File, string(e.Stage), string(e.Status), e.Rows, e.Bytes, checksum, e.Error, e.At.UnixMicro())
	if err != nil {
		return fmt.Errorf("record %s/%s: %w", e.File, e.Stage, err)
	}
	return nil
}

// Finish closes a run with its final status.
func (l *Ledger) Finish(ctx context.Context, runID string, status Status) error {
	res, err := l.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, finished_at = ? WHERE id = ?`,
		string(status), l.now().UnixMicro(), runID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownRun, runID)
	}
	return nil
}

// Run returns the run row for runID.
func (l *Ledger) Run(ctx context.Context, runID string) (Run, error) {
	var (
		r        Run
		status   string
		started  int64
		finished sql.NullInt64
	)
	err := l.db.QueryRowContext(ctx,
		`SELECT id, name, status, started_at, finished_at FROM runs WHERE id = ?`, runID).
		Scan(&r.ID, &r.Name, &status, &started, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrUnknownRun, runID)
	}
	if err != nil {
		return Run{}, err
	}
	r.Status = Status(status)
	r.Started = time.UnixMicro(started).UTC()
	if finished.Valid {
		r.Finished = time.UnixMicro(finished.Int64).UTC()
	}
	return r, nil
}

// Entries returns the entries of a run in insertion order.
func (l *Ledger) Entries(ctx context.Context, runID string) ([]Entry, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT run_id, file, stage, status, rows, bytes, checksum, error, at
		 FROM entries WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e             Entry
			stage, status string
			checksum      string
			at            int64
		)
		if err := rows.Scan(&e.RunID, &e.File, &stage, &status, &e.Rows, &e.Bytes, &checksum, &e.Error, &at); err != nil {
			return nil, err
		}
		e.Stage = Stage(stage)
		e.Status = Status(status)
		e.At = time.UnixMicro(at).UTC()
		if checksum != "" {
			if e.Checksum, err = strconv.ParseUint(checksum, 16, 64); err != nil {
				return nil, fmt.Errorf("bad checksum %q: %w", checksum, err)
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Loaded reports whether file completed the upload stage in any earlier
// run.
func (l *Ledger) Loaded(ctx context.Context, file string) (bool, error) {
	var n int
	err := l.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM entries WHERE file = ? AND stage = ? AND status = ?`,
		file, string(StageUpload), string(StatusOK)).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}
