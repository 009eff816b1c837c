// Package sqlite provides a core.Recorder that stores run artifacts in a
// SQLite database using the pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/AntoineDubuc/conclave/artifact"
	"github.com/AntoineDubuc/conclave/core"
)

// Recorder stores one row per run and one row per artifact.
type Recorder struct {
	db  *sql.DB
	now func() time.Time
}

// Artifact is a stored artifact row.
type Artifact struct {
	RunID       string
	Round       int
	InstanceID  string
	DisplayName string
	Provider    string
	Phase       core.Phase
	Final       bool
	Edited      bool
	Content     string
	// Markdown is the rendered artifact, identical to what a DirRecorder writes.
	Markdown  string
	UpdatedAt time.Time
}

// Run is a stored run row.
type Run struct {
	ID        string
	FlowName  string
	StartedAt time.Time
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(path string) (*Recorder, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// WAL for concurrent read/write access; writers retry instead of
	// immediately returning SQLITE_BUSY.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec %s: %w", p, err)
		}
	}

	r := &Recorder{db: db, now: time.Now}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return r, nil
}

// Close closes the database.
func (r *Recorder) Close() error {
	return r.db.Close()
}

func (r *Recorder) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id          TEXT PRIMARY KEY,
			flow_name   TEXT NOT NULL,
			started_at  DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS artifacts (
			run_id       TEXT NOT NULL REFERENCES runs(id),
			round        INTEGER NOT NULL,
			instance_id  TEXT NOT NULL,
			is_final     BOOLEAN NOT NULL DEFAULT FALSE,
			display_name TEXT,
			provider     TEXT,
			phase        TEXT,
			edited       BOOLEAN NOT NULL DEFAULT FALSE,
			content      TEXT NOT NULL,
			markdown     TEXT NOT NULL,
			updated_at   DATETIME NOT NULL,
			PRIMARY KEY (run_id, round, instance_id, is_final)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_artifacts_run ON artifacts(run_id, round)`,
	}

	for _, m := range migrations {
		if _, err := r.db.Exec(m); err != nil {
			return fmt.Errorf("exec migration: %w", err)
		}
	}

	return nil
}

// Begin implements core.Recorder. The location is "sqlite://<runID>".
func (r *Recorder) Begin(ctx context.Context, runID, flowName string) (string, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO runs (id, flow_name, started_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		runID, flowName, r.now().UTC())
	if err != nil {
		return "", fmt.Errorf("begin run: %w", err)
	}
	return "sqlite://" + runID, nil
}

// Write implements core.Recorder, replacing an existing row with the same
// run, round, instance and final flag.
func (r *Recorder) Write(ctx context.Context, rec core.Record) error {
	now := r.now()
	md, err := artifact.Render(rec, now)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO artifacts (run_id, round, instance_id, is_final, display_name, provider, phase, edited, content, markdown, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, round, instance_id, is_final) DO UPDATE SET
			display_name = excluded.display_name,
			provider = excluded.provider,
			phase = excluded.phase,
			edited = excluded.edited,
			content = excluded.content,
			markdown = excluded.markdown,
			updated_at = excluded.updated_at`,
		rec.RunID, rec.Round, rec.InstanceID, rec.Final, rec.DisplayName, rec.Provider,
		string(rec.Phase), rec.Edited, rec.Content, string(md), now.UTC())
	if err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}
	return nil
}

// Run returns a stored run, or nil if it does not exist.
func (r *Recorder) Run(ctx context.Context, runID string) (*Run, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, flow_name, started_at FROM runs WHERE id = ?`, runID)
	run := &Run{}
	err := row.Scan(&run.ID, &run.FlowName, &run.StartedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

const artifactColumns = `run_id, round, instance_id, display_name, provider, phase, is_final, edited, content, markdown, updated_at`

// Artifacts returns the artifacts of a run ordered by round, with the final
// synthesis last.
func (r *Recorder) Artifacts(ctx context.Context, runID string) ([]Artifact, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+artifactColumns+` FROM artifacts WHERE run_id = ? ORDER BY is_final, round, instance_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer rows.Close()

	var out []Artifact
	for rows.Next() {
		var (
			a                    Artifact
			display, prov, phase sql.NullString
		)
		if err := rows.Scan(&a.RunID, &a.Round, &a.InstanceID, &display, &prov, &phase, &a.Final, &a.Edited, &a.Content, &a.Markdown, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		a.DisplayName = display.String
		a.Provider = prov.String
		a.Phase = core.Phase(phase.String)
		out = append(out, a)
	}
	return out, rows.Err()
}
