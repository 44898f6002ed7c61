// Package journal keeps a SQLite history of configuration sync runs.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hazyhaar/sktools/dbopen"
)

// Outcome of a sync run.
type Outcome string

const (
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeUpdated   Outcome = "updated"
	OutcomePlanned   Outcome = "planned" // dry run with pending changes
	OutcomeFailed    Outcome = "failed"
)

// Schema is the DDL of the journal.
const Schema = `
CREATE TABLE IF NOT EXISTS sync_runs (
    id          TEXT PRIMARY KEY,
    owner       TEXT NOT NULL,
    repo        TEXT NOT NULL,
    path        TEXT NOT NULL,
    branch      TEXT NOT NULL DEFAULT '',
    outcome     TEXT NOT NULL,
    old_sha     TEXT NOT NULL DEFAULT '',
    new_sha     TEXT NOT NULL DEFAULT '',
    added       TEXT NOT NULL DEFAULT '[]',
    replaced    TEXT NOT NULL DEFAULT '[]',
    error       TEXT NOT NULL DEFAULT '',
    started_at  INTEGER NOT NULL,
    duration_ms INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_sync_runs_started ON sync_runs(started_at DESC);
`

// Run is one recorded sync.
type Run struct {
	ID        string        `json:"id"`
	Owner     string        `json:"owner"`
	Repo      string        `json:"repo"`
	Path      string        `json:"path"`
	Branch    string        `json:"branch,omitempty"`
	Outcome   Outcome       `json:"outcome"`
	OldSHA    string        `json:"old_sha,omitempty"`
	NewSHA    string        `json:"new_sha,omitempty"`
	Added     []string      `json:"added,omitempty"`
	Replaced  []string      `json:"replaced,omitempty"`
	Error     string        `json:"error,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// Journal is the database handle.
type Journal struct {
	DB *sql.DB
}

// Open opens (or creates) the journal database at path.
func Open(path string) (*Journal, error) {
	db, err := dbopen.Open(path, dbopen.WithMkdirAll(), dbopen.WithSchema(Schema))
	if err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}
	return &Journal{DB: db}, nil
}

// New wraps an open database and applies the schema.
func New(db *sql.DB) (*Journal, error) {
	if _, err := db.Exec(Schema); err != nil {
		return nil, fmt.Errorf("journal: apply schema: %w", err)
	}
	return &Journal{DB: db}, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.DB.Close()
}

// Record inserts a run.
func (j *Journal) Record(ctx context.Context, r Run) error {
	added, _ := json.Marshal(nonNil(r.Added))
	replaced, _ := json.Marshal(nonNil(r.Replaced))

	_, err := dbopen.Exec(ctx, j.DB, `
		INSERT INTO sync_runs
			(id, owner, repo, path, branch, outcome, old_sha, new_sha,
			 added, replaced, error, started_at, duration_ms)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		r.ID, r.Owner, r.Repo, r.Path, r.Branch, string(r.Outcome), r.OldSHA, r.NewSHA,
		string(added), string(replaced), r.Error, r.StartedAt.UnixMilli(), r.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("journal: record %s: %w", r.ID, err)
	}
	return nil
}

// List returns up to limit runs, newest first. limit <= 0 means 50.
func (j *Journal) List(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.DB.QueryContext(ctx, `
		SELECT id, owner, repo, path, branch, outcome, old_sha, new_sha,
		       added, replaced, error, started_at, duration_ms
		FROM sync_runs
		ORDER BY started_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: list: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			r                Run
			outcome          string
			added, replaced  string
			startedMs, durMs int64
		)
		if err := rows.Scan(&r.ID, &r.Owner, &r.Repo, &r.Path, &r.Branch, &outcome, &r.OldSHA, &r.NewSHA,
			&added, &replaced, &r.Error, &startedMs, &durMs); err != nil {
			return nil, fmt.Errorf("journal: scan: %w", err)
		}
		r.Outcome = Outcome(outcome)
		json.Unmarshal([]byte(added), &r.Added)
		json.Unmarshal([]byte(replaced), &r.Replaced)
		r.StartedAt = time.UnixMilli(startedMs)
		r.Duration = time.Duration(durMs) * time.Millisecond
		out = append(out, r)
	}
	return out, rows.Err()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
