/*
Package sqlite persists finished audit runs in SQLite.

PURPOSE:
  The audit itself is in memory and rebuilt from CSV on every run. What
  is kept is the outcome: each run's report document, its canonical
  snapshot, and queryable per-participant, per-obligation, per-error and
  per-review rows. The HTTP API and the report command read from here.

APPEND-ONLY RUNS:
  A run is written once, inside one transaction, and never updated.
  Re-auditing writes a new run; the latest one is what readers see.

KEY TABLES:
  runs:             One row per run, with the canonical snapshot JSON
  run_participants: Aggregates per participant
  run_obligations:  Status and slips per obligation
  run_errors:       The ledger at the end of the run
  run_reviews:      The reviews that were applied

INDEXES:
  - idx_runs_generated_at: latest-run lookup (hot path)
  - idx_run_obligations_participant: participant detail

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. The scheduler writes while the API
  reads.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) so API reads do not
  block a re-audit writing its run.

USAGE:
  store, err := sqlite.New("./out/auditor.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  err = store.SaveRun(ctx, sqlite.NewRunRecord(doc, snapshotJSON))

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - report/report.go: Document, the shape stored and returned
  - api/handlers.go: read side
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/andykuo1/progress-auditor-sub001/generic"
	"github.com/andykuo1/progress-auditor-sub001/report"
)

// Store persists audit runs in SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// an in-memory database exists per connection
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		state TEXT NOT NULL,
		generated_at TEXT NOT NULL,
		snapshot_json TEXT NOT NULL,
		participant_count INTEGER NOT NULL,
		open_errors INTEGER NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_generated_at
		ON runs(generated_at);

	CREATE TABLE IF NOT EXISTS run_participants (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		participant_id TEXT NOT NULL,
		name TEXT NOT NULL,
		week_count INTEGER NOT NULL,
		used TEXT NOT NULL,
		remaining TEXT NOT NULL,
		max TEXT NOT NULL,
		mean TEXT NOT NULL,
		satisfied INTEGER NOT NULL,
		missing INTEGER NOT NULL,
		pending INTEGER NOT NULL,
		position INTEGER NOT NULL,
		PRIMARY KEY (run_id, participant_id)
	);

	CREATE TABLE IF NOT EXISTS run_obligations (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		participant_id TEXT NOT NULL,
		obligation_id TEXT NOT NULL,
		due TEXT NOT NULL,
		status TEXT NOT NULL,
		slips INTEGER NOT NULL,
		submission_id TEXT,
		forced INTEGER NOT NULL DEFAULT 0,
		position INTEGER NOT NULL,
		PRIMARY KEY (run_id, participant_id, obligation_id)
	);

	CREATE INDEX IF NOT EXISTS idx_run_obligations_participant
		ON run_obligations(run_id, participant_id);

	CREATE TABLE IF NOT EXISTS run_errors (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		error_id TEXT NOT NULL,
		tag TEXT NOT NULL,
		message TEXT NOT NULL,
		options_json TEXT NOT NULL,
		skipped INTEGER NOT NULL DEFAULT 0,
		position INTEGER NOT NULL,
		PRIMARY KEY (run_id, error_id)
	);

	CREATE TABLE IF NOT EXISTS run_reviews (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		review_id TEXT NOT NULL,
		review_date TEXT,
		comment TEXT,
		type TEXT NOT NULL,
		params_json TEXT NOT NULL,
		position INTEGER NOT NULL,
		PRIMARY KEY (run_id, review_id)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// RUN RECORDS
// =============================================================================

// RunRecord is one stored run.
type RunRecord struct {
	ID               string
	State            string
	GeneratedAt      time.Time
	SnapshotJSON     string
	ParticipantCount int
	OpenErrors       int
	CreatedAt        time.Time

	// Document is written on save. Reads leave it nil; use Document().
	Document *report.Document
}

// NewRunRecord wraps a finished run's document and canonical snapshot with
// a fresh run id.
func NewRunRecord(doc *report.Document, snapshot []byte) RunRecord {
	open := 0
	for _, e := range doc.Errors {
		if !e.Skipped {
			open++
		}
	}
	return RunRecord{
		ID:               uuid.New().String(),
		State:            doc.State,
		GeneratedAt:      doc.GeneratedAt,
		SnapshotJSON:     string(snapshot),
		ParticipantCount: len(doc.Participants),
		OpenErrors:       open,
		CreatedAt:        time.Now().UTC().Truncate(time.Second),
		Document:         doc,
	}
}

// SaveRun writes a run and all of its rows atomically.
func (s *Store) SaveRun(ctx context.Context, run RunRecord) error {
	if run.Document == nil {
		return &generic.InvalidValueError{Field: "run document", Value: run.ID}
	}
	for _, p := range run.Document.Participants {
		for field, v := range map[string]string{"used": p.Used, "remaining": p.Remaining, "max": p.Max, "mean": p.Mean} {
			if _, err := decimal.NewFromString(v); err != nil {
				return &generic.InvalidValueError{Field: p.ID + " " + field, Value: v, Err: err}
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	createdAt := run.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err = sqlTx.ExecContext(ctx, `
		INSERT INTO runs (id, state, generated_at, snapshot_json, participant_count, open_errors, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.State, run.GeneratedAt.UTC().Format(time.RFC3339Nano), run.SnapshotJSON,
		run.ParticipantCount, run.OpenErrors, createdAt.UTC().Format(time.RFC3339))
	if err != nil {
		if isUniqueConstraintError(err) {
			return &generic.DuplicateIDError{Kind: "run", ID: run.ID}
		}
		return fmt.Errorf("failed to insert run: %w", err)
	}

	for i, p := range run.Document.Participants {
		_, err := sqlTx.ExecContext(ctx, `
			INSERT INTO run_participants (run_id, participant_id, name, week_count, used, remaining, max, mean,
				satisfied, missing, pending, position)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, run.ID, p.ID, p.Name, p.WeekCount, p.Used, p.Remaining, p.Max, p.Mean,
			p.Satisfied, p.Missing, p.Pending, i)
		if err != nil {
			return fmt.Errorf("failed to insert participant %s: %w", p.ID, err)
		}
		for j, o := range p.Obligations {
			_, err := sqlTx.ExecContext(ctx, `
				INSERT INTO run_obligations (run_id, participant_id, obligation_id, due, status, slips,
					submission_id, forced, position)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, run.ID, p.ID, o.ID, o.Due, o.Status, o.Slips, nullString(o.Submission), o.Forced, j)
			if err != nil {
				return fmt.Errorf("failed to insert obligation %s/%s: %w", p.ID, o.ID, err)
			}
		}
	}

	for i, e := range run.Document.Errors {
		optionsJSON, _ := json.Marshal(e.Options)
		_, err := sqlTx.ExecContext(ctx, `
			INSERT INTO run_errors (run_id, error_id, tag, message, options_json, skipped, position)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, run.ID, e.ID, e.Tag, e.Message, string(optionsJSON), e.Skipped, i)
		if err != nil {
			return fmt.Errorf("failed to insert error %s: %w", e.ID, err)
		}
	}

	for i, r := range run.Document.Reviews {
		paramsJSON, _ := json.Marshal(r.Params)
		_, err := sqlTx.ExecContext(ctx, `
			INSERT INTO run_reviews (run_id, review_id, review_date, comment, type, params_json, position)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, run.ID, r.ID, nullString(r.Date), nullString(r.Comment), r.Type, string(paramsJSON), i)
		if err != nil {
			return fmt.Errorf("failed to insert review %s: %w", r.ID, err)
		}
	}

	return sqlTx.Commit()
}

const runColumns = `id, state, generated_at, snapshot_json, participant_count, open_errors, created_at`

// LatestRun returns the most recently generated run, or nil when none has
// been stored.
func (s *Store) LatestRun(ctx context.Context) (*RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.scanRun(s.db.QueryRowContext(ctx,
		"SELECT "+runColumns+" FROM runs ORDER BY generated_at DESC, created_at DESC LIMIT 1"))
}

// GetRun retrieves a run by ID.
func (s *Store) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.scanRun(s.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM runs WHERE id = ?", id))
}

func (s *Store) scanRun(row *sql.Row) (*RunRecord, error) {
	var r RunRecord
	var generatedAt, createdAt string
	err := row.Scan(&r.ID, &r.State, &generatedAt, &r.SnapshotJSON, &r.ParticipantCount, &r.OpenErrors, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.GeneratedAt, _ = time.Parse(time.RFC3339Nano, generatedAt)
	r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &r, nil
}

// ListRuns returns runs newest first. limit <= 0 means all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT " + runColumns + " FROM runs ORDER BY generated_at DESC, created_at DESC"
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var r RunRecord
		var generatedAt, createdAt string
		if err := rows.Scan(&r.ID, &r.State, &generatedAt, &r.SnapshotJSON, &r.ParticipantCount, &r.OpenErrors, &createdAt); err != nil {
			return nil, err
		}
		r.GeneratedAt, _ = time.Parse(time.RFC3339Nano, generatedAt)
		r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// =============================================================================
// RUN CONTENTS
// =============================================================================

// Participants returns every participant of a run with its obligations.
func (s *Store) Participants(ctx context.Context, runID string) ([]report.ParticipantEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryParticipants(ctx, `
		SELECT participant_id, name, week_count, used, remaining, max, mean, satisfied, missing, pending
		FROM run_participants WHERE run_id = ? ORDER BY position
	`, runID)
}

// Participant returns one participant of a run, or nil when absent.
func (s *Store) Participant(ctx context.Context, runID, participantID string) (*report.ParticipantEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list, err := s.queryParticipants(ctx, `
		SELECT participant_id, name, week_count, used, remaining, max, mean, satisfied, missing, pending
		FROM run_participants WHERE run_id = ? AND participant_id = ?
	`, runID, participantID)
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return &list[0], nil
}

func (s *Store) queryParticipants(ctx context.Context, query string, args ...any) ([]report.ParticipantEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []report.ParticipantEntry{}
	for rows.Next() {
		var p report.ParticipantEntry
		if err := rows.Scan(&p.ID, &p.Name, &p.WeekCount, &p.Used, &p.Remaining, &p.Max, &p.Mean,
			&p.Satisfied, &p.Missing, &p.Pending); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	runID := args[0]
	for i := range out {
		obligations, err := s.queryObligations(ctx, runID, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Obligations = obligations
	}
	return out, nil
}

func (s *Store) queryObligations(ctx context.Context, runID any, participantID string) ([]report.ObligationEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT obligation_id, due, status, slips, submission_id, forced
		FROM run_obligations WHERE run_id = ? AND participant_id = ? ORDER BY position
	`, runID, participantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []report.ObligationEntry{}
	for rows.Next() {
		var o report.ObligationEntry
		var submission sql.NullString
		if err := rows.Scan(&o.ID, &o.Due, &o.Status, &o.Slips, &submission, &o.Forced); err != nil {
			return nil, err
		}
		o.Submission = submission.String
		out = append(out, o)
	}
	return out, rows.Err()
}

// Errors returns the ledger of a run in record order.
func (s *Store) Errors(ctx context.Context, runID string) ([]report.ErrorEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT error_id, tag, message, options_json, skipped
		FROM run_errors WHERE run_id = ? ORDER BY position
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []report.ErrorEntry{}
	for rows.Next() {
		var e report.ErrorEntry
		var optionsJSON string
		if err := rows.Scan(&e.ID, &e.Tag, &e.Message, &optionsJSON, &e.Skipped); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(optionsJSON), &e.Options); err != nil {
			return nil, fmt.Errorf("error %s options: %w", e.ID, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Reviews returns the reviews applied in a run.
func (s *Store) Reviews(ctx context.Context, runID string) ([]report.ReviewEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT review_id, review_date, comment, type, params_json
		FROM run_reviews WHERE run_id = ? ORDER BY position
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []report.ReviewEntry{}
	for rows.Next() {
		var r report.ReviewEntry
		var date, comment sql.NullString
		var paramsJSON string
		if err := rows.Scan(&r.ID, &date, &comment, &r.Type, &paramsJSON); err != nil {
			return nil, err
		}
		r.Date, r.Comment = date.String, comment.String
		if err := json.Unmarshal([]byte(paramsJSON), &r.Params); err != nil {
			return nil, fmt.Errorf("review %s params: %w", r.ID, err)
		}
		if r.Params == nil {
			r.Params = []string{}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Document rebuilds the report document of a stored run.
func (s *Store) Document(ctx context.Context, run *RunRecord) (*report.Document, error) {
	participants, err := s.Participants(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	errs, err := s.Errors(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	reviews, err := s.Reviews(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	return &report.Document{
		GeneratedAt:  run.GeneratedAt,
		State:        run.State,
		Participants: participants,
		Errors:       errs,
		Reviews:      reviews,
	}, nil
}

// Totals is the cohort-wide slip total of one run.
type Totals struct {
	Used      decimal.Decimal
	Remaining decimal.Decimal
	Max       decimal.Decimal
}

// RunTotals sums slip amounts across the participants of a run.
func (s *Store) RunTotals(ctx context.Context, runID string) (Totals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT used, remaining, max FROM run_participants WHERE run_id = ?", runID)
	if err != nil {
		return Totals{}, err
	}
	defer rows.Close()

	t := Totals{Used: decimal.Zero, Remaining: decimal.Zero, Max: decimal.Zero}
	for rows.Next() {
		var used, remaining, max string
		if err := rows.Scan(&used, &remaining, &max); err != nil {
			return Totals{}, err
		}
		t.Used = t.Used.Add(parseDecimal(used))
		t.Remaining = t.Remaining.Add(parseDecimal(remaining))
		t.Max = t.Max.Add(parseDecimal(max))
	}
	return t, rows.Err()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"run_reviews", "run_errors", "run_obligations", "run_participants", "runs"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func parseDecimal(value string) decimal.Decimal {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "PRIMARY KEY constraint failed"))
}
