package storage

import (
	"database/sql"
	"fmt"
	"time"

	"tempolog/internal/logger"
	"tempolog/internal/storage/models"

	_ "github.com/mattn/go-sqlite3"
)

const timestampLayout = "2006-01-02 15:04:05.000000"

// Store is the sqlite audit trail of batch runs. It is write-mostly: nothing in
// the upload path reads it back.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the audit database at dbPath
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=ON")
	if err != nil {
		return nil, err
	}

	// One writer at a time; the audit is written once per run
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err = db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db}
	if err = s.createTables(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("Audit database initialized", "path", dbPath)
	return s, nil
}

// createTables creates the necessary database tables
func (s *Store) createTables() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS batch_runs (
		id TEXT PRIMARY KEY,
		operation TEXT NOT NULL,
		input_file TEXT,
		started_at DATETIME NOT NULL,
		finished_at DATETIME NOT NULL,
		items INTEGER NOT NULL,
		succeeded INTEGER NOT NULL,
		exhausted INTEGER NOT NULL,
		failed INTEGER NOT NULL,
		responses INTEGER NOT NULL,
		error TEXT
	);
	CREATE TABLE IF NOT EXISTS item_outcomes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES batch_runs(id) ON DELETE CASCADE,
		item_index INTEGER NOT NULL,
		issue TEXT,
		worklog_id INTEGER,
		state TEXT NOT NULL,
		status_code INTEGER,
		attempts INTEGER NOT NULL,
		error TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_item_outcomes_run ON item_outcomes(run_id, item_index);
	`)

	return err
}

// RecordRun stores run and its item outcomes in one transaction
func (s *Store) RecordRun(run models.BatchRun, items []models.ItemOutcome) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	_, err = tx.Exec(
		`INSERT INTO batch_runs (id, operation, input_file, started_at, finished_at, items, succeeded, exhausted, failed, responses, error) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.Operation,
		run.InputFile,
		run.StartedAt.UTC().Format(timestampLayout),
		run.FinishedAt.UTC().Format(timestampLayout),
		run.Items,
		run.Succeeded,
		run.Exhausted,
		run.Failed,
		run.Responses,
		run.Error,
	)
	if err != nil {
		logger.Error("Failed to insert batch run", "error", err, "run_id", run.ID)
		return err
	}

	stmt, err := tx.Prepare(`INSERT INTO item_outcomes (run_id, item_index, issue, worklog_id, state, status_code, attempts, error) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, it := range items {
		if _, err := stmt.Exec(run.ID, it.ItemIndex, it.Issue, it.WorklogID, it.State, it.StatusCode, it.Attempts, it.Error); err != nil {
			logger.Error("Failed to insert item outcome", "error", err, "run_id", run.ID, "item", it.ItemIndex)
			return err
		}
	}

	return tx.Commit()
}

// GetRuns retrieves batch runs with pagination, newest first
func (s *Store) GetRuns(limit, offset int) ([]models.BatchRun, error) {
	rows, err := s.db.Query(
		`SELECT id, operation, input_file, started_at, finished_at, items, succeeded, exhausted, failed, responses, error FROM batch_runs ORDER BY started_at DESC LIMIT ? OFFSET ?`,
		limit,
		offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []models.BatchRun
	for rows.Next() {
		var run models.BatchRun
		var started, finished string
		var runErr sql.NullString

		if err := rows.Scan(
			&run.ID,
			&run.Operation,
			&run.InputFile,
			&started,
			&finished,
			&run.Items,
			&run.Succeeded,
			&run.Exhausted,
			&run.Failed,
			&run.Responses,
			&runErr,
		); err != nil {
			return nil, err
		}
		run.StartedAt = parseTimestamp(started)
		run.FinishedAt = parseTimestamp(finished)
		run.Error = runErr.String

		runs = append(runs, run)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return runs, nil
}

// GetItemOutcomes retrieves the item outcomes of one run in input order
func (s *Store) GetItemOutcomes(runID string) ([]models.ItemOutcome, error) {
	rows, err := s.db.Query(
		`SELECT id, run_id, item_index, issue, worklog_id, state, status_code, attempts, error FROM item_outcomes WHERE run_id = ? ORDER BY item_index`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.ItemOutcome
	for rows.Next() {
		var it models.ItemOutcome
		var issue, itemErr sql.NullString
		var worklogID sql.NullInt64

		if err := rows.Scan(&it.ID, &it.RunID, &it.ItemIndex, &issue, &worklogID, &it.State, &it.StatusCode, &it.Attempts, &itemErr); err != nil {
			return nil, err
		}
		it.Issue = issue.String
		it.WorklogID = worklogID.Int64
		it.Error = itemErr.String

		items = append(items, it)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read item outcomes: %w", err)
	}

	return items, nil
}

// parseTimestamp parses a stored timestamp, trying the precise layout first
func parseTimestamp(s string) time.Time {
	t, err := time.Parse(timestampLayout, s)
	if err != nil {
		t, err = time.Parse("2006-01-02 15:04:05", s)
		if err != nil {
			// go-sqlite3 may hand DATETIME columns back in RFC3339
			t, _ = time.Parse(time.RFC3339Nano, s)
		}
	}
	return t
}

// Close closes the database connection
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
