// Package runstore persists run history in SQLite. Every pipeline
// invocation leaves a row, including skipped and failed ones, so
// overlapping runs against the same project are at least observable.
package runstore

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/claudechain/claudechain/internal/domain"
	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed run persistence
type Store struct {
	db *sql.DB
}

// New creates a new Store with the given database path
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, err
	}

	// Run migrations
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRun inserts or updates a run
func (s *Store) SaveRun(run *domain.Run) error {
	_, err := s.db.Exec(`
		INSERT INTO runs (id, project, task, task_index, base_branch, trigger_ref, event_name,
			status, error_message, started_at, finished_at, tokens_input, tokens_output,
			cost_usd, pr_number, pr_url)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			task = excluded.task,
			task_index = excluded.task_index,
			base_branch = excluded.base_branch,
			status = excluded.status,
			error_message = excluded.error_message,
			started_at = excluded.started_at,
			finished_at = excluded.finished_at,
			tokens_input = excluded.tokens_input,
			tokens_output = excluded.tokens_output,
			cost_usd = excluded.cost_usd,
			pr_number = excluded.pr_number,
			pr_url = excluded.pr_url
	`,
		run.ID,
		run.ProjectName,
		run.Task,
		run.TaskIndex,
		run.BaseBranch,
		run.TriggerRef,
		run.EventName,
		string(run.Status),
		run.ErrorMessage,
		run.StartedAt,
		run.FinishedAt,
		run.TokensInput,
		run.TokensOutput,
		run.CostUSD,
		run.PRNumber,
		run.PRURL,
	)
	return err
}

// UpdateStatus updates a run's status and error message
func (s *Store) UpdateStatus(id string, status domain.RunStatus, errorMessage string) error {
	_, err := s.db.Exec(`UPDATE runs SET status = ?, error_message = ? WHERE id = ?`,
		string(status), errorMessage, id)
	return err
}

// UpdateUsage records token usage and cost for a run
func (s *Store) UpdateUsage(id string, tokensInput, tokensOutput int, costUSD float64) error {
	_, err := s.db.Exec(`UPDATE runs SET tokens_input = ?, tokens_output = ?, cost_usd = ? WHERE id = ?`,
		tokensInput, tokensOutput, costUSD, id)
	return err
}

// AttachPR records the pull request a run produced
func (s *Store) AttachPR(id string, prNumber int, prURL string) error {
	_, err := s.db.Exec(`UPDATE runs SET pr_number = ?, pr_url = ? WHERE id = ?`,
		prNumber, prURL, id)
	return err
}

// GetRun retrieves a run by ID
func (s *Store) GetRun(id string) (*domain.Run, error) {
	row := s.db.QueryRow(`
		SELECT id, project, task, task_index, base_branch, trigger_ref, event_name,
			status, error_message, started_at, finished_at, tokens_input, tokens_output,
			cost_usd, pr_number, pr_url
		FROM runs WHERE id = ?
	`, id)
	return scanRun(row)
}

// ListOptions specifies filters for listing runs
type ListOptions struct {
	Project string
	Status  domain.RunStatus
	Limit   int
}

// ListRuns returns runs matching the given options, newest first
func (s *Store) ListRuns(opts ListOptions) ([]*domain.Run, error) {
	query := `SELECT id, project, task, task_index, base_branch, trigger_ref, event_name,
		status, error_message, started_at, finished_at, tokens_input, tokens_output,
		cost_usd, pr_number, pr_url FROM runs WHERE 1=1`
	var args []interface{}

	if opts.Project != "" {
		query += " AND project = ?"
		args = append(args, opts.Project)
	}
	if opts.Status != "" {
		query += " AND status = ?"
		args = append(args, string(opts.Status))
	}
	query += " ORDER BY started_at DESC"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// RecordNotification logs a notification attempt for a run
func (s *Store) RecordNotification(runID, kind string, delivered bool, errMsg string) error {
	_, err := s.db.Exec(`
		INSERT INTO notifications (run_id, kind, sent_at, delivered, error)
		VALUES (?, ?, ?, ?, ?)
	`, runID, kind, time.Now(), delivered, errMsg)
	return err
}

type scannable interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scannable) (*domain.Run, error) {
	var run domain.Run
	var status string
	var task, baseBranch, triggerRef, eventName, errorMessage, prURL sql.NullString
	var startedAt, finishedAt sql.NullTime

	err := row.Scan(
		&run.ID,
		&run.ProjectName,
		&task,
		&run.TaskIndex,
		&baseBranch,
		&triggerRef,
		&eventName,
		&status,
		&errorMessage,
		&startedAt,
		&finishedAt,
		&run.TokensInput,
		&run.TokensOutput,
		&run.CostUSD,
		&run.PRNumber,
		&prURL,
	)
	if err != nil {
		return nil, err
	}

	run.Task = task.String
	run.BaseBranch = baseBranch.String
	run.TriggerRef = triggerRef.String
	run.EventName = eventName.String
	run.ErrorMessage = errorMessage.String
	run.PRURL = prURL.String
	run.Status = domain.RunStatus(status)
	if startedAt.Valid {
		t := startedAt.Time
		run.StartedAt = &t
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		run.FinishedAt = &t
	}
	return &run, nil
}
