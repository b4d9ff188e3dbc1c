package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Phase identifies which part of the pipeline launched an attempt.
type Phase string

const (
	PhaseDrain    Phase = "drain"
	PhaseDiscover Phase = "discover"
	PhaseManual   Phase = "manual"
)

// Outcome is the recorded result of an attempt.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
)

// Attempt is one transformer launch. Generation identifies the staged file
// the attempt ran against, so a later file reusing StagedName starts with a
// clean slate.
type Attempt struct {
	ID         int64
	StagedName string
	Generation string
	SourceID   string
	Phase      Phase
	Outcome    Outcome
	ExitCode   int
	Error      string
	CycleID    string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Summary aggregates the attempts of one staged entry.
type Summary struct {
	StagedName    string
	Attempts      int
	Failures      int
	LastOutcome   Outcome
	LastExitCode  int
	LastError     string
	LastAttemptAt time.Time
}

// Stats aggregates the whole store.
type Stats struct {
	Attempts  int
	Succeeded int
	Failed    int
	Entries   int
}

const attemptColumns = "id, staged_name, generation, source_id, phase, outcome, exit_code, error_message, cycle_id, started_at, finished_at"

// RecordAttempt stores a and returns its row id.
func (s *Store) RecordAttempt(ctx context.Context, a Attempt) (int64, error) {
	ctx = ensureContext(ctx)
	if strings.TrimSpace(a.StagedName) == "" {
		return 0, errors.New("staged name is required")
	}
	if a.Phase == "" {
		a.Phase = PhaseDrain
	}
	if a.FinishedAt.IsZero() {
		a.FinishedAt = time.Now()
	}
	if a.StartedAt.IsZero() {
		a.StartedAt = a.FinishedAt
	}

	var res sql.Result
	err := retryOnBusy(ctx, func() error {
		var execErr error
		res, execErr = s.db.ExecContext(ctx,
			`INSERT INTO attempts (
                staged_name, generation, source_id, phase, outcome, exit_code,
                error_message, cycle_id, started_at, finished_at
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.StagedName,
			nullableString(a.Generation),
			nullableString(a.SourceID),
			string(a.Phase),
			string(a.Outcome),
			a.ExitCode,
			nullableString(a.Error),
			nullableString(a.CycleID),
			formatTime(a.StartedAt),
			formatTime(a.FinishedAt),
		)
		return execErr
	})
	if err != nil {
		return 0, fmt.Errorf("insert attempt: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

// Summary returns the aggregate for stagedName. A non-empty generation
// restricts it to attempts against that staged file; an empty one covers
// every attempt under the name. An entry with no attempts yields a zero
// Summary carrying only the name.
func (s *Store) Summary(ctx context.Context, stagedName, generation string) (Summary, error) {
	ctx = ensureContext(ctx)
	summary := Summary{StagedName: stagedName}

	filter := `staged_name = ?`
	args := []any{stagedName}
	if generation != "" {
		filter += ` AND generation = ?`
		args = append(args, generation)
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1), COALESCE(SUM(CASE WHEN outcome = ? THEN 1 ELSE 0 END), 0)
         FROM attempts WHERE `+filter,
		append([]any{string(OutcomeFailed)}, args...)...,
	)
	if err := row.Scan(&summary.Attempts, &summary.Failures); err != nil {
		return summary, fmt.Errorf("summarize attempts: %w", err)
	}
	if summary.Attempts == 0 {
		return summary, nil
	}

	last, err := scanAttempt(s.db.QueryRowContext(ctx,
		`SELECT `+attemptColumns+` FROM attempts WHERE `+filter+` ORDER BY id DESC LIMIT 1`,
		args...,
	))
	if err != nil {
		return summary, fmt.Errorf("last attempt: %w", err)
	}
	summary.LastOutcome = last.Outcome
	summary.LastExitCode = last.ExitCode
	summary.LastError = last.Error
	summary.LastAttemptAt = last.FinishedAt
	return summary, nil
}

// Recent returns up to limit attempts, newest first. A limit of zero or less
// returns every attempt.
func (s *Store) Recent(ctx context.Context, limit int) ([]Attempt, error) {
	ctx = ensureContext(ctx)
	query := `SELECT ` + attemptColumns + ` FROM attempts ORDER BY id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	var attempts []Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// Stats returns aggregate counts across all attempts.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	ctx = ensureContext(ctx)
	var stats Stats
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1),
                COALESCE(SUM(CASE WHEN outcome = ? THEN 1 ELSE 0 END), 0),
                COALESCE(SUM(CASE WHEN outcome = ? THEN 1 ELSE 0 END), 0),
                COUNT(DISTINCT staged_name)
         FROM attempts`,
		string(OutcomeSucceeded), string(OutcomeFailed),
	)
	if err := row.Scan(&stats.Attempts, &stats.Succeeded, &stats.Failed, &stats.Entries); err != nil {
		return stats, fmt.Errorf("attempt stats: %w", err)
	}
	return stats, nil
}

func scanAttempt(scanner interface{ Scan(dest ...any) error }) (Attempt, error) {
	var (
		a           Attempt
		generation  sql.NullString
		sourceID    sql.NullString
		phase       string
		outcome     string
		errorMsg    sql.NullString
		cycleID     sql.NullString
		startedRaw  string
		finishedRaw string
	)
	if err := scanner.Scan(
		&a.ID,
		&a.StagedName,
		&generation,
		&sourceID,
		&phase,
		&outcome,
		&a.ExitCode,
		&errorMsg,
		&cycleID,
		&startedRaw,
		&finishedRaw,
	); err != nil {
		return Attempt{}, err
	}
	a.Generation = generation.String
	a.SourceID = sourceID.String
	a.Phase = Phase(phase)
	a.Outcome = Outcome(outcome)
	a.Error = errorMsg.String
	a.CycleID = cycleID.String
	if started, err := parseTimeString(startedRaw); err == nil {
		a.StartedAt = started
	}
	if finished, err := parseTimeString(finishedRaw); err == nil {
		a.FinishedAt = finished
	}
	return a, nil
}
