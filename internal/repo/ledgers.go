package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"lifeswap/internal/domain"
)

// ErrOpenLedgerExists reports a lost race on the one-open-ledger index.
var ErrOpenLedgerExists = errors.New("open ledger exists")

const ledgerColumns = `id,user_id,experience_id,current_scenario_id,outcome,is_completed,completion_percentage,points_earned,time_spent,entry_points,total_scenarios,max_steps,policy,step_count,started_at,completed_at`

func scanLedger(row rowScanner) (domain.Ledger, error) {
	var l domain.Ledger
	var current, completedAt sql.NullString
	var completed int
	err := row.Scan(&l.ID, &l.UserID, &l.ExperienceID, &current, &l.Outcome, &completed, &l.CompletionPercentage,
		&l.PointsEarned, &l.TimeSpent, &l.EntryPoints, &l.TotalScenarios, &l.MaxSteps, &l.Policy, &l.StepCount,
		&l.StartedAt, &completedAt)
	if err == sql.ErrNoRows {
		return l, ErrNotFound
	}
	if err != nil {
		return l, err
	}
	l.CurrentScenarioID = stringPtr(current)
	l.IsCompleted = completed == 1
	l.CompletedAt = stringPtr(completedAt)
	return l, nil
}

func (r Repo) InsertLedger(ctx context.Context, tx *sql.Tx, l domain.Ledger) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO ledgers(`+ledgerColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		l.ID, l.UserID, l.ExperienceID, nullableStringPtr(l.CurrentScenarioID), l.Outcome, boolInt(l.IsCompleted),
		l.CompletionPercentage, l.PointsEarned, l.TimeSpent, l.EntryPoints, l.TotalScenarios, l.MaxSteps, l.Policy,
		l.StepCount, l.StartedAt, nullableStringPtr(l.CompletedAt))
	if err != nil && isUniqueViolation(err) {
		return ErrOpenLedgerExists
	}
	return err
}

// UpdateLedger writes the aggregates only when the stored step_count still equals
// expectedSteps; otherwise another writer got there first.
func (r Repo) UpdateLedger(ctx context.Context, tx *sql.Tx, l domain.Ledger, expectedSteps int) error {
	res, err := tx.ExecContext(ctx, `UPDATE ledgers SET current_scenario_id=?, outcome=?, is_completed=?, completion_percentage=?, points_earned=?,
 time_spent=?, step_count=?, completed_at=? WHERE id=? AND step_count=?`,
		nullableStringPtr(l.CurrentScenarioID), l.Outcome, boolInt(l.IsCompleted), l.CompletionPercentage, l.PointsEarned,
		l.TimeSpent, l.StepCount, nullableStringPtr(l.CompletedAt), l.ID, expectedSteps)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrConcurrentUpdate
	}
	return nil
}

func (r Repo) InsertStep(ctx context.Context, tx *sql.Tx, s domain.LedgerStep) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO ledger_steps(ledger_id,seq,choice_id,from_scenario_id,to_scenario_id,points_impact,arrival_points,elapsed_seconds,time_limit,created_at)
VALUES (?,?,?,?,?,?,?,?,?,?)`,
		s.LedgerID, s.Seq, s.ChoiceID, s.FromScenarioID, nullableStringPtr(s.ToScenarioID), s.PointsImpact, s.ArrivalPoints,
		s.ElapsedSeconds, nullableIntPtr(s.TimeLimit), s.CreatedAt)
	if err != nil && isUniqueViolation(err) {
		return domain.ErrConcurrentUpdate
	}
	return err
}

// GetLedger loads a ledger with its full step history.
func (r Repo) GetLedger(ctx context.Context, tx *sql.Tx, id string) (domain.Ledger, error) {
	q := r.q(tx)
	l, err := scanLedger(q.QueryRowContext(ctx, `SELECT `+ledgerColumns+` FROM ledgers WHERE id=?`, id))
	if err != nil {
		return l, err
	}
	steps, err := listSteps(ctx, q, id)
	if err != nil {
		return l, err
	}
	l.Steps = steps
	return l, nil
}

// OpenLedger returns the incomplete ledger of a user for an experience.
func (r Repo) OpenLedger(ctx context.Context, tx *sql.Tx, userID, experienceID string) (domain.Ledger, error) {
	q := r.q(tx)
	l, err := scanLedger(q.QueryRowContext(ctx, `SELECT `+ledgerColumns+` FROM ledgers WHERE user_id=? AND experience_id=? AND is_completed=0`, userID, experienceID))
	if err != nil {
		return l, err
	}
	steps, err := listSteps(ctx, q, l.ID)
	if err != nil {
		return l, err
	}
	l.Steps = steps
	return l, nil
}

type LedgerFilters struct {
	UserID       string
	ExperienceID string
	Completed    *bool
	Limit        int
}

// ListLedgers returns ledgers newest first, without step history.
func (r Repo) ListLedgers(ctx context.Context, f LedgerFilters) ([]domain.Ledger, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.UserID != "" {
		clauses = append(clauses, "user_id=?")
		args = append(args, f.UserID)
	}
	if f.ExperienceID != "" {
		clauses = append(clauses, "experience_id=?")
		args = append(args, f.ExperienceID)
	}
	if f.Completed != nil {
		clauses = append(clauses, "is_completed=?")
		args = append(args, boolInt(*f.Completed))
	}
	query := fmt.Sprintf(`SELECT %s FROM ledgers WHERE %s ORDER BY started_at DESC, id DESC`, ledgerColumns, strings.Join(clauses, " AND "))
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Ledger
	for rows.Next() {
		l, err := scanLedger(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, l)
	}
	return res, rows.Err()
}

func listSteps(ctx context.Context, q querier, ledgerID string) ([]domain.LedgerStep, error) {
	rows, err := q.QueryContext(ctx, `SELECT ledger_id,seq,choice_id,from_scenario_id,to_scenario_id,points_impact,arrival_points,elapsed_seconds,time_limit,created_at
FROM ledger_steps WHERE ledger_id=? ORDER BY seq`, ledgerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	steps := []domain.LedgerStep{}
	for rows.Next() {
		var s domain.LedgerStep
		var to sql.NullString
		var limit sql.NullInt64
		if err := rows.Scan(&s.LedgerID, &s.Seq, &s.ChoiceID, &s.FromScenarioID, &to, &s.PointsImpact, &s.ArrivalPoints,
			&s.ElapsedSeconds, &limit, &s.CreatedAt); err != nil {
			return nil, err
		}
		s.ToScenarioID = stringPtr(to)
		s.TimeLimit = intPtr(limit)
		steps = append(steps, s)
	}
	return steps, rows.Err()
}

func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "constraint failed: UNIQUE")
}
