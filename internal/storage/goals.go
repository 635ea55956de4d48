package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"homeledger/internal/core"
)

const goalColumns = `id, household_id, name, target_cents, current_cents, created_at`

func scanGoal(row interface{ Scan(...any) error }) (core.SavingsGoal, error) {
	var (
		g         core.SavingsGoal
		createdAt string
	)
	if err := row.Scan(&g.ID, &g.HouseholdID, &g.Name, &g.Target.Cents, &g.Current.Cents, &createdAt); err != nil {
		return core.SavingsGoal{}, err
	}
	g.CreatedAt = parseTime(createdAt)
	return g, nil
}

func (r *SQLiteRepository) CreateGoal(ctx context.Context, g core.SavingsGoal) (core.SavingsGoal, error) {
	if err := g.Validate(); err != nil {
		return core.SavingsGoal{}, err
	}
	created, err := scanGoal(r.db.QueryRowContext(ctx,
		`INSERT INTO savings_goals (household_id, name, target_cents, current_cents)
		 VALUES (?, ?, ?, ?) RETURNING `+goalColumns,
		g.HouseholdID, g.Name, g.Target.Cents, g.Current.Cents))
	if isForeignKeyViolation(err) {
		return core.SavingsGoal{}, fmt.Errorf("create goal %q: %w", g.Name, core.ErrHouseholdNotFound)
	}
	if err != nil {
		return core.SavingsGoal{}, fmt.Errorf("create goal: %w", err)
	}
	return created, nil
}

func (r *SQLiteRepository) GetGoal(ctx context.Context, householdID, goalID int64) (core.SavingsGoal, error) {
	return getGoal(ctx, r.db, householdID, goalID)
}

func getGoal(ctx context.Context, q querier, householdID, goalID int64) (core.SavingsGoal, error) {
	g, err := scanGoal(q.QueryRowContext(ctx,
		`SELECT `+goalColumns+` FROM savings_goals WHERE id = ? AND household_id = ?`,
		goalID, householdID))
	if errors.Is(err, sql.ErrNoRows) {
		return core.SavingsGoal{}, core.ErrGoalNotFound
	}
	if err != nil {
		return core.SavingsGoal{}, fmt.Errorf("get goal: %w", err)
	}
	return g, nil
}

// ListGoals returns the household goals, newest first.
func (r *SQLiteRepository) ListGoals(ctx context.Context, householdID int64) ([]core.SavingsGoal, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+goalColumns+` FROM savings_goals WHERE household_id = ? ORDER BY created_at DESC, id DESC`,
		householdID)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	defer rows.Close()

	var goals []core.SavingsGoal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan goal: %w", err)
		}
		goals = append(goals, g)
	}
	return goals, rows.Err()
}

func (r *SQLiteRepository) DeleteGoal(ctx context.Context, householdID, goalID int64) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM savings_goals WHERE id = ? AND household_id = ?`, goalID, householdID)
	if err != nil {
		return fmt.Errorf("delete goal: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return core.ErrGoalNotFound
	}
	return nil
}
