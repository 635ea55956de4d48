package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"homeledger/internal/core"
)

const billColumns = `id, household_id, name, amount_cents, due_date, status, created_at`

func scanBill(row interface{ Scan(...any) error }) (core.Bill, error) {
	var (
		b         core.Bill
		dueDate   string
		createdAt string
	)
	if err := row.Scan(&b.ID, &b.HouseholdID, &b.Name, &b.Amount.Cents, &dueDate, &b.Status, &createdAt); err != nil {
		return core.Bill{}, err
	}
	due, err := core.ParseDate(dueDate)
	if err != nil {
		return core.Bill{}, fmt.Errorf("bill %d due date %q: %w", b.ID, dueDate, err)
	}
	b.DueDate = due
	b.CreatedAt = parseTime(createdAt)
	return b, nil
}

func (r *SQLiteRepository) CreateBill(ctx context.Context, b core.Bill) (core.Bill, error) {
	if err := b.Validate(); err != nil {
		return core.Bill{}, err
	}
	created, err := scanBill(r.db.QueryRowContext(ctx,
		`INSERT INTO bills (household_id, name, amount_cents, due_date, status)
		 VALUES (?, ?, ?, ?, 'pending') RETURNING `+billColumns,
		b.HouseholdID, b.Name, b.Amount.Cents, b.DueDate.String()))
	if isForeignKeyViolation(err) {
		return core.Bill{}, fmt.Errorf("create bill %q: %w", b.Name, core.ErrHouseholdNotFound)
	}
	if err != nil {
		return core.Bill{}, fmt.Errorf("create bill: %w", err)
	}
	return created, nil
}

func (r *SQLiteRepository) GetBill(ctx context.Context, householdID, billID int64) (core.Bill, error) {
	return getBill(ctx, r.db, householdID, billID)
}

func getBill(ctx context.Context, q querier, householdID, billID int64) (core.Bill, error) {
	b, err := scanBill(q.QueryRowContext(ctx,
		`SELECT `+billColumns+` FROM bills WHERE id = ? AND household_id = ?`, billID, householdID))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Bill{}, core.ErrBillNotFound
	}
	if err != nil {
		return core.Bill{}, fmt.Errorf("get bill: %w", err)
	}
	return b, nil
}

// ListBills returns every bill of the household ordered by due date.
func (r *SQLiteRepository) ListBills(ctx context.Context, householdID int64) ([]core.Bill, error) {
	return r.queryBills(ctx,
		`SELECT `+billColumns+` FROM bills WHERE household_id = ? ORDER BY due_date ASC, id ASC`,
		householdID)
}

// ListUpcomingBills returns bills due today or later, soonest first.
func (r *SQLiteRepository) ListUpcomingBills(ctx context.Context, householdID int64, limit int) ([]core.Bill, error) {
	return r.queryBills(ctx,
		`SELECT `+billColumns+` FROM bills
		 WHERE household_id = ? AND due_date >= date('now')
		 ORDER BY due_date ASC, id ASC
		 LIMIT ?`,
		householdID, limit)
}

func (r *SQLiteRepository) queryBills(ctx context.Context, query string, args ...any) ([]core.Bill, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list bills: %w", err)
	}
	defer rows.Close()

	var bills []core.Bill
	for rows.Next() {
		b, err := scanBill(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bill: %w", err)
		}
		bills = append(bills, b)
	}
	return bills, rows.Err()
}

func (r *SQLiteRepository) DeleteBill(ctx context.Context, householdID, billID int64) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM bills WHERE id = ? AND household_id = ?`, billID, householdID)
	if err != nil {
		return fmt.Errorf("delete bill: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return core.ErrBillNotFound
	}
	return nil
}

// SweepOverdue moves the household's pending bills whose due date is before
// the store's current date to overdue. Paid bills are never touched, so
// repeating the sweep without the date changing is a no-op.
func (r *SQLiteRepository) SweepOverdue(ctx context.Context, householdID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE bills SET status = 'overdue'
		 WHERE household_id = ? AND status = 'pending' AND due_date < date('now')`,
		householdID)
	if err != nil {
		return 0, fmt.Errorf("sweep overdue bills: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		slog.InfoContext(ctx, "Bills marked overdue", "household_id", householdID, "count", n)
	}
	return n, nil
}

// SweepAllOverdue runs the overdue sweep for every household at once.
func (r *SQLiteRepository) SweepAllOverdue(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE bills SET status = 'overdue' WHERE status = 'pending' AND due_date < date('now')`)
	if err != nil {
		return 0, fmt.Errorf("sweep overdue bills: %w", err)
	}
	return rowsAffected(res)
}
