package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"homeledger/internal/core"
)

const transactionSelect = `SELECT t.id, t.household_id, t.user_id, u.username, t.category_id, c.name,
	t.amount_cents, t.notes, t.is_shared, t.source_kind, t.source_id, t.source_name, t.created_at
	FROM transactions t
	JOIN users u ON u.id = t.user_id
	JOIN categories c ON c.id = t.category_id`

func scanTransaction(row interface{ Scan(...any) error }) (core.Transaction, error) {
	var (
		t         core.Transaction
		createdAt string
	)
	if err := row.Scan(&t.ID, &t.HouseholdID, &t.UserID, &t.Username, &t.CategoryID, &t.CategoryName,
		&t.Amount.Cents, &t.Notes, &t.IsShared, &t.SourceKind, &t.SourceID, &t.SourceName, &createdAt); err != nil {
		return core.Transaction{}, err
	}
	t.CreatedAt = parseTime(createdAt)
	return t, nil
}

func (r *SQLiteRepository) queryTransactions(ctx context.Context, query string, args ...any) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// GetTransaction loads a ledger row by id regardless of household; used by
// the export worker which only knows the id from the event.
func (r *SQLiteRepository) GetTransaction(ctx context.Context, id int64) (core.Transaction, error) {
	t, err := scanTransaction(r.db.QueryRowContext(ctx, transactionSelect+` WHERE t.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, fmt.Errorf("transaction %d: %w", id, sql.ErrNoRows)
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	return t, nil
}

// ListRecentTransactions returns the newest ledger rows created within the
// last days days.
func (r *SQLiteRepository) ListRecentTransactions(ctx context.Context, householdID int64, days, limit int) ([]core.Transaction, error) {
	return r.queryTransactions(ctx,
		transactionSelect+`
		WHERE t.household_id = ? AND t.created_at >= `+sinceExpr+`
		ORDER BY t.created_at DESC, t.id DESC
		LIMIT ?`,
		householdID, periodStart(days), limit)
}

// CountTransactions counts the household's ledger rows.
func (r *SQLiteRepository) CountTransactions(ctx context.Context, householdID int64) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions WHERE household_id = ?`, householdID,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("count transactions: %w", err)
	}
	return n, nil
}

// ListSettlements returns the settlements the user paid or received, newest first.
func (r *SQLiteRepository) ListSettlements(ctx context.Context, householdID, userID int64) ([]core.DebtSettlement, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT ds.id, ds.household_id, ds.payer_user_id, payer.username, ds.receiver_user_id,
		        receiver.username, ds.amount_cents, ds.status, ds.created_at
		 FROM debt_settlements ds
		 JOIN users payer ON payer.id = ds.payer_user_id
		 JOIN users receiver ON receiver.id = ds.receiver_user_id
		 WHERE ds.household_id = ? AND (ds.payer_user_id = ? OR ds.receiver_user_id = ?)
		 ORDER BY ds.created_at DESC, ds.id DESC`,
		householdID, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("list settlements: %w", err)
	}
	defer rows.Close()

	var out []core.DebtSettlement
	for rows.Next() {
		var (
			s         core.DebtSettlement
			createdAt string
		)
		if err := rows.Scan(&s.ID, &s.HouseholdID, &s.PayerID, &s.PayerName, &s.ReceiverID,
			&s.ReceiverName, &s.Amount.Cents, &s.Status, &createdAt); err != nil {
			return nil, fmt.Errorf("scan settlement: %w", err)
		}
		s.CreatedAt = parseTime(createdAt)
		out = append(out, s)
	}
	return out, rows.Err()
}

// labelExpr groups bill and contribution rows by the bill or goal they came
// from and every other row by its category name.
const labelExpr = `CASE WHEN t.source_kind IN ('bill', 'goal') AND t.source_name <> '' THEN t.source_name ELSE c.name END`

// SpendingSummary aggregates the household ledger over the last days days.
// userID selects whose spending counts as "mine" in the comparison.
func (r *SQLiteRepository) SpendingSummary(ctx context.Context, householdID, userID int64, days int) (core.SpendingSummary, error) {
	summary := core.SpendingSummary{Since: sinceDaysUTC(days)}
	period := periodStart(days)

	byCategory, err := r.sumByLabel(ctx,
		`SELECT `+labelExpr+` AS label, SUM(t.amount_cents)
		 FROM transactions t JOIN categories c ON c.id = t.category_id
		 WHERE t.household_id = ? AND t.created_at >= `+sinceExpr+`
		 GROUP BY label ORDER BY SUM(t.amount_cents) DESC, label`,
		householdID, period)
	if err != nil {
		return summary, err
	}
	summary.ByCategory = byCategory

	rows, err := r.db.QueryContext(ctx,
		`SELECT u.username, SUM(t.amount_cents), COUNT(*)
		 FROM transactions t JOIN users u ON u.id = t.user_id
		 WHERE t.household_id = ? AND t.created_at >= `+sinceExpr+`
		 GROUP BY u.id, u.username`,
		householdID, period)
	if err != nil {
		return summary, fmt.Errorf("member averages: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			avg   core.MemberAverage
			total int64
		)
		if err := rows.Scan(&avg.Username, &total, &avg.Count); err != nil {
			return summary, fmt.Errorf("scan member average: %w", err)
		}
		avg.Average = core.AverageOf(core.Money{Cents: total}, avg.Count)
		summary.TopAverages = append(summary.TopAverages, avg)
	}
	if err := rows.Err(); err != nil {
		return summary, fmt.Errorf("member averages: %w", err)
	}
	rows.Close()
	summary.TopAverages = topAverages(summary.TopAverages, 5)

	if err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(CASE WHEN user_id = ? THEN amount_cents ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN user_id <> ? THEN amount_cents ELSE 0 END), 0)
		 FROM transactions
		 WHERE household_id = ? AND created_at >= `+sinceExpr,
		userID, userID, householdID, period,
	).Scan(&summary.MySpending.Cents, &summary.OthersSpending.Cents); err != nil {
		return summary, fmt.Errorf("spending comparison: %w", err)
	}
	summary.Total = summary.MySpending.Add(summary.OthersSpending)

	return summary, nil
}

// MemberSpending is the single-member view: totals and averages per label and
// the cumulative daily series.
func (r *SQLiteRepository) MemberSpending(ctx context.Context, householdID, userID int64, days int) (core.MemberSpending, error) {
	out := core.MemberSpending{Since: sinceDaysUTC(days)}
	period := periodStart(days)

	byCategory, err := r.sumByLabel(ctx,
		`SELECT `+labelExpr+` AS label, SUM(t.amount_cents)
		 FROM transactions t JOIN categories c ON c.id = t.category_id
		 WHERE t.household_id = ? AND t.user_id = ? AND t.created_at >= `+sinceExpr+`
		 GROUP BY label ORDER BY SUM(t.amount_cents) DESC, label`,
		householdID, userID, period)
	if err != nil {
		return out, err
	}
	out.ByCategory = byCategory

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+labelExpr+` AS label, SUM(t.amount_cents), COUNT(*)
		 FROM transactions t JOIN categories c ON c.id = t.category_id
		 WHERE t.household_id = ? AND t.user_id = ? AND t.created_at >= `+sinceExpr+`
		 GROUP BY label`,
		householdID, userID, period)
	if err != nil {
		return out, fmt.Errorf("average by category: %w", err)
	}
	for rows.Next() {
		var (
			label        string
			total, count int64
		)
		if err := rows.Scan(&label, &total, &count); err != nil {
			rows.Close()
			return out, fmt.Errorf("scan category average: %w", err)
		}
		out.AverageByCategory = append(out.AverageByCategory, core.CategoryAmount{
			Name:   label,
			Amount: core.AverageOf(core.Money{Cents: total}, count),
		})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return out, fmt.Errorf("average by category: %w", err)
	}
	sortAmountsDesc(out.AverageByCategory)

	daily, err := r.db.QueryContext(ctx,
		`SELECT substr(created_at, 1, 10) AS day, SUM(amount_cents)
		 FROM transactions
		 WHERE household_id = ? AND user_id = ? AND created_at >= `+sinceExpr+`
		 GROUP BY day ORDER BY day ASC`,
		householdID, userID, period)
	if err != nil {
		return out, fmt.Errorf("daily spending: %w", err)
	}
	defer daily.Close()

	var running core.Money
	for daily.Next() {
		var (
			day   string
			total int64
		)
		if err := daily.Scan(&day, &total); err != nil {
			return out, fmt.Errorf("scan daily spending: %w", err)
		}
		date, err := core.ParseDate(day)
		if err != nil {
			return out, fmt.Errorf("daily spending date %q: %w", day, err)
		}
		running = running.Add(core.Money{Cents: total})
		out.Daily = append(out.Daily, core.DailyTotal{Date: date, Total: core.Money{Cents: total}, Cumulative: running})
	}
	return out, daily.Err()
}

func (r *SQLiteRepository) sumByLabel(ctx context.Context, query string, args ...any) ([]core.CategoryAmount, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("spending by category: %w", err)
	}
	defer rows.Close()

	var out []core.CategoryAmount
	for rows.Next() {
		var ca core.CategoryAmount
		if err := rows.Scan(&ca.Name, &ca.Amount.Cents); err != nil {
			return nil, fmt.Errorf("scan category amount: %w", err)
		}
		out = append(out, ca)
	}
	return out, rows.Err()
}

// PendingExport returns ledger rows not yet exported, oldest first.
func (r *SQLiteRepository) PendingExport(ctx context.Context, limit int) ([]core.Transaction, error) {
	return r.queryTransactions(ctx,
		transactionSelect+` WHERE t.sync_status = 'pending' ORDER BY t.id ASC LIMIT ?`, limit)
}

// Sync statuses of a ledger row's export.
const (
	SyncPending = "pending"
	SyncSynced  = "synced"
	SyncError   = "error"
)

// SyncStatus returns the export state of a ledger row.
func (r *SQLiteRepository) SyncStatus(ctx context.Context, id int64) (string, error) {
	var status string
	err := r.db.QueryRowContext(ctx, `SELECT sync_status FROM transactions WHERE id = ?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("transaction %d: %w", id, sql.ErrNoRows)
	}
	if err != nil {
		return "", fmt.Errorf("get sync status: %w", err)
	}
	return status, nil
}

func (r *SQLiteRepository) MarkExported(ctx context.Context, id int64) error {
	return r.setSyncStatus(ctx, id, SyncSynced)
}

func (r *SQLiteRepository) MarkExportError(ctx context.Context, id int64) error {
	return r.setSyncStatus(ctx, id, SyncError)
}

// RetryExportErrors puts failed rows back in the pending queue.
func (r *SQLiteRepository) RetryExportErrors(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE transactions SET sync_status = 'pending' WHERE sync_status = 'error'`)
	if err != nil {
		return 0, fmt.Errorf("retry export errors: %w", err)
	}
	return rowsAffected(res)
}

func (r *SQLiteRepository) setSyncStatus(ctx context.Context, id int64, status string) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET sync_status = ? WHERE id = ?`, status, id); err != nil {
		return fmt.Errorf("set sync status %s for transaction %d: %w", status, id, err)
	}
	return nil
}

func sinceDaysUTC(days int) time.Time {
	return time.Now().UTC().AddDate(0, 0, -days)
}

// topAverages keeps the n members with the highest average amount.
func topAverages(avgs []core.MemberAverage, n int) []core.MemberAverage {
	sort.SliceStable(avgs, func(i, j int) bool {
		if avgs[i].Average.Cents != avgs[j].Average.Cents {
			return avgs[i].Average.Cents > avgs[j].Average.Cents
		}
		return avgs[i].Username < avgs[j].Username
	})
	if len(avgs) > n {
		avgs = avgs[:n]
	}
	return avgs
}

func sortAmountsDesc(amounts []core.CategoryAmount) {
	sort.SliceStable(amounts, func(i, j int) bool {
		if amounts[i].Amount.Cents != amounts[j].Amount.Cents {
			return amounts[i].Amount.Cents > amounts[j].Amount.Cents
		}
		return amounts[i].Name < amounts[j].Name
	})
}
