package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"homeledger/internal/core"
)

// Contribute adds amount to a savings goal and appends the matching ledger
// row in one transaction. The balance update is a single conditional
// statement, so concurrent contributions can never push the goal past its
// target: the losing statement matches no row and the call reports
// ErrExceedsTarget.
func (r *SQLiteRepository) Contribute(ctx context.Context, householdID, goalID, userID int64, amount core.Money) (core.SavingsGoal, core.Transaction, error) {
	if err := amount.Validate(); err != nil {
		return core.SavingsGoal{}, core.Transaction{}, err
	}

	var (
		goal  core.SavingsGoal
		entry core.Transaction
	)
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		goal, err = getGoal(ctx, tx, householdID, goalID)
		if err != nil {
			return err
		}
		if !goal.CanAccept(amount) {
			return core.ErrExceedsTarget
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE savings_goals SET current_cents = current_cents + ?
			 WHERE id = ? AND household_id = ? AND current_cents + ? <= target_cents`,
			amount.Cents, goalID, householdID, amount.Cents)
		if err != nil {
			return fmt.Errorf("update goal balance: %w", err)
		}
		n, err := rowsAffected(res)
		if err != nil {
			return err
		}
		if n == 0 {
			return core.ErrExceedsTarget
		}
		goal.Current.Cents += amount.Cents

		categoryID, err := resolveCategory(ctx, tx, householdID, core.ContributionCategoryName, core.CategoryGoal)
		if err != nil {
			return err
		}

		entry = core.Transaction{
			HouseholdID: householdID,
			UserID:      userID,
			CategoryID:  categoryID,
			Amount:      amount,
			Notes:       "Contribution to " + goal.Name,
			IsShared:    true,
			SourceKind:  core.SourceGoal,
			SourceID:    goal.ID,
			SourceName:  goal.Name,
		}
		return insertTransaction(ctx, tx, &entry)
	})
	if err != nil {
		return core.SavingsGoal{}, core.Transaction{}, fmt.Errorf("contribute to goal %d: %w", goalID, err)
	}

	slog.InfoContext(ctx, "Goal contribution recorded",
		"household_id", householdID,
		"goal_id", goalID,
		"user_id", userID,
		"amount", amount.String(),
		"current", goal.Current.String(),
		"target", goal.Target.String(),
		"transaction_id", entry.ID)

	return goal, entry, nil
}

// SettleBill marks a pending or overdue bill paid and appends the matching
// ledger row in one transaction. Paid is terminal: settling it again returns
// ErrBillAlreadyPaid and records nothing.
func (r *SQLiteRepository) SettleBill(ctx context.Context, householdID, billID, userID int64) (core.Bill, core.Transaction, error) {
	var (
		bill  core.Bill
		entry core.Transaction
	)
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		bill, err = getBill(ctx, tx, householdID, billID)
		if err != nil {
			return err
		}
		if !bill.Status.CanTransitionTo(core.BillPaid) {
			return core.ErrBillAlreadyPaid
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE bills SET status = 'paid'
			 WHERE id = ? AND household_id = ? AND status IN ('pending', 'overdue')`,
			billID, householdID)
		if err != nil {
			return fmt.Errorf("update bill status: %w", err)
		}
		n, err := rowsAffected(res)
		if err != nil {
			return err
		}
		if n == 0 {
			return core.ErrBillAlreadyPaid
		}
		bill.Status = core.BillPaid

		categoryID, err := resolveCategory(ctx, tx, householdID, core.BillCategoryName, core.CategoryBill)
		if err != nil {
			return err
		}

		entry = core.Transaction{
			HouseholdID: householdID,
			UserID:      userID,
			CategoryID:  categoryID,
			Amount:      bill.Amount,
			Notes:       "Paid bill: " + bill.Name,
			IsShared:    true,
			SourceKind:  core.SourceBill,
			SourceID:    bill.ID,
			SourceName:  bill.Name,
		}
		return insertTransaction(ctx, tx, &entry)
	})
	if err != nil {
		return core.Bill{}, core.Transaction{}, fmt.Errorf("settle bill %d: %w", billID, err)
	}

	slog.InfoContext(ctx, "Bill settled",
		"household_id", householdID,
		"bill_id", billID,
		"user_id", userID,
		"amount", bill.Amount.String(),
		"transaction_id", entry.ID)

	return bill, entry, nil
}

// RecordPayment stores a user-to-user payment as a settled DebtSettlement and
// the payer's ledger row in one transaction. The category is only checked to
// belong to the household.
func (r *SQLiteRepository) RecordPayment(ctx context.Context, householdID, payerID, receiverID, categoryID int64, amount core.Money) (core.DebtSettlement, core.Transaction, error) {
	if err := amount.Validate(); err != nil {
		return core.DebtSettlement{}, core.Transaction{}, err
	}
	if payerID == receiverID {
		return core.DebtSettlement{}, core.Transaction{}, core.ErrSelfPayment
	}

	var (
		settlement core.DebtSettlement
		entry      core.Transaction
	)
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		payer, err := getMember(ctx, tx, householdID, payerID)
		if err != nil {
			return err
		}
		receiver, err := getMember(ctx, tx, householdID, receiverID)
		if errors.Is(err, core.ErrNotMember) {
			return core.ErrUserNotFound
		}
		if err != nil {
			return err
		}
		if _, err := getCategory(ctx, tx, householdID, categoryID); err != nil {
			return err
		}

		var createdAt string
		if err := tx.QueryRowContext(ctx,
			`INSERT INTO debt_settlements (household_id, payer_user_id, receiver_user_id, amount_cents, status)
			 VALUES (?, ?, ?, ?, ?) RETURNING id, created_at`,
			householdID, payerID, receiverID, amount.Cents, core.SettlementSettled,
		).Scan(&settlement.ID, &createdAt); err != nil {
			return fmt.Errorf("insert settlement: %w", err)
		}
		receiverName := receiver.Username
		if receiverName == "" {
			receiverName = "User"
		}
		settlement.HouseholdID = householdID
		settlement.PayerID = payerID
		settlement.PayerName = payer.Username
		settlement.ReceiverID = receiverID
		settlement.ReceiverName = receiverName
		settlement.Amount = amount
		settlement.Status = core.SettlementSettled
		settlement.CreatedAt = parseTime(createdAt)

		entry = core.Transaction{
			HouseholdID: householdID,
			UserID:      payerID,
			CategoryID:  categoryID,
			Amount:      amount,
			Notes:       "Payment to " + receiverName,
			IsShared:    true,
			SourceKind:  core.SourcePayment,
			SourceID:    settlement.ID,
			SourceName:  receiverName,
		}
		return insertTransaction(ctx, tx, &entry)
	})
	if err != nil {
		return core.DebtSettlement{}, core.Transaction{}, fmt.Errorf("record payment: %w", err)
	}

	slog.InfoContext(ctx, "Payment recorded",
		"household_id", householdID,
		"payer_id", payerID,
		"receiver_id", receiverID,
		"amount", amount.String(),
		"settlement_id", settlement.ID,
		"transaction_id", entry.ID)

	return settlement, entry, nil
}

func insertTransaction(ctx context.Context, q querier, t *core.Transaction) error {
	var createdAt string
	err := q.QueryRowContext(ctx,
		`INSERT INTO transactions
		 (household_id, user_id, category_id, amount_cents, notes, is_shared, source_kind, source_id, source_name)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 RETURNING id, created_at`,
		t.HouseholdID, t.UserID, t.CategoryID, t.Amount.Cents, t.Notes, t.IsShared,
		t.SourceKind, t.SourceID, t.SourceName,
	).Scan(&t.ID, &createdAt)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("insert transaction: %w", core.ErrUserNotFound)
	}
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	t.CreatedAt = parseTime(createdAt)
	return nil
}
