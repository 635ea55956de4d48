package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"homeledger/internal/core"
)

func (r *SQLiteRepository) CreateUser(ctx context.Context, u core.User) (core.User, error) {
	if err := u.Validate(); err != nil {
		return core.User{}, err
	}
	var createdAt string
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO users (username, email) VALUES (?, ?) RETURNING id, created_at`,
		u.Username, u.Email,
	).Scan(&u.ID, &createdAt)
	if isUniqueViolation(err) {
		return core.User{}, fmt.Errorf("create user %q: %w", u.Username, core.ErrDuplicate)
	}
	if err != nil {
		return core.User{}, fmt.Errorf("create user: %w", err)
	}
	u.CreatedAt = parseTime(createdAt)

	slog.InfoContext(ctx, "User created", "user_id", u.ID, "username", u.Username)
	return u, nil
}

func (r *SQLiteRepository) GetUser(ctx context.Context, userID int64) (core.User, error) {
	var (
		u         core.User
		createdAt string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, username, email, created_at FROM users WHERE id = ?`, userID,
	).Scan(&u.ID, &u.Username, &u.Email, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, core.ErrUserNotFound
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user: %w", err)
	}
	u.CreatedAt = parseTime(createdAt)
	return u, nil
}

// RenameUser changes a username; the new name must be unused.
func (r *SQLiteRepository) RenameUser(ctx context.Context, userID int64, username string) error {
	if err := core.ValidateName(username); err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `UPDATE users SET username = ? WHERE id = ?`, username, userID)
	if isUniqueViolation(err) {
		return fmt.Errorf("rename user to %q: %w", username, core.ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("rename user: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return core.ErrUserNotFound
	}
	return nil
}

// CreateHousehold creates a household and makes adminUserID its admin in one
// transaction.
func (r *SQLiteRepository) CreateHousehold(ctx context.Context, name string, adminUserID int64) (core.Household, error) {
	h := core.Household{Name: name}
	if err := h.Validate(); err != nil {
		return h, err
	}

	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var createdAt string
		if err := tx.QueryRowContext(ctx,
			`INSERT INTO households (name) VALUES (?) RETURNING id, created_at`, name,
		).Scan(&h.ID, &createdAt); err != nil {
			return fmt.Errorf("insert household: %w", err)
		}
		h.CreatedAt = parseTime(createdAt)

		_, err := tx.ExecContext(ctx,
			`INSERT INTO household_members (household_id, user_id, role) VALUES (?, ?, ?)`,
			h.ID, adminUserID, core.RoleAdmin)
		if isForeignKeyViolation(err) {
			return core.ErrUserNotFound
		}
		if err != nil {
			return fmt.Errorf("insert household admin: %w", err)
		}
		return nil
	})
	if err != nil {
		return core.Household{}, err
	}

	slog.InfoContext(ctx, "Household created", "household_id", h.ID, "admin_user_id", adminUserID)
	return h, nil
}

func (r *SQLiteRepository) GetHousehold(ctx context.Context, householdID int64) (core.Household, error) {
	var (
		h         core.Household
		createdAt string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM households WHERE id = ?`, householdID,
	).Scan(&h.ID, &h.Name, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Household{}, core.ErrHouseholdNotFound
	}
	if err != nil {
		return core.Household{}, fmt.Errorf("get household: %w", err)
	}
	h.CreatedAt = parseTime(createdAt)
	return h, nil
}

func (r *SQLiteRepository) AddMember(ctx context.Context, householdID, userID int64, role core.Role) error {
	if !role.Valid() {
		return core.ErrInvalidRole
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO household_members (household_id, user_id, role) VALUES (?, ?, ?)`,
		householdID, userID, role)
	switch {
	case isUniqueViolation(err):
		return fmt.Errorf("add member %d: %w", userID, core.ErrDuplicate)
	case isForeignKeyViolation(err):
		return fmt.Errorf("add member %d: %w", userID, core.ErrUserNotFound)
	case err != nil:
		return fmt.Errorf("add member: %w", err)
	}
	return nil
}

// GetMember returns the membership of userID in householdID, or ErrNotMember.
func (r *SQLiteRepository) GetMember(ctx context.Context, householdID, userID int64) (core.Member, error) {
	return getMember(ctx, r.db, householdID, userID)
}

func getMember(ctx context.Context, q querier, householdID, userID int64) (core.Member, error) {
	m := core.Member{HouseholdID: householdID, UserID: userID}
	err := q.QueryRowContext(ctx,
		`SELECT u.username, hm.role
		 FROM household_members hm
		 JOIN users u ON u.id = hm.user_id
		 WHERE hm.household_id = ? AND hm.user_id = ?`,
		householdID, userID,
	).Scan(&m.Username, &m.Role)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Member{}, core.ErrNotMember
	}
	if err != nil {
		return core.Member{}, fmt.Errorf("get member: %w", err)
	}
	return m, nil
}

func (r *SQLiteRepository) ListMembers(ctx context.Context, householdID int64) ([]core.Member, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT u.id, u.username, hm.role
		 FROM household_members hm
		 JOIN users u ON u.id = hm.user_id
		 WHERE hm.household_id = ?
		 ORDER BY u.username`,
		householdID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var members []core.Member
	for rows.Next() {
		m := core.Member{HouseholdID: householdID}
		if err := rows.Scan(&m.UserID, &m.Username, &m.Role); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// HouseholdsForUser lists the households a user belongs to, oldest
// membership first.
func (r *SQLiteRepository) HouseholdsForUser(ctx context.Context, userID int64) ([]core.Membership, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT h.id, h.name, h.created_at, hm.role
		 FROM household_members hm
		 JOIN households h ON h.id = hm.household_id
		 WHERE hm.user_id = ?
		 ORDER BY hm.joined_at, hm.household_id`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("list households for user: %w", err)
	}
	defer rows.Close()

	var memberships []core.Membership
	for rows.Next() {
		var (
			m         core.Membership
			createdAt string
		)
		if err := rows.Scan(&m.Household.ID, &m.Household.Name, &createdAt, &m.Role); err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		m.Household.CreatedAt = parseTime(createdAt)
		memberships = append(memberships, m)
	}
	return memberships, rows.Err()
}
