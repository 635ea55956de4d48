package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"homeledger/internal/core"
)

// ResolvePermanentCategory returns the id of the household's permanent
// category for t, creating it on first use. name must be the reserved name
// for t ("Bill" for bill, "Contribution" for goal).
func (r *SQLiteRepository) ResolvePermanentCategory(ctx context.Context, householdID int64, name string, t core.CategoryType) (int64, error) {
	want, err := core.PermanentCategoryName(t)
	if err != nil {
		return 0, err
	}
	if name != want {
		return 0, fmt.Errorf("resolve category %q of type %s: %w", name, t, core.ErrInvalidCategoryType)
	}

	var id int64
	err = r.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		id, err = resolveCategory(ctx, tx, householdID, name, t)
		return err
	})
	return id, err
}

// resolveCategory is get-or-create on (household_id, name, type). A
// concurrent insert of the same triple is absorbed by the unique constraint
// and the surviving row is re-read.
func resolveCategory(ctx context.Context, q querier, householdID int64, name string, t core.CategoryType) (int64, error) {
	const selectQ = `SELECT id FROM categories WHERE household_id = ? AND name = ? AND type = ?`

	var id int64
	err := q.QueryRowContext(ctx, selectQ, householdID, name, t).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("find category: %w", err)
	}

	_, err = q.ExecContext(ctx,
		`INSERT INTO categories (household_id, name, type) VALUES (?, ?, ?)
		 ON CONFLICT (household_id, name, type) DO NOTHING`,
		householdID, name, t)
	if isForeignKeyViolation(err) {
		return 0, fmt.Errorf("create category %q: %w", name, core.ErrHouseholdNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("create category %q: %w", name, err)
	}

	if err := q.QueryRowContext(ctx, selectQ, householdID, name, t).Scan(&id); err != nil {
		return 0, fmt.Errorf("re-read category %q: %w", name, err)
	}
	slog.InfoContext(ctx, "Permanent category resolved", "household_id", householdID, "name", name, "category_id", id)
	return id, nil
}

func (r *SQLiteRepository) CreateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO categories (household_id, name, type) VALUES (?, ?, ?) RETURNING id`,
		c.HouseholdID, c.Name, c.Type,
	).Scan(&c.ID)
	switch {
	case isUniqueViolation(err):
		return core.Category{}, fmt.Errorf("create category %q: %w", c.Name, core.ErrDuplicate)
	case isForeignKeyViolation(err):
		return core.Category{}, fmt.Errorf("create category %q: %w", c.Name, core.ErrHouseholdNotFound)
	case err != nil:
		return core.Category{}, fmt.Errorf("create category: %w", err)
	}
	return c, nil
}

func (r *SQLiteRepository) GetCategory(ctx context.Context, householdID, categoryID int64) (core.Category, error) {
	return getCategory(ctx, r.db, householdID, categoryID)
}

func getCategory(ctx context.Context, q querier, householdID, categoryID int64) (core.Category, error) {
	c := core.Category{ID: categoryID, HouseholdID: householdID}
	err := q.QueryRowContext(ctx,
		`SELECT name, type FROM categories WHERE id = ? AND household_id = ?`,
		categoryID, householdID,
	).Scan(&c.Name, &c.Type)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Category{}, core.ErrCategoryNotFound
	}
	if err != nil {
		return core.Category{}, fmt.Errorf("get category: %w", err)
	}
	return c, nil
}

// ListCategories lists the household categories ordered by type then name.
// An empty filter returns every type.
func (r *SQLiteRepository) ListCategories(ctx context.Context, householdID int64, filter core.CategoryType) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, type FROM categories
		 WHERE household_id = ? AND (? = '' OR type = ?)
		 ORDER BY type, name`,
		householdID, filter, filter)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var categories []core.Category
	for rows.Next() {
		c := core.Category{HouseholdID: householdID}
		if err := rows.Scan(&c.ID, &c.Name, &c.Type); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// DeleteCategory removes a category that no ledger row references.
func (r *SQLiteRepository) DeleteCategory(ctx context.Context, householdID, categoryID int64) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		var refs int64
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM transactions WHERE category_id = ? AND household_id = ?`,
			categoryID, householdID,
		).Scan(&refs); err != nil {
			return fmt.Errorf("count category references: %w", err)
		}
		if refs > 0 {
			return core.ErrCategoryInUse
		}

		res, err := tx.ExecContext(ctx,
			`DELETE FROM categories WHERE id = ? AND household_id = ?`, categoryID, householdID)
		if err != nil {
			return fmt.Errorf("delete category: %w", err)
		}
		n, err := rowsAffected(res)
		if err != nil {
			return err
		}
		if n == 0 {
			return core.ErrCategoryNotFound
		}
		return nil
	})
}
