package core

import (
	"strings"
	"time"
)

const (
	RoleAdmin   Role = "admin"
	RoleCoAdmin Role = "co-admin"
	RoleMember  Role = "member"
)

const (
	CategoryShared CategoryType = "shared"
	CategoryBill   CategoryType = "bill"
	CategoryGoal   CategoryType = "goal"
)

// Names of the permanent categories used to tag system-generated ledger rows.
const (
	BillCategoryName         = "Bill"
	ContributionCategoryName = "Contribution"
)

const (
	BillPending BillStatus = "pending"
	BillOverdue BillStatus = "overdue"
	BillPaid    BillStatus = "paid"
)

const (
	SourceBill    SourceKind = "bill"
	SourceGoal    SourceKind = "goal"
	SourcePayment SourceKind = "payment"
)

const SettlementSettled = "settled"

type (
	Role         string
	CategoryType string
	BillStatus   string
	SourceKind   string

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	User struct {
		ID        int64
		Username  string
		Email     string
		CreatedAt time.Time
	}

	Household struct {
		ID        int64
		Name      string
		CreatedAt time.Time
	}

	Member struct {
		HouseholdID int64
		UserID      int64
		Username    string
		Role        Role
	}

	Category struct {
		ID          int64
		HouseholdID int64
		Name        string
		Type        CategoryType
	}

	SavingsGoal struct {
		ID          int64
		HouseholdID int64
		Name        string
		Target      Money
		Current     Money
		CreatedAt   time.Time
	}

	Bill struct {
		ID          int64
		HouseholdID int64
		Name        string
		Amount      Money
		DueDate     Date
		Status      BillStatus
		CreatedAt   time.Time
	}

	// Transaction is an append-only ledger row. Source* identify the bill,
	// goal or settlement that produced it.
	Transaction struct {
		ID           int64
		HouseholdID  int64
		UserID       int64
		Username     string
		CategoryID   int64
		CategoryName string
		Amount       Money
		Notes        string
		IsShared     bool
		SourceKind   SourceKind
		SourceID     int64
		SourceName   string
		CreatedAt    time.Time
	}

	DebtSettlement struct {
		ID           int64
		HouseholdID  int64
		PayerID      int64
		PayerName    string
		ReceiverID   int64
		ReceiverName string
		Amount       Money
		Status       string
		CreatedAt    time.Time
	}
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleCoAdmin, RoleMember:
		return true
	}
	return false
}

// IsAdmin reports whether the role may create or delete goals, bills and categories.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin || r == RoleCoAdmin
}

func (t CategoryType) Valid() bool {
	switch t {
	case CategoryShared, CategoryBill, CategoryGoal:
		return true
	}
	return false
}

// Permanent reports whether categories of this type are auto-created by the ledger.
func (t CategoryType) Permanent() bool {
	return t == CategoryBill || t == CategoryGoal
}

// PermanentCategoryName returns the reserved name for a permanent category type.
func PermanentCategoryName(t CategoryType) (string, error) {
	switch t {
	case CategoryBill:
		return BillCategoryName, nil
	case CategoryGoal:
		return ContributionCategoryName, nil
	}
	return "", ErrInvalidCategoryType
}

func (s BillStatus) Valid() bool {
	switch s {
	case BillPending, BillOverdue, BillPaid:
		return true
	}
	return false
}

// CanTransitionTo encodes the bill state machine. Paid is terminal and no
// state returns to pending.
func (s BillStatus) CanTransitionTo(next BillStatus) bool {
	switch s {
	case BillPending:
		return next == BillOverdue || next == BillPaid
	case BillOverdue:
		return next == BillPaid
	}
	return false
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

const dateLayout = "2006-01-02"

// ParseDate parses an ISO calendar date (YYYY-MM-DD).
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

// String formats the date the way the store keeps it.
func (d Date) String() string {
	return d.Format(dateLayout)
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Achieved reports whether the goal reached its target.
func (g SavingsGoal) Achieved() bool {
	return g.Current.Cents >= g.Target.Cents
}

// Remaining is the largest contribution the goal still accepts.
func (g SavingsGoal) Remaining() Money {
	if g.Achieved() {
		return Money{}
	}
	return Money{Cents: g.Target.Cents - g.Current.Cents}
}

// CanAccept reports whether adding amount keeps the goal within its target.
func (g SavingsGoal) CanAccept(amount Money) bool {
	return amount.Cents > 0 && g.Current.Cents+amount.Cents <= g.Target.Cents
}

func (g SavingsGoal) Validate() error {
	if err := ValidateName(g.Name); err != nil {
		return err
	}
	if err := g.Target.Validate(); err != nil {
		return err
	}
	if g.Current.Cents < 0 || g.Current.Cents > g.Target.Cents {
		return ErrExceedsTarget
	}
	return nil
}

func (b Bill) Validate() error {
	if err := ValidateName(b.Name); err != nil {
		return err
	}
	if err := b.Amount.Validate(); err != nil {
		return err
	}
	return b.DueDate.Validate()
}

func (c Category) Validate() error {
	if err := ValidateName(c.Name); err != nil {
		return err
	}
	if !c.Type.Valid() {
		return ErrInvalidCategoryType
	}
	return nil
}

func (h Household) Validate() error {
	return ValidateName(h.Name)
}

func (u User) Validate() error {
	if err := ValidateName(u.Username); err != nil {
		return err
	}
	if !strings.Contains(u.Email, "@") {
		return ErrInvalidEmail
	}
	return nil
}

// ValidateName checks the display name of any household entity.
func ValidateName(name string) error {
	if len(strings.TrimSpace(name)) == 0 {
		return ErrEmptyName
	}
	if len(name) > 200 {
		return ErrNameTooLong
	}
	return nil
}
