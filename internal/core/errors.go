package core

import "errors"

var (
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInvalidDate         = errors.New("invalid date")
	ErrInvalidEmail        = errors.New("invalid email")
	ErrInvalidRole         = errors.New("invalid role")
	ErrInvalidCategoryType = errors.New("invalid category type")
	ErrEmptyName           = errors.New("empty name")
	ErrNameTooLong         = errors.New("name too long (max 200 characters)")
	ErrReservedCategory    = errors.New("category is reserved for ledger entries")
	ErrSelfPayment         = errors.New("payer and receiver must differ")

	ErrGoalNotFound      = errors.New("goal not found")
	ErrBillNotFound      = errors.New("bill not found")
	ErrCategoryNotFound  = errors.New("category not found")
	ErrUserNotFound      = errors.New("user not found")
	ErrHouseholdNotFound = errors.New("household not found")

	ErrNotMember = errors.New("user is not a member of the household")
	ErrForbidden = errors.New("operation requires an admin role")

	ErrExceedsTarget   = errors.New("payment would exceed target amount")
	ErrBillAlreadyPaid = errors.New("bill already paid")
	ErrDuplicate       = errors.New("already exists")
	ErrCategoryInUse   = errors.New("category is referenced by ledger entries")
)

// ErrorKind groups errors by how a caller should react to them.
type ErrorKind int

const (
	KindPersistence ErrorKind = iota
	KindValidation
	KindNotFound
	KindForbidden
	KindConflict
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	default:
		return "persistence"
	}
}

var errorKinds = []struct {
	err  error
	kind ErrorKind
}{
	{ErrInvalidAmount, KindValidation},
	{ErrInvalidDate, KindValidation},
	{ErrInvalidEmail, KindValidation},
	{ErrInvalidRole, KindValidation},
	{ErrInvalidCategoryType, KindValidation},
	{ErrEmptyName, KindValidation},
	{ErrNameTooLong, KindValidation},
	{ErrReservedCategory, KindValidation},
	{ErrSelfPayment, KindValidation},
	{ErrGoalNotFound, KindNotFound},
	{ErrBillNotFound, KindNotFound},
	{ErrCategoryNotFound, KindNotFound},
	{ErrUserNotFound, KindNotFound},
	{ErrHouseholdNotFound, KindNotFound},
	{ErrNotMember, KindForbidden},
	{ErrForbidden, KindForbidden},
	{ErrExceedsTarget, KindConflict},
	{ErrBillAlreadyPaid, KindConflict},
	{ErrDuplicate, KindConflict},
	{ErrCategoryInUse, KindConflict},
}

// KindOf classifies err. Anything unknown is treated as a persistence failure.
func KindOf(err error) ErrorKind {
	for _, ek := range errorKinds {
		if errors.Is(err, ek.err) {
			return ek.kind
		}
	}
	return KindPersistence
}

// ContributionMessage renders the outcome of a goal contribution for display.
func ContributionMessage(err error) string {
	switch {
	case err == nil:
		return "Payment added successfully"
	case errors.Is(err, ErrExceedsTarget):
		return "Payment would exceed target amount"
	case errors.Is(err, ErrGoalNotFound):
		return "Goal not found"
	case errors.Is(err, ErrInvalidAmount):
		return "Payment amount must be positive"
	default:
		return "Error processing payment"
	}
}
