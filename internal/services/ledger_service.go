package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"homeledger/internal/amqp"
	"homeledger/internal/cache"
	"homeledger/internal/core"
	applog "homeledger/internal/log"
	"homeledger/internal/metrics"
	"homeledger/internal/storage"
)

// Cache lifetimes per entity. Ledger-derived listings change with every money
// movement so they expire sooner. Bill listings are not cached: their status
// depends on the current date and on sweeps run by other processes.
const (
	membersTTL      = 300 * time.Second
	goalsTTL        = 300 * time.Second
	categoriesTTL   = 60 * time.Second
	transactionsTTL = 60 * time.Second
	settlementsTTL  = 60 * time.Second
)

// RecentTransactionsLimit caps the recent ledger listing.
const (
	RecentTransactionsLimit = 10
	UpcomingBillsLimit      = 10
)

// EventPublisher hands committed ledger events to the broker.
type EventPublisher interface {
	PublishLedgerEvent(ctx context.Context, msg *amqp.LedgerEventMessage) error
}

// LedgerService orchestrates ledger operations across SQLite, the cache and
// AMQP. Every call is scoped by the explicit session it receives.
type LedgerService struct {
	storage   *storage.SQLiteRepository
	publisher EventPublisher
	metrics   *metrics.Metrics
	logger    *applog.Logger

	members      *cache.Loader[core.Member]
	memberLists  *cache.Loader[[]core.Member]
	goals        *cache.Loader[[]core.SavingsGoal]
	categories   *cache.Loader[[]core.Category]
	transactions *cache.Loader[[]core.Transaction]
	settlements  *cache.Loader[[]core.DebtSettlement]
	summaries    *cache.Loader[core.SpendingSummary]
	mySpending   *cache.Loader[core.MemberSpending]
}

// Options carries the optional collaborators of the service. Nil fields turn
// the matching feature off.
type Options struct {
	Publisher EventPublisher
	Metrics   *metrics.Metrics
	Logger    *applog.Logger
}

func NewLedgerService(repo *storage.SQLiteRepository, factory *cache.Factory, opts Options) *LedgerService {
	logger := opts.Logger
	if logger == nil {
		logger = applog.FromContext(context.Background()).WithComponent(applog.ComponentLedger)
	}
	s := &LedgerService{
		storage:   repo,
		publisher: opts.Publisher,
		metrics:   opts.Metrics,
		logger:    logger,
	}
	s.members = newLoader[core.Member](s, factory, "members", membersTTL)
	s.memberLists = newLoader[[]core.Member](s, factory, "member_lists", membersTTL)
	s.goals = newLoader[[]core.SavingsGoal](s, factory, "goals", goalsTTL)
	s.categories = newLoader[[]core.Category](s, factory, "categories", categoriesTTL)
	s.transactions = newLoader[[]core.Transaction](s, factory, "transactions", transactionsTTL)
	s.settlements = newLoader[[]core.DebtSettlement](s, factory, "settlements", settlementsTTL)
	s.summaries = newLoader[core.SpendingSummary](s, factory, "spending", transactionsTTL)
	s.mySpending = newLoader[core.MemberSpending](s, factory, "my_spending", transactionsTTL)
	return s
}

func newLoader[T any](s *LedgerService, f *cache.Factory, name string, ttl time.Duration) *cache.Loader[T] {
	return cache.NewLoader(cache.New[T](f, name, ttl)).OnLookup(func(hit bool) {
		s.metrics.ObserveCache(name, hit)
	})
}

// ---- identity ----

func (s *LedgerService) CreateUser(ctx context.Context, username, email string) (core.User, error) {
	u, err := s.storage.CreateUser(ctx, core.User{Username: username, Email: email})
	if err != nil {
		return core.User{}, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// Onboard creates "<username>'s Household" with userID as its admin.
func (s *LedgerService) Onboard(ctx context.Context, userID int64) (core.Household, error) {
	u, err := s.storage.GetUser(ctx, userID)
	if err != nil {
		return core.Household{}, fmt.Errorf("onboard user %d: %w", userID, err)
	}
	h, err := s.storage.CreateHousehold(ctx, u.Username+"'s Household", u.ID)
	if err != nil {
		return core.Household{}, fmt.Errorf("onboard user %d: %w", userID, err)
	}
	return h, nil
}

// ResolveSession loads the membership of userID in householdID and returns
// the session every other call expects.
func (s *LedgerService) ResolveSession(ctx context.Context, userID, householdID int64) (core.Session, error) {
	if userID <= 0 {
		return core.Session{}, core.ErrUserNotFound
	}
	if householdID <= 0 {
		return core.Session{}, core.ErrHouseholdNotFound
	}
	m, err := s.members.Get(cache.Key("GetMember", householdID, userID), func() (core.Member, error) {
		return s.storage.GetMember(ctx, householdID, userID)
	})
	if err != nil {
		return core.Session{}, err
	}
	return core.Session{
		UserID:      userID,
		Username:    m.Username,
		HouseholdID: householdID,
		Role:        m.Role,
	}, nil
}

func (s *LedgerService) ListMembers(ctx context.Context, sess core.Session) ([]core.Member, error) {
	return s.memberLists.Get(cache.Key("ListMembers", sess.HouseholdID), func() ([]core.Member, error) {
		return s.storage.ListMembers(ctx, sess.HouseholdID)
	})
}

// AddMember is admin only.
func (s *LedgerService) AddMember(ctx context.Context, sess core.Session, userID int64, role core.Role) error {
	if err := sess.RequireAdmin(); err != nil {
		return err
	}
	if err := s.storage.AddMember(ctx, sess.HouseholdID, userID, role); err != nil {
		return err
	}
	s.memberLists.Invalidate("ListMembers", sess.HouseholdID)
	s.members.Invalidate("GetMember", sess.HouseholdID, userID)
	return nil
}

// RenameUser changes the username of userID. Every household the user
// belongs to shows the name in its member, settlement and ledger listings,
// so those caches are dropped.
func (s *LedgerService) RenameUser(ctx context.Context, userID int64, username string) (core.User, error) {
	memberships, err := s.storage.HouseholdsForUser(ctx, userID)
	if err != nil {
		return core.User{}, err
	}
	if err := s.storage.RenameUser(ctx, userID, username); err != nil {
		return core.User{}, fmt.Errorf("rename user %d: %w", userID, err)
	}
	for _, m := range memberships {
		householdID := m.Household.ID
		s.memberLists.Invalidate("ListMembers", householdID)
		s.members.Invalidate("GetMember", householdID, userID)
		s.settlements.Invalidate("ListSettlements", householdID)
		s.invalidateLedger(householdID)
	}
	s.logger.InfoContext(ctx, "User renamed",
		applog.FieldUserID, userID,
		"username", username,
		"households", len(memberships))
	return s.storage.GetUser(ctx, userID)
}

// Households lists the households userID belongs to.
func (s *LedgerService) Households(ctx context.Context, userID int64) ([]core.Membership, error) {
	if _, err := s.storage.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	return s.storage.HouseholdsForUser(ctx, userID)
}

// Household describes the session's household: its name, the caller's role,
// and how many members and ledger rows it has.
func (s *LedgerService) Household(ctx context.Context, sess core.Session) (core.HouseholdOverview, error) {
	h, err := s.storage.GetHousehold(ctx, sess.HouseholdID)
	if err != nil {
		return core.HouseholdOverview{}, err
	}
	members, err := s.ListMembers(ctx, sess)
	if err != nil {
		return core.HouseholdOverview{}, err
	}
	n, err := s.storage.CountTransactions(ctx, sess.HouseholdID)
	if err != nil {
		return core.HouseholdOverview{}, err
	}
	return core.HouseholdOverview{
		Household:    h,
		Role:         sess.Role,
		Members:      len(members),
		Transactions: n,
	}, nil
}

// ---- categories ----

func (s *LedgerService) ListCategories(ctx context.Context, sess core.Session, filter core.CategoryType) ([]core.Category, error) {
	if filter != "" && !filter.Valid() {
		return nil, core.ErrInvalidCategoryType
	}
	return s.categories.Get(cache.Key("ListCategories", sess.HouseholdID, filter), func() ([]core.Category, error) {
		return s.storage.ListCategories(ctx, sess.HouseholdID, filter)
	})
}

// CreateCategory is admin only and creates shared categories; the bill and
// goal types are reserved for the permanent categories.
func (s *LedgerService) CreateCategory(ctx context.Context, sess core.Session, name string) (core.Category, error) {
	if err := sess.RequireAdmin(); err != nil {
		return core.Category{}, err
	}
	c, err := s.storage.CreateCategory(ctx, core.Category{
		HouseholdID: sess.HouseholdID,
		Name:        name,
		Type:        core.CategoryShared,
	})
	if err != nil {
		return core.Category{}, err
	}
	s.categories.Invalidate("ListCategories", sess.HouseholdID)
	return c, nil
}

// DeleteCategory is admin only. Permanent categories cannot be deleted.
func (s *LedgerService) DeleteCategory(ctx context.Context, sess core.Session, categoryID int64) error {
	if err := sess.RequireAdmin(); err != nil {
		return err
	}
	c, err := s.storage.GetCategory(ctx, sess.HouseholdID, categoryID)
	if err != nil {
		return err
	}
	if c.Type.Permanent() {
		return core.ErrReservedCategory
	}
	if err := s.storage.DeleteCategory(ctx, sess.HouseholdID, categoryID); err != nil {
		return err
	}
	s.categories.Invalidate("ListCategories", sess.HouseholdID)
	return nil
}

// ResolvePermanentCategory returns the id of the household's permanent
// category of type t, creating it on first use.
func (s *LedgerService) ResolvePermanentCategory(ctx context.Context, sess core.Session, t core.CategoryType) (int64, error) {
	name, err := core.PermanentCategoryName(t)
	if err != nil {
		return 0, err
	}
	id, err := s.storage.ResolvePermanentCategory(ctx, sess.HouseholdID, name, t)
	if err != nil {
		return 0, err
	}
	s.categories.Invalidate("ListCategories", sess.HouseholdID)
	return id, nil
}

// ---- goals ----

func (s *LedgerService) ListGoals(ctx context.Context, sess core.Session) ([]core.SavingsGoal, error) {
	return s.goals.Get(cache.Key("ListGoals", sess.HouseholdID), func() ([]core.SavingsGoal, error) {
		return s.storage.ListGoals(ctx, sess.HouseholdID)
	})
}

// CreateGoal is admin only. New goals start empty.
func (s *LedgerService) CreateGoal(ctx context.Context, sess core.Session, name string, target core.Money) (core.SavingsGoal, error) {
	if err := sess.RequireAdmin(); err != nil {
		return core.SavingsGoal{}, err
	}
	g, err := s.storage.CreateGoal(ctx, core.SavingsGoal{
		HouseholdID: sess.HouseholdID,
		Name:        name,
		Target:      target,
	})
	if err != nil {
		return core.SavingsGoal{}, err
	}
	s.goals.Invalidate("ListGoals", sess.HouseholdID)
	return g, nil
}

func (s *LedgerService) DeleteGoal(ctx context.Context, sess core.Session, goalID int64) error {
	if err := sess.RequireAdmin(); err != nil {
		return err
	}
	if err := s.storage.DeleteGoal(ctx, sess.HouseholdID, goalID); err != nil {
		return err
	}
	s.goals.Invalidate("ListGoals", sess.HouseholdID)
	return nil
}

// Contribute adds amount to a goal of the session's household and records
// the contribution in the ledger. It never lets the goal pass its target;
// use core.ContributionMessage to render the outcome.
func (s *LedgerService) Contribute(ctx context.Context, sess core.Session, goalID int64, amount core.Money) (core.SavingsGoal, error) {
	goal, entry, err := s.storage.Contribute(ctx, sess.HouseholdID, goalID, sess.UserID, amount)
	s.observe(ctx, applog.OpContribute, sess, err, applog.NewFields().
		With(applog.FieldGoalID, goalID).
		WithAmount(amount.String()))
	if err != nil {
		return core.SavingsGoal{}, err
	}

	s.goals.Invalidate("ListGoals", sess.HouseholdID)
	s.invalidateLedger(sess.HouseholdID)
	s.publish(ctx, amqp.EventGoalContribution, entry)
	return goal, nil
}

// ---- bills ----

// ListBills marks past-due pending bills overdue, then lists every bill.
func (s *LedgerService) ListBills(ctx context.Context, sess core.Session) ([]core.Bill, error) {
	if err := s.sweep(ctx, sess.HouseholdID); err != nil {
		return nil, err
	}
	return s.storage.ListBills(ctx, sess.HouseholdID)
}

// ListUpcomingBills lists bills due today or later, soonest first.
func (s *LedgerService) ListUpcomingBills(ctx context.Context, sess core.Session) ([]core.Bill, error) {
	if err := s.sweep(ctx, sess.HouseholdID); err != nil {
		return nil, err
	}
	return s.storage.ListUpcomingBills(ctx, sess.HouseholdID, UpcomingBillsLimit)
}

func (s *LedgerService) sweep(ctx context.Context, householdID int64) error {
	n, err := s.storage.SweepOverdue(ctx, householdID)
	if err != nil {
		return err
	}
	s.metrics.ObserveOverdue(n)
	return nil
}

func (s *LedgerService) CreateBill(ctx context.Context, sess core.Session, name string, amount core.Money, due core.Date) (core.Bill, error) {
	if err := sess.RequireAdmin(); err != nil {
		return core.Bill{}, err
	}
	b, err := s.storage.CreateBill(ctx, core.Bill{
		HouseholdID: sess.HouseholdID,
		Name:        name,
		Amount:      amount,
		DueDate:     due,
	})
	if err != nil {
		return core.Bill{}, err
	}
	return b, nil
}

func (s *LedgerService) DeleteBill(ctx context.Context, sess core.Session, billID int64) error {
	if err := sess.RequireAdmin(); err != nil {
		return err
	}
	if err := s.storage.DeleteBill(ctx, sess.HouseholdID, billID); err != nil {
		return err
	}
	return nil
}

// SettleBill pays a pending or overdue bill of the session's household.
// Settling a paid bill returns core.ErrBillAlreadyPaid.
func (s *LedgerService) SettleBill(ctx context.Context, sess core.Session, billID int64) (core.Bill, error) {
	bill, entry, err := s.storage.SettleBill(ctx, sess.HouseholdID, billID, sess.UserID)
	s.observe(ctx, applog.OpSettleBill, sess, err, applog.NewFields().With(applog.FieldBillID, billID))
	if err != nil {
		return core.Bill{}, err
	}

	s.invalidateLedger(sess.HouseholdID)
	s.publish(ctx, amqp.EventBillSettled, entry)
	return bill, nil
}

// ---- payments ----

// RecordPayment records a payment from the session user to receiverID. The
// category must be a shared one; bill and goal categories only tag rows the
// ledger generates itself.
func (s *LedgerService) RecordPayment(ctx context.Context, sess core.Session, receiverID int64, amount core.Money, categoryID int64) (core.DebtSettlement, error) {
	settlement, entry, err := s.recordPayment(ctx, sess, receiverID, amount, categoryID)
	s.observe(ctx, applog.OpPayment, sess, err, applog.NewFields().
		With("receiver_id", receiverID).
		WithAmount(amount.String()))
	if err != nil {
		return core.DebtSettlement{}, err
	}

	s.settlements.Invalidate("ListSettlements", sess.HouseholdID)
	s.invalidateLedger(sess.HouseholdID)
	s.publish(ctx, amqp.EventPayment, entry)
	return settlement, nil
}

func (s *LedgerService) recordPayment(ctx context.Context, sess core.Session, receiverID int64, amount core.Money, categoryID int64) (core.DebtSettlement, core.Transaction, error) {
	c, err := s.storage.GetCategory(ctx, sess.HouseholdID, categoryID)
	if err != nil {
		return core.DebtSettlement{}, core.Transaction{}, err
	}
	if c.Type != core.CategoryShared {
		return core.DebtSettlement{}, core.Transaction{}, fmt.Errorf("pay with category %q: %w", c.Name, core.ErrReservedCategory)
	}
	return s.storage.RecordPayment(ctx, sess.HouseholdID, sess.UserID, receiverID, categoryID, amount)
}

func (s *LedgerService) ListSettlements(ctx context.Context, sess core.Session) ([]core.DebtSettlement, error) {
	return s.settlements.Get(cache.Key("ListSettlements", sess.HouseholdID, sess.UserID), func() ([]core.DebtSettlement, error) {
		return s.storage.ListSettlements(ctx, sess.HouseholdID, sess.UserID)
	})
}

// ---- reporting ----

func (s *LedgerService) RecentTransactions(ctx context.Context, sess core.Session, days int) ([]core.Transaction, error) {
	if days <= 0 {
		return nil, fmt.Errorf("days %d: %w", days, core.ErrInvalidDate)
	}
	return s.transactions.Get(cache.Key("RecentTransactions", sess.HouseholdID, days), func() ([]core.Transaction, error) {
		return s.storage.ListRecentTransactions(ctx, sess.HouseholdID, days, RecentTransactionsLimit)
	})
}

func (s *LedgerService) SpendingSummary(ctx context.Context, sess core.Session, days int) (core.SpendingSummary, error) {
	if days <= 0 {
		return core.SpendingSummary{}, fmt.Errorf("days %d: %w", days, core.ErrInvalidDate)
	}
	return s.summaries.Get(cache.Key("SpendingSummary", sess.HouseholdID, sess.UserID, days), func() (core.SpendingSummary, error) {
		return s.storage.SpendingSummary(ctx, sess.HouseholdID, sess.UserID, days)
	})
}

func (s *LedgerService) MemberSpending(ctx context.Context, sess core.Session, days int) (core.MemberSpending, error) {
	if days <= 0 {
		return core.MemberSpending{}, fmt.Errorf("days %d: %w", days, core.ErrInvalidDate)
	}
	return s.mySpending.Get(cache.Key("MemberSpending", sess.HouseholdID, sess.UserID, days), func() (core.MemberSpending, error) {
		return s.storage.MemberSpending(ctx, sess.HouseholdID, sess.UserID, days)
	})
}

// ---- helpers ----

func (s *LedgerService) invalidateLedger(householdID int64) {
	s.transactions.Invalidate("RecentTransactions", householdID)
	s.summaries.Invalidate("SpendingSummary", householdID)
	s.mySpending.Invalidate("MemberSpending", householdID)
	// the first contribution or settlement creates a permanent category
	s.categories.Invalidate("ListCategories", householdID)
}

func (s *LedgerService) observe(ctx context.Context, op string, sess core.Session, err error, fields applog.LogFields) {
	kind := core.KindOf(err)
	declined := IsDeclined(err)
	s.metrics.ObserveLedgerOp(op, err, declined)

	fields = fields.WithSession(sess.HouseholdID, sess.UserID)
	if declined {
		s.logger.InfoContext(ctx, "Ledger operation declined",
			fields.WithOperation(op).WithError(err).With(applog.FieldErrorKind, kind.String()).ToSlice()...)
		return
	}
	s.logger.LogOperation(ctx, op, err, fields)
}

// publish announces a committed ledger row. Failures are logged and never
// reach the caller: the row is already durable and the export worker picks
// it up from the pending queue.
func (s *LedgerService) publish(ctx context.Context, kind amqp.EventKind, entry core.Transaction) {
	if s.publisher == nil {
		return
	}
	msg := amqp.NewLedgerEventMessage(kind, entry.HouseholdID, entry.ID, entry.Amount.Cents)
	err := s.publisher.PublishLedgerEvent(ctx, msg)
	s.metrics.ObservePublish(string(kind), err)
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to publish ledger event",
			"event_id", msg.ID,
			"kind", kind,
			applog.FieldTransactionID, entry.ID,
			applog.FieldError, err)
	}
}

// IsDeclined reports whether err is a business rejection rather than a
// failure of the service.
func IsDeclined(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled) && core.KindOf(err) != core.KindPersistence
}
