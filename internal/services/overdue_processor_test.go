package services

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"homeledger/internal/cache"
	"homeledger/internal/core"
	applog "homeledger/internal/log"
	"homeledger/internal/metrics"
	"homeledger/internal/storage"
)

func newOverdueFixture(t *testing.T) (*storage.SQLiteRepository, core.Bill) {
	t.Helper()
	ctx := context.Background()

	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "sweep.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	u, err := repo.CreateUser(ctx, core.User{Username: "dana", Email: "dana@example.com"})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	h, err := repo.CreateHousehold(ctx, "dana's Household", u.ID)
	if err != nil {
		t.Fatalf("create household: %v", err)
	}
	bill, err := repo.CreateBill(ctx, core.Bill{
		HouseholdID: h.ID,
		Name:        "Water",
		Amount:      core.Money{Cents: 3200},
		DueDate:     core.Date{Time: time.Now().UTC().AddDate(0, 0, -1)},
	})
	if err != nil {
		t.Fatalf("create bill: %v", err)
	}
	return repo, bill
}

func quietLogger() *applog.Logger {
	return applog.New(applog.Config{Format: applog.FormatText, Output: io.Discard})
}

func TestProcessOverdue_SkipsWhileLockHeld(t *testing.T) {
	repo, bill := newOverdueFixture(t)
	ctx := context.Background()
	locker := cache.NewLocalLocker()
	m := metrics.New()
	p := NewOverdueProcessor(repo, locker, time.Minute, m, quietLogger())

	release, err := locker.TryLock(ctx, OverdueSweepLockKey, time.Minute)
	if err != nil {
		t.Fatalf("TryLock: %v", err)
	}

	marked, skipped, err := p.ProcessOverdue(ctx)
	if err != nil || !skipped || marked != 0 {
		t.Fatalf("while held: marked=%d skipped=%v err=%v", marked, skipped, err)
	}

	if err := release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}

	marked, skipped, err = p.ProcessOverdue(ctx)
	if err != nil || skipped || marked != 1 {
		t.Fatalf("after release: marked=%d skipped=%v err=%v", marked, skipped, err)
	}
	got, err := repo.GetBill(ctx, bill.HouseholdID, bill.ID)
	if err != nil || got.Status != core.BillOverdue {
		t.Fatalf("bill = %+v err=%v", got, err)
	}

	// a second sweep finds nothing left to mark
	marked, _, err = p.ProcessOverdue(ctx)
	if err != nil || marked != 0 {
		t.Errorf("repeat sweep: marked=%d err=%v", marked, err)
	}
	if v := testutil.ToFloat64(m.BillsMarkedOverdue); v != 1 {
		t.Errorf("overdue counter = %v, want 1", v)
	}

	// the lock is released after every sweep
	if release, err := locker.TryLock(ctx, OverdueSweepLockKey, time.Minute); err != nil {
		t.Errorf("lock still held after sweep: %v", err)
	} else {
		release(ctx)
	}
}

func TestProcessOverdue_WithoutLocker(t *testing.T) {
	repo, _ := newOverdueFixture(t)
	p := NewOverdueProcessor(repo, nil, 0, nil, quietLogger())

	marked, skipped, err := p.ProcessOverdue(context.Background())
	if err != nil || skipped || marked != 1 {
		t.Fatalf("marked=%d skipped=%v err=%v", marked, skipped, err)
	}
}

func TestOverdueProcessor_RunStopsOnCancel(t *testing.T) {
	repo, bill := newOverdueFixture(t)
	p := NewOverdueProcessor(repo, cache.NewLocalLocker(), time.Minute, nil, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx, time.Hour) }()

	// the first sweep runs immediately
	deadline := time.Now().Add(5 * time.Second)
	for {
		got, err := repo.GetBill(context.Background(), bill.HouseholdID, bill.ID)
		if err == nil && got.Status == core.BillOverdue {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("bill was never swept: %+v err=%v", got, err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
