package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"homeledger/internal/core"
)

func TestMemoryStoreExport(t *testing.T) {
	s := New()
	ctx := context.Background()
	tx := core.Transaction{
		ID:           7,
		HouseholdID:  1,
		Username:     "alice",
		CategoryName: core.ContributionCategoryName,
		Amount:       core.Money{Cents: 2000},
		Notes:        "Contribution to Europe Trip",
		IsShared:     true,
		SourceKind:   core.SourceGoal,
		SourceName:   "Europe Trip",
		CreatedAt:    time.Date(2025, 7, 1, 9, 30, 0, 0, time.UTC),
	}

	ref, err := s.ExportTransaction(ctx, tx)
	if err != nil || ref != "mem:1" {
		t.Fatalf("unexpected export: ref=%q err=%v", ref, err)
	}
	ref, err = s.ExportTransaction(ctx, tx)
	if err != nil || ref != "mem:1" {
		t.Fatalf("re-export should reuse the row: ref=%q err=%v", ref, err)
	}

	rows := s.Rows()
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	want := []string{"7", "2025-07-01 09:30:00", "1", "alice", "Contribution", "Europe Trip", "20.00", "Contribution to Europe Trip", "goal", "yes"}
	for i := range want {
		if rows[0][i] != want[i] {
			t.Errorf("column %d = %q, want %q", i, rows[0][i], want[i])
		}
	}

	if _, err := s.ExportTransaction(ctx, core.Transaction{}); err == nil {
		t.Error("expected error for transaction without id")
	}
}

func TestMemoryStoreFailure(t *testing.T) {
	s := New()
	boom := errors.New("quota exceeded")
	s.FailWith(boom)

	if _, err := s.ExportTransaction(context.Background(), core.Transaction{ID: 1}); !errors.Is(err, boom) {
		t.Fatalf("expected injected failure, got %v", err)
	}
	s.FailWith(nil)
	if _, err := s.ExportTransaction(context.Background(), core.Transaction{ID: 1}); err != nil {
		t.Fatalf("export after recovery: %v", err)
	}
}
