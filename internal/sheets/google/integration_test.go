//go:build integration

package google

import (
	"context"
	"os"
	"testing"
	"time"

	"homeledger/internal/core"
)

// Integration tests require real Google Sheets credentials
// Run with: go test -tags=integration ./internal/sheets/google

func TestIntegration_ExportTransaction(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	if os.Getenv("GOOGLE_SPREADSHEET_ID") == "" {
		t.Skip("GOOGLE_SPREADSHEET_ID not set, skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := NewFromEnv(ctx)
	if err != nil {
		t.Skipf("cannot create client: %v", err)
	}

	ref, err := client.ExportTransaction(ctx, core.Transaction{
		ID:           time.Now().Unix(),
		HouseholdID:  1,
		Username:     "integration",
		CategoryName: core.BillCategoryName,
		Amount:       core.Money{Cents: 1234},
		Notes:        "Paid bill: Integration",
		IsShared:     true,
		SourceKind:   core.SourceBill,
		SourceName:   "Integration",
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("ExportTransaction: %v", err)
	}
	if ref == "" {
		t.Error("expected a row reference")
	}
}
