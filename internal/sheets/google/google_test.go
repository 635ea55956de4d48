package google

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"homeledger/internal/core"
)

func TestNewFromEnv_MissingSpreadsheetID(t *testing.T) {
	t.Setenv("GOOGLE_SPREADSHEET_ID", "")

	_, err := NewFromEnv(context.Background())
	if err == nil {
		t.Fatal("expected error for missing GOOGLE_SPREADSHEET_ID")
	}
	if err.Error() != "missing GOOGLE_SPREADSHEET_ID" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNewFromEnv_MissingCredentials(t *testing.T) {
	t.Setenv("GOOGLE_SPREADSHEET_ID", "test-id")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", "")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", "")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")

	_, err := NewFromEnv(context.Background())
	if err == nil || !strings.Contains(err.Error(), "missing service account credentials") {
		t.Fatalf("expected missing credentials error, got %v", err)
	}
}

func TestServiceAccountCredentials(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "sa.json")
	if err := os.WriteFile(file, []byte(`{"type":"service_account"}`), 0o600); err != nil {
		t.Fatalf("write credentials: %v", err)
	}

	tests := []struct {
		name       string
		inline     string
		file       string
		adc        string
		wantSource string
		wantErr    string
	}{
		{name: "inline wins", inline: `{"a":1}`, file: file, wantSource: "inline"},
		{name: "explicit file", file: file, wantSource: "file"},
		{name: "application default path", adc: file, wantSource: "file"},
		{name: "unreadable file", file: filepath.Join(dir, "missing.json"), wantErr: "read service account file"},
		{name: "nothing configured", wantErr: "missing service account credentials"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", tt.inline)
			t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", tt.file)
			t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", tt.adc)

			data, source, err := serviceAccountCredentials()
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if source != tt.wantSource || len(data) == 0 {
				t.Errorf("source=%q len=%d, want %q", source, len(data), tt.wantSource)
			}
		})
	}
}

func TestExportTransaction_Guards(t *testing.T) {
	c := &Client{spreadsheetID: "test", ledgerBase: "Ledger", now: time.Now}

	if _, err := c.ExportTransaction(context.Background(), core.Transaction{}); err == nil {
		t.Fatal("expected error for unsaved transaction")
	}
	_, err := c.ExportTransaction(context.Background(), core.Transaction{ID: 1, Amount: core.Money{Cents: 100}})
	if err == nil || !strings.Contains(err.Error(), "not initialized") {
		t.Fatalf("expected uninitialized service error, got %v", err)
	}
}

func TestYearPrefixedName(t *testing.T) {
	tests := []struct {
		base string
		year int
		want string
	}{
		{"Ledger", 2025, "2025 Ledger"},
		{"  Ledger  ", 2024, "2024 Ledger"},
		{"2023 Ledger", 2025, "2023 Ledger"},
		{"1800s Archive", 2025, "2025 1800s Archive"},
		{"", 2025, ""},
	}
	for _, tt := range tests {
		if got := yearPrefixedName(tt.base, tt.year); got != tt.want {
			t.Errorf("yearPrefixedName(%q, %d) = %q, want %q", tt.base, tt.year, got, tt.want)
		}
	}
}

func TestSheetForUsesRowYear(t *testing.T) {
	c := &Client{ledgerBase: "Ledger", now: func() time.Time { return time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC) }}

	old := core.Transaction{CreatedAt: time.Date(2025, 12, 31, 23, 0, 0, 0, time.UTC)}
	if got := c.sheetFor(old); got != "2025 Ledger" {
		t.Errorf("sheetFor(old) = %q", got)
	}
	if got := c.sheetFor(core.Transaction{}); got != "2026 Ledger" {
		t.Errorf("sheetFor(unsaved) = %q", got)
	}
	if got := sheetRange("Bob's 2025"); got != "'Bob''s 2025'!A:J" {
		t.Errorf("sheetRange = %q", got)
	}
}
