package sheets

import (
	"context"
	"strconv"

	"homeledger/internal/core"
)

// Ports for outbound adapters.
type (
	// LedgerExporter mirrors committed ledger rows into an external sheet.
	LedgerExporter interface {
		// ExportTransaction appends t and returns a reference to the written row.
		ExportTransaction(ctx context.Context, t core.Transaction) (rowRef string, err error)
	}
)

// LedgerHeader is the column layout every exporter writes.
var LedgerHeader = []string{
	"ID", "Date", "Household", "User", "Category", "Label", "Amount", "Notes", "Source", "Shared",
}

// LedgerRow renders t in LedgerHeader order. The label follows the spending
// breakdown: bill and goal rows use their source name, everything else its
// category.
func LedgerRow(t core.Transaction) []string {
	shared := "no"
	if t.IsShared {
		shared = "yes"
	}
	return []string{
		strconv.FormatInt(t.ID, 10),
		t.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
		strconv.FormatInt(t.HouseholdID, 10),
		t.Username,
		t.CategoryName,
		core.SpendingLabel(t.SourceKind, t.SourceName, t.CategoryName),
		t.Amount.String(),
		t.Notes,
		string(t.SourceKind),
		shared,
	}
}
