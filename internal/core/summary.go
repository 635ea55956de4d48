package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// Membership is one household a user belongs to and the user's role in it.
type Membership struct {
	Household Household
	Role      Role
}

// HouseholdOverview describes a household to one of its members.
type HouseholdOverview struct {
	Household    Household
	Role         Role
	Members      int
	Transactions int64
}

// CategoryAmount represents an amount aggregated by display label. Bill and
// contribution rows are labelled with the bill or goal name.
type CategoryAmount struct {
	Name   string
	Amount Money
}

// MemberAverage is the mean transaction amount of one member over a period.
type MemberAverage struct {
	Username string
	Average  Money
	Count    int64
}

// SpendingSummary is the household spending breakdown for a period.
type SpendingSummary struct {
	Since          time.Time
	Total          Money
	ByCategory     []CategoryAmount
	TopAverages    []MemberAverage
	MySpending     Money
	OthersSpending Money
}

// DailyTotal is one day of a member's spending with the running total.
type DailyTotal struct {
	Date       Date
	Total      Money
	Cumulative Money
}

// MemberSpending is the "my spending" view of a single member.
type MemberSpending struct {
	Since             time.Time
	ByCategory        []CategoryAmount
	AverageByCategory []CategoryAmount
	Daily             []DailyTotal
}

// SpendingLabel picks the breakdown label for a ledger row.
func SpendingLabel(kind SourceKind, sourceName, categoryName string) string {
	if (kind == SourceBill || kind == SourceGoal) && sourceName != "" {
		return sourceName
	}
	return categoryName
}

// AverageOf divides total by count rounding half-up to the cent.
func AverageOf(total Money, count int64) Money {
	if count <= 0 {
		return Money{}
	}
	avg := decimal.NewFromInt(total.Cents).Div(decimal.NewFromInt(count)).Round(0)
	return Money{Cents: avg.IntPart()}
}
