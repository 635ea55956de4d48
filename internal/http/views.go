package http

import (
	"time"

	"homeledger/internal/core"
)

// JSON shapes of the API. Money fields encode as decimal strings.

type userView struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

type householdView struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type membershipView struct {
	HouseholdID int64     `json:"household_id"`
	Name        string    `json:"name"`
	Role        core.Role `json:"role"`
}

type householdOverviewView struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Role         core.Role `json:"role"`
	Members      int       `json:"members"`
	Transactions int64     `json:"transactions"`
}

type memberView struct {
	UserID   int64     `json:"user_id"`
	Username string    `json:"username"`
	Role     core.Role `json:"role"`
}

type categoryView struct {
	ID   int64             `json:"id"`
	Name string            `json:"name"`
	Type core.CategoryType `json:"type"`
}

type goalView struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	Target    core.Money `json:"target"`
	Current   core.Money `json:"current"`
	Remaining core.Money `json:"remaining"`
	Achieved  bool       `json:"achieved"`
}

type billView struct {
	ID      int64           `json:"id"`
	Name    string          `json:"name"`
	Amount  core.Money      `json:"amount"`
	DueDate string          `json:"due_date"`
	Status  core.BillStatus `json:"status"`
}

type transactionView struct {
	ID         int64           `json:"id"`
	UserID     int64           `json:"user_id"`
	Username   string          `json:"username"`
	Category   string          `json:"category"`
	Amount     core.Money      `json:"amount"`
	Notes      string          `json:"notes"`
	IsShared   bool            `json:"is_shared"`
	SourceKind core.SourceKind `json:"source_kind,omitempty"`
	SourceID   int64           `json:"source_id,omitempty"`
	SourceName string          `json:"source_name,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

type settlementView struct {
	ID           int64      `json:"id"`
	PayerID      int64      `json:"payer_id"`
	PayerName    string     `json:"payer_name"`
	ReceiverID   int64      `json:"receiver_id"`
	ReceiverName string     `json:"receiver_name"`
	Amount       core.Money `json:"amount"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
}

type amountView struct {
	Name   string     `json:"name"`
	Amount core.Money `json:"amount"`
}

type memberAverageView struct {
	Username string     `json:"username"`
	Average  core.Money `json:"average"`
	Count    int64      `json:"count"`
}

type spendingView struct {
	Since          time.Time           `json:"since"`
	Total          core.Money          `json:"total"`
	ByCategory     []amountView        `json:"by_category"`
	TopAverages    []memberAverageView `json:"top_averages"`
	MySpending     core.Money          `json:"my_spending"`
	OthersSpending core.Money          `json:"others_spending"`
}

type dailyView struct {
	Date       string     `json:"date"`
	Total      core.Money `json:"total"`
	Cumulative core.Money `json:"cumulative"`
}

type mySpendingView struct {
	Since             time.Time    `json:"since"`
	ByCategory        []amountView `json:"by_category"`
	AverageByCategory []amountView `json:"average_by_category"`
	Daily             []dailyView  `json:"daily"`
}

// mapSlice converts every element of in, never returning nil so empty
// listings encode as [].
func mapSlice[T, V any](in []T, f func(T) V) []V {
	out := make([]V, 0, len(in))
	for _, v := range in {
		out = append(out, f(v))
	}
	return out
}

func toUserView(u core.User) userView {
	return userView{ID: u.ID, Username: u.Username, Email: u.Email}
}

func toMembershipView(m core.Membership) membershipView {
	return membershipView{HouseholdID: m.Household.ID, Name: m.Household.Name, Role: m.Role}
}

func toMemberView(m core.Member) memberView {
	return memberView{UserID: m.UserID, Username: m.Username, Role: m.Role}
}

func toCategoryView(c core.Category) categoryView {
	return categoryView{ID: c.ID, Name: c.Name, Type: c.Type}
}

func toGoalView(g core.SavingsGoal) goalView {
	return goalView{
		ID:        g.ID,
		Name:      g.Name,
		Target:    g.Target,
		Current:   g.Current,
		Remaining: g.Remaining(),
		Achieved:  g.Achieved(),
	}
}

func toBillView(b core.Bill) billView {
	return billView{
		ID:      b.ID,
		Name:    b.Name,
		Amount:  b.Amount,
		DueDate: b.DueDate.String(),
		Status:  b.Status,
	}
}

func toTransactionView(t core.Transaction) transactionView {
	return transactionView{
		ID:         t.ID,
		UserID:     t.UserID,
		Username:   t.Username,
		Category:   t.CategoryName,
		Amount:     t.Amount,
		Notes:      t.Notes,
		IsShared:   t.IsShared,
		SourceKind: t.SourceKind,
		SourceID:   t.SourceID,
		SourceName: t.SourceName,
		CreatedAt:  t.CreatedAt,
	}
}

func toSettlementView(s core.DebtSettlement) settlementView {
	return settlementView{
		ID:           s.ID,
		PayerID:      s.PayerID,
		PayerName:    s.PayerName,
		ReceiverID:   s.ReceiverID,
		ReceiverName: s.ReceiverName,
		Amount:       s.Amount,
		Status:       s.Status,
		CreatedAt:    s.CreatedAt,
	}
}

func toAmountView(a core.CategoryAmount) amountView {
	return amountView{Name: a.Name, Amount: a.Amount}
}

func toSpendingView(s core.SpendingSummary) spendingView {
	averages := mapSlice(s.TopAverages, func(a core.MemberAverage) memberAverageView {
		return memberAverageView{Username: a.Username, Average: a.Average, Count: a.Count}
	})
	return spendingView{
		Since:          s.Since,
		Total:          s.Total,
		ByCategory:     mapSlice(s.ByCategory, toAmountView),
		TopAverages:    averages,
		MySpending:     s.MySpending,
		OthersSpending: s.OthersSpending,
	}
}

func toMySpendingView(s core.MemberSpending) mySpendingView {
	daily := mapSlice(s.Daily, func(d core.DailyTotal) dailyView {
		return dailyView{Date: d.Date.String(), Total: d.Total, Cumulative: d.Cumulative}
	})
	return mySpendingView{
		Since:             s.Since,
		ByCategory:        mapSlice(s.ByCategory, toAmountView),
		AverageByCategory: mapSlice(s.AverageByCategory, toAmountView),
		Daily:             daily,
	}
}
