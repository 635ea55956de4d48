package http

import (
	"net/http"

	"homeledger/internal/core"
)

// ---- goals ----

func (s *Server) handleListGoals(w http.ResponseWriter, r *http.Request, sess core.Session) {
	goals, err := s.ledger.ListGoals(r.Context(), sess)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(mapSlice(goals, toGoalView)).Write(w)
}

func (s *Server) handleCreateGoal(w http.ResponseWriter, r *http.Request, sess core.Session) {
	var req createGoalRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	g, err := s.ledger.CreateGoal(r.Context(), sess, req.Name, req.Target)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(toGoalView(g)).Write(w)
}

func (s *Server) handleDeleteGoal(w http.ResponseWriter, r *http.Request, sess core.Session) {
	id, err := PathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.ledger.DeleteGoal(r.Context(), sess, id); err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

type contributionResponse struct {
	Message string    `json:"message"`
	Goal    *goalView `json:"goal,omitempty"`
	Error   string    `json:"error,omitempty"`
}

// handleContribute answers with the display message in every outcome so
// clients can show it as is.
func (s *Server) handleContribute(w http.ResponseWriter, r *http.Request, sess core.Session) {
	goalID, err := PathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req contributeRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		s.writeContributionError(w, r, err)
		return
	}

	g, err := s.ledger.Contribute(r.Context(), sess, goalID, req.Amount)
	if err != nil {
		s.writeContributionError(w, r, err)
		return
	}
	view := toGoalView(g)
	NewJSONResponse().Body(contributionResponse{
		Message: core.ContributionMessage(nil),
		Goal:    &view,
	}).Write(w)
}

func (s *Server) writeContributionError(w http.ResponseWriter, r *http.Request, err error) {
	resp := FromError(r.Context(), err)
	body := contributionResponse{Message: core.ContributionMessage(err)}
	if eb, ok := resp.body.(errorBody); ok {
		body.Error = eb.Error
	}
	resp.Body(body).Write(w)
}

// ---- bills ----

func (s *Server) handleListBills(w http.ResponseWriter, r *http.Request, sess core.Session) {
	bills, err := s.ledger.ListBills(r.Context(), sess)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(mapSlice(bills, toBillView)).Write(w)
}

func (s *Server) handleUpcomingBills(w http.ResponseWriter, r *http.Request, sess core.Session) {
	bills, err := s.ledger.ListUpcomingBills(r.Context(), sess)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(mapSlice(bills, toBillView)).Write(w)
}

func (s *Server) handleCreateBill(w http.ResponseWriter, r *http.Request, sess core.Session) {
	var req createBillRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	due, err := core.ParseDate(req.DueDate)
	if err != nil {
		writeError(w, r, err)
		return
	}
	b, err := s.ledger.CreateBill(r.Context(), sess, req.Name, req.Amount, due)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(toBillView(b)).Write(w)
}

func (s *Server) handleDeleteBill(w http.ResponseWriter, r *http.Request, sess core.Session) {
	id, err := PathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.ledger.DeleteBill(r.Context(), sess, id); err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleSettleBill(w http.ResponseWriter, r *http.Request, sess core.Session) {
	id, err := PathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	b, err := s.ledger.SettleBill(r.Context(), sess, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(toBillView(b)).Write(w)
}

// ---- payments ----

func (s *Server) handleRecordPayment(w http.ResponseWriter, r *http.Request, sess core.Session) {
	var req paymentRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	settlement, err := s.ledger.RecordPayment(r.Context(), sess, req.ReceiverID, req.Amount, req.CategoryID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(toSettlementView(settlement)).Write(w)
}

func (s *Server) handleListSettlements(w http.ResponseWriter, r *http.Request, sess core.Session) {
	settlements, err := s.ledger.ListSettlements(r.Context(), sess)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(mapSlice(settlements, toSettlementView)).Write(w)
}

// ---- reporting ----

func (s *Server) handleRecentTransactions(w http.ResponseWriter, r *http.Request, sess core.Session) {
	days, err := ParseDays(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	txs, err := s.ledger.RecentTransactions(r.Context(), sess, days)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(mapSlice(txs, toTransactionView)).Write(w)
}

func (s *Server) handleSpending(w http.ResponseWriter, r *http.Request, sess core.Session) {
	days, err := ParseDays(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	summary, err := s.ledger.SpendingSummary(r.Context(), sess, days)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(toSpendingView(summary)).Write(w)
}

func (s *Server) handleMySpending(w http.ResponseWriter, r *http.Request, sess core.Session) {
	days, err := ParseDays(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	spending, err := s.ledger.MemberSpending(r.Context(), sess, days)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(toMySpendingView(spending)).Write(w)
}
