package http

import (
	"context"
	"net/http"
	"time"

	"homeledger/internal/core"
	applog "homeledger/internal/log"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.startedAt).Round(time.Second).String(),
	}).Write(w)
}

// handleReady verifies the store answers before reporting ready.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := map[string]any{
		"rate_limiter": map[string]any{
			"active_clients": s.limiter.ActiveClients(),
			"status":         "ok",
		},
	}

	switch {
	case s.health == nil:
		checks["storage"] = "not_configured"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	default:
		if err := s.health.Ping(ctx); err != nil {
			applog.FromContext(ctx).WarnContext(ctx, "Readiness check failed", applog.FieldError, err)
			checks["storage"] = "failed"
			status = "not_ready"
			httpStatus = http.StatusServiceUnavailable
		} else {
			checks["storage"] = "ok"
		}
	}

	NewJSONResponse().Status(httpStatus).Body(map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	}).Write(w)
}

// ---- identity ----

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	u, err := s.ledger.CreateUser(r.Context(), req.Username, req.Email)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(toUserView(u)).Write(w)
}

// handleRenameUser changes the caller's username.
func (s *Server) handleRenameUser(w http.ResponseWriter, r *http.Request, userID int64) {
	var req renameUserRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	u, err := s.ledger.RenameUser(r.Context(), userID, req.Username)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(toUserView(u)).Write(w)
}

func (s *Server) handleListHouseholds(w http.ResponseWriter, r *http.Request, userID int64) {
	memberships, err := s.ledger.Households(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(mapSlice(memberships, toMembershipView)).Write(w)
}

func (s *Server) handleHousehold(w http.ResponseWriter, r *http.Request, sess core.Session) {
	o, err := s.ledger.Household(r.Context(), sess)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(householdOverviewView{
		ID:           o.Household.ID,
		Name:         o.Household.Name,
		Role:         o.Role,
		Members:      o.Members,
		Transactions: o.Transactions,
	}).Write(w)
}

// handleOnboard creates a household for the caller, who becomes its admin.
func (s *Server) handleOnboard(w http.ResponseWriter, r *http.Request, userID int64) {
	h, err := s.ledger.Onboard(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).
		Body(householdView{ID: h.ID, Name: h.Name}).
		Write(w)
}

func (s *Server) handleListMembers(w http.ResponseWriter, r *http.Request, sess core.Session) {
	members, err := s.ledger.ListMembers(r.Context(), sess)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(mapSlice(members, toMemberView)).Write(w)
}

func (s *Server) handleAddMember(w http.ResponseWriter, r *http.Request, sess core.Session) {
	var req addMemberRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.ledger.AddMember(r.Context(), sess, req.UserID, req.Role); err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

// ---- categories ----

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request, sess core.Session) {
	filter := core.CategoryType(r.URL.Query().Get("type"))
	cats, err := s.ledger.ListCategories(r.Context(), sess, filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(mapSlice(cats, toCategoryView)).Write(w)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request, sess core.Session) {
	var req createCategoryRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := s.ledger.CreateCategory(r.Context(), sess, req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(toCategoryView(c)).Write(w)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request, sess core.Session) {
	id, err := PathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.ledger.DeleteCategory(r.Context(), sess, id); err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}
