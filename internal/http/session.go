package http

import (
	"context"
	"net/http"

	"homeledger/internal/core"
	applog "homeledger/internal/log"
)

// Identity headers set by the authenticating proxy in front of the API.
const (
	HeaderUserID      = "X-User-ID"
	HeaderHouseholdID = "X-Household-ID"
)

// SessionResolver turns the identity headers into a session.
type SessionResolver interface {
	ResolveSession(ctx context.Context, userID, householdID int64) (core.Session, error)
}

// requireUser rejects requests without a valid X-User-ID.
func requireUser(next func(http.ResponseWriter, *http.Request, int64)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok, err := ParseIDHeader(r, HeaderUserID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if !ok {
			UnauthorizedError("missing " + HeaderUserID + " header").Write(w)
			return
		}
		next(w, r, userID)
	}
}

// requireSession resolves the household membership of the caller and
// passes the session to next. Non-members get 403.
func (s *Server) requireSession(next func(http.ResponseWriter, *http.Request, core.Session)) http.HandlerFunc {
	return requireUser(func(w http.ResponseWriter, r *http.Request, userID int64) {
		householdID, ok, err := ParseIDHeader(r, HeaderHouseholdID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if !ok {
			UnauthorizedError("missing " + HeaderHouseholdID + " header").Write(w)
			return
		}

		sess, err := s.sessions.ResolveSession(r.Context(), userID, householdID)
		if err != nil {
			writeError(w, r, err)
			return
		}

		logger := applog.FromContext(r.Context()).With(
			applog.FieldHouseholdID, sess.HouseholdID,
			applog.FieldUserID, sess.UserID)
		ctx := applog.NewContext(r.Context(), logger)
		next(w, r.WithContext(ctx), sess)
	})
}
