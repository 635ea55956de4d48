// Package http provides HTTP server and handler implementations.
//
// This file implements request decoding and validation shared by the JSON
// handlers.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"homeledger/internal/core"
)

const (
	maxBodyBytes = 1 << 20
	defaultDays  = 30
	maxDays      = 3650
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// requestError is a malformed request. It always maps to 400.
type requestError struct {
	msg    string
	fields map[string]string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &requestError{msg: fmt.Sprintf(format, args...)}
}

type createUserRequest struct {
	Username string `json:"username" validate:"required,max=200"`
	Email    string `json:"email" validate:"required,email"`
}

type renameUserRequest struct {
	Username string `json:"username" validate:"required,max=200"`
}

type addMemberRequest struct {
	UserID int64     `json:"user_id" validate:"required,gt=0"`
	Role   core.Role `json:"role" validate:"required,oneof=admin co-admin member"`
}

type createCategoryRequest struct {
	Name string `json:"name" validate:"required,max=200"`
}

type createGoalRequest struct {
	Name   string     `json:"name" validate:"required,max=200"`
	Target core.Money `json:"target"`
}

type contributeRequest struct {
	Amount core.Money `json:"amount"`
}

type createBillRequest struct {
	Name    string     `json:"name" validate:"required,max=200"`
	Amount  core.Money `json:"amount"`
	DueDate string     `json:"due_date" validate:"required,datetime=2006-01-02"`
}

type paymentRequest struct {
	ReceiverID int64      `json:"receiver_id" validate:"required,gt=0"`
	CategoryID int64      `json:"category_id" validate:"required,gt=0"`
	Amount     core.Money `json:"amount"`
}

// DecodeJSON reads a JSON body into dst and validates its struct tags.
// Amount fields reject invalid values while decoding, so the error returned
// then carries core.ErrInvalidAmount.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		switch {
		case errors.Is(err, core.ErrInvalidAmount):
			return err
		case errors.Is(err, io.EOF):
			return badRequest("request body is empty")
		default:
			return badRequest("invalid request body: %v", err)
		}
	}
	if dec.More() {
		return badRequest("request body must hold a single JSON object")
	}

	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return &requestError{msg: "validation failed", fields: validationFields(verrs)}
		}
		return badRequest("validation failed: %v", err)
	}
	return nil
}

// validationFields maps each failing field to the tag it failed.
func validationFields(verrs validator.ValidationErrors) map[string]string {
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		out[fe.Field()] = fe.Tag()
	}
	return out
}

// PathID parses the positive integer path value name.
func PathID(r *http.Request, name string) (int64, error) {
	raw := r.PathValue(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest("invalid %s %q", name, raw)
	}
	return id, nil
}

// ParseDays reads the reporting period from ?days=, defaulting to 30.
func ParseDays(r *http.Request) (int, error) {
	v := strings.TrimSpace(r.URL.Query().Get("days"))
	if v == "" {
		return defaultDays, nil
	}
	days, err := strconv.Atoi(v)
	if err != nil || days <= 0 || days > maxDays {
		return 0, badRequest("days must be between 1 and %d", maxDays)
	}
	return days, nil
}

// ParseIDHeader reads a positive integer identity header. ok is false when
// the header is absent.
func ParseIDHeader(r *http.Request, name string) (id int64, ok bool, err error) {
	raw := strings.TrimSpace(r.Header.Get(name))
	if raw == "" {
		return 0, false, nil
	}
	id, err = strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, true, badRequest("invalid %s header", name)
	}
	return id, true, nil
}
