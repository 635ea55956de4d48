package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"homeledger/internal/core"
)

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantErr    bool
		wantAmount bool // error must carry core.ErrInvalidAmount
		wantField  string
		wantCents  int64
	}{
		{name: "decimal string", body: `{"receiver_id": 2, "category_id": 3, "amount": "12.34"}`, wantCents: 1234},
		{name: "json number", body: `{"receiver_id": 2, "category_id": 3, "amount": 15}`, wantCents: 1500},
		{name: "comma separator", body: `{"receiver_id": 2, "category_id": 3, "amount": "0,5"}`, wantCents: 50},
		{name: "negative amount", body: `{"receiver_id": 2, "category_id": 3, "amount": "-1"}`, wantErr: true, wantAmount: true},
		{name: "garbage amount", body: `{"receiver_id": 2, "category_id": 3, "amount": "abc"}`, wantErr: true, wantAmount: true},
		{name: "missing receiver", body: `{"category_id": 3, "amount": "1"}`, wantErr: true, wantField: "ReceiverID"},
		{name: "unknown field", body: `{"receiver_id": 2, "category_id": 3, "amount": "1", "note": "x"}`, wantErr: true},
		{name: "empty body", body: ``, wantErr: true},
		{name: "two objects", body: `{"receiver_id": 2, "category_id": 3, "amount": "1"}{}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/api/payments", strings.NewReader(tt.body))
			var req paymentRequest
			err := DecodeJSON(httptest.NewRecorder(), r, &req)

			if !tt.wantErr {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if req.Amount.Cents != tt.wantCents {
					t.Errorf("amount = %d, want %d", req.Amount.Cents, tt.wantCents)
				}
				return
			}
			if err == nil {
				t.Fatal("expected an error")
			}
			if tt.wantAmount && !errors.Is(err, core.ErrInvalidAmount) {
				t.Errorf("error %v does not carry ErrInvalidAmount", err)
			}
			if tt.wantField != "" {
				var reqErr *requestError
				if !errors.As(err, &reqErr) || reqErr.fields[tt.wantField] == "" {
					t.Errorf("error %v does not name field %s", err, tt.wantField)
				}
			}
		})
	}
}

func TestDecodeJSON_ValidatesTags(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		dst     any
		wantErr bool
	}{
		{"valid user", `{"username": "alice", "email": "alice@example.com"}`, &createUserRequest{}, false},
		{"bad email", `{"username": "alice", "email": "alice"}`, &createUserRequest{}, true},
		{"valid role", `{"user_id": 4, "role": "co-admin"}`, &addMemberRequest{}, false},
		{"unknown role", `{"user_id": 4, "role": "owner"}`, &addMemberRequest{}, true},
		{"valid due date", `{"name": "Rent", "amount": "900", "due_date": "2024-02-01"}`, &createBillRequest{}, false},
		{"bad due date", `{"name": "Rent", "amount": "900", "due_date": "01/02/2024"}`, &createBillRequest{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			err := DecodeJSON(httptest.NewRecorder(), r, tt.dst)
			if (err != nil) != tt.wantErr {
				t.Errorf("DecodeJSON() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseDays(t *testing.T) {
	tests := []struct {
		query   string
		want    int
		wantErr bool
	}{
		{"", 30, false},
		{"?days=7", 7, false},
		{"?days=0", 0, true},
		{"?days=-3", 0, true},
		{"?days=abc", 0, true},
		{"?days=99999", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api/spending"+tt.query, nil)
			got, err := ParseDays(r)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDays() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseDays() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestPathID(t *testing.T) {
	r := httptest.NewRequest(http.MethodDelete, "/api/goals/12", nil)
	r.SetPathValue("id", "12")
	if id, err := PathID(r, "id"); err != nil || id != 12 {
		t.Errorf("PathID() = %d, %v", id, err)
	}

	for _, raw := range []string{"", "0", "-1", "x"} {
		r.SetPathValue("id", raw)
		if _, err := PathID(r, "id"); err == nil {
			t.Errorf("PathID(%q) should fail", raw)
		}
	}
}

func TestParseIDHeader(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	if _, ok, err := ParseIDHeader(r, HeaderUserID); ok || err != nil {
		t.Errorf("absent header: ok=%v err=%v", ok, err)
	}

	r.Header.Set(HeaderUserID, " 5 ")
	if id, ok, err := ParseIDHeader(r, HeaderUserID); id != 5 || !ok || err != nil {
		t.Errorf("valid header: id=%d ok=%v err=%v", id, ok, err)
	}

	r.Header.Set(HeaderUserID, "five")
	if _, ok, err := ParseIDHeader(r, HeaderUserID); !ok || err == nil {
		t.Errorf("invalid header: ok=%v err=%v", ok, err)
	}
}
