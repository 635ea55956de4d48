package core

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseDecimalToCents(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"1", 100, true},
		{"1.0", 100, true},
		{"1.23", 123, true},
		{"1,23", 123, true},
		{"0.01", 1, true},
		{".5", 50, true},
		{"1.005", 101, true}, // half-up rounding
		{"12.344", 1234, true},
		{"12.345", 1235, true},
		{" 2.50 ", 250, true},
		{"-1", 0, false},
		{"+1", 0, false},
		{"1e3", 0, false},
		{"0", 0, false},
		{"0.004", 0, false},
		{"abc", 0, false},
		{"1.2.3", 0, false},
		{"", 0, false},
		{"99999999999999999999", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseDecimalToCents(tc.in)
		if tc.ok {
			if err != nil || got != tc.out {
				t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got, err)
			}
		} else {
			if !errors.Is(err, ErrInvalidAmount) {
				t.Fatalf("%q expected ErrInvalidAmount, got %v", tc.in, err)
			}
		}
	}
}

func TestMoneyString(t *testing.T) {
	cases := map[int64]string{
		0:      "0.00",
		1:      "0.01",
		1230:   "12.30",
		100000: "1000.00",
	}
	for cents, want := range cases {
		if got := (Money{Cents: cents}).String(); got != want {
			t.Fatalf("Money{%d}.String() = %q, want %q", cents, got, want)
		}
	}
}

func TestMoneyJSON(t *testing.T) {
	var body struct {
		A Money `json:"a"`
		B Money `json:"b"`
	}
	if err := json.Unmarshal([]byte(`{"a":"12.34","b":0.1}`), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.A.Cents != 1234 || body.B.Cents != 10 {
		t.Fatalf("unexpected amounts: %+v", body)
	}

	out, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != `{"a":"12.34","b":"0.10"}` {
		t.Fatalf("unexpected json: %s", out)
	}

	if err := json.Unmarshal([]byte(`{"a":-5}`), &body); err == nil {
		t.Fatal("expected error for negative amount")
	}
}

func TestRepeatedCentAdditionDoesNotDrift(t *testing.T) {
	// 0.1 added ten times must equal exactly 1.00
	step, err := ParseMoney("0.10")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	var total Money
	for i := 0; i < 10; i++ {
		total = total.Add(step)
	}
	goal := SavingsGoal{Name: "x", Target: Money{Cents: 100}, Current: total}
	if !goal.Achieved() || total.Cents != 100 {
		t.Fatalf("expected exactly 1.00, got %s", total)
	}
}

func TestAverageOf(t *testing.T) {
	if got := AverageOf(Money{Cents: 1000}, 3); got.Cents != 333 {
		t.Fatalf("expected 333, got %d", got.Cents)
	}
	if got := AverageOf(Money{Cents: 500}, 3); got.Cents != 167 {
		t.Fatalf("expected 167, got %d", got.Cents)
	}
	if got := AverageOf(Money{Cents: 500}, 0); got.Cents != 0 {
		t.Fatalf("expected 0 for empty set, got %d", got.Cents)
	}
}
