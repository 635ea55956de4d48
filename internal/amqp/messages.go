package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// EventKind names the money movement a ledger event reports. It doubles as
// the AMQP message type.
type EventKind string

const (
	EventGoalContribution EventKind = "ledger.goal_contribution"
	EventBillSettled      EventKind = "ledger.bill_settled"
	EventPayment          EventKind = "ledger.payment"
)

func (k EventKind) Valid() bool {
	switch k {
	case EventGoalContribution, EventBillSettled, EventPayment:
		return true
	}
	return false
}

// LedgerEventMessage announces a committed ledger row. It carries only the
// row id; consumers read the row itself from the database.
type LedgerEventMessage struct {
	ID            string    `json:"id"`
	Kind          EventKind `json:"kind"`
	HouseholdID   int64     `json:"household_id"`
	TransactionID int64     `json:"transaction_id"`
	AmountCents   int64     `json:"amount_cents"`
	Timestamp     time.Time `json:"timestamp"`
}

func NewLedgerEventMessage(kind EventKind, householdID, transactionID, amountCents int64) *LedgerEventMessage {
	return &LedgerEventMessage{
		ID:            uuid.NewString(),
		Kind:          kind,
		HouseholdID:   householdID,
		TransactionID: transactionID,
		AmountCents:   amountCents,
		Timestamp:     time.Now().UTC(),
	}
}

func (m *LedgerEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// LedgerEventMessageFromJSON decodes and checks a delivery body.
func LedgerEventMessageFromJSON(data []byte) (*LedgerEventMessage, error) {
	var msg LedgerEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(msg.ID); err != nil {
		return nil, errors.New("ledger event: invalid id")
	}
	if !msg.Kind.Valid() {
		return nil, errors.New("ledger event: unknown kind " + string(msg.Kind))
	}
	if msg.TransactionID <= 0 || msg.HouseholdID <= 0 {
		return nil, errors.New("ledger event: missing transaction or household id")
	}
	return &msg, nil
}
