package amqp

import (
	"encoding/json"
	"time"
)

// Event kinds carried on the ledger events queue.
const (
	KindExpense        = "expense"
	KindExpenseDeleted = "expense_deleted"
	KindSettlement     = "settlement"
)

// LedgerEventMessage is a lightweight notification that a ledger event was
// written. It carries only identifiers; the worker fetches the full record
// from the database so the queue never holds stale amounts.
type LedgerEventMessage struct {
	Kind      string    `json:"kind"`
	ID        string    `json:"id"`
	SpaceID   string    `json:"spaceId"`
	Revision  int64     `json:"revision,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewLedgerEventMessage(kind, id, spaceID string, revision int64) *LedgerEventMessage {
	return &LedgerEventMessage{
		Kind:      kind,
		ID:        id,
		SpaceID:   spaceID,
		Revision:  revision,
		Timestamp: time.Now().UTC(),
	}
}

func (m *LedgerEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func LedgerEventMessageFromJSON(data []byte) (*LedgerEventMessage, error) {
	var msg LedgerEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
