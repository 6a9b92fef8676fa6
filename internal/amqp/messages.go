package amqp

import (
	"encoding/json"
	"time"

	"spendly/internal/core"
)

// EventType names a change to an expense record.
type EventType string

const (
	EventCreated EventType = "expense.created"
	EventUpdated EventType = "expense.updated"
	EventDeleted EventType = "expense.deleted"
	EventSynced  EventType = "expense.synced"
)

// ExpenseEvent is published after a store write succeeded. Consumers that need
// the full record fetch it by ID; deletes carry only identifiers.
type ExpenseEvent struct {
	Type      EventType     `json:"type"`
	ExpenseID string        `json:"expenseId"`
	OwnerID   string        `json:"ownerId"`
	LocalID   *string       `json:"localId,omitempty"`
	Amount    *core.Money   `json:"amount,omitempty"`
	Category  core.Category `json:"category,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// NewExpenseEvent builds an event for e. Deletes omit amount and category.
func NewExpenseEvent(t EventType, e core.Expense) *ExpenseEvent {
	ev := &ExpenseEvent{
		Type:      t,
		ExpenseID: e.ID,
		OwnerID:   e.OwnerID,
		LocalID:   e.LocalID,
		Timestamp: time.Now(),
	}
	if t != EventDeleted {
		amount := e.Amount
		ev.Amount = &amount
		ev.Category = e.Category
	}
	return ev
}

// ToJSON converts the event to JSON bytes
func (m *ExpenseEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ExpenseEventFromJSON(data []byte) (*ExpenseEvent, error) {
	var msg ExpenseEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
