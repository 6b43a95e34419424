package amqp

import (
	"encoding/json"
	"time"
)

// MutationMessage notifies downstream consumers that a document changed.
// Consumers re-read the store; the message carries only identifiers.
type MutationMessage struct {
	Entity    string    `json:"entity"` // "event" or "expense"
	Op        string    `json:"op"`     // "create" or "delete"
	EventID   string    `json:"event_id"`
	ExpenseID string    `json:"expense_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEventMutation creates a notification for an event-level change.
func NewEventMutation(op, eventID string) *MutationMessage {
	return &MutationMessage{
		Entity:    "event",
		Op:        op,
		EventID:   eventID,
		Timestamp: time.Now(),
	}
}

// NewExpenseMutation creates a notification for an expense-level change.
func NewExpenseMutation(op, eventID, expenseID string) *MutationMessage {
	return &MutationMessage{
		Entity:    "expense",
		Op:        op,
		EventID:   eventID,
		ExpenseID: expenseID,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *MutationMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// MutationMessageFromJSON creates a message from JSON bytes
func MutationMessageFromJSON(data []byte) (*MutationMessage, error) {
	var msg MutationMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
