package amqp

import (
	"encoding/json"
	"time"
)

// Sync actions carried on the wire.
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
)

// InvoiceSyncMessage is a lightweight notification that an invoice changed.
// It carries only the ID and action, the worker fetches the full invoice
// from the database before forwarding it anywhere.
type InvoiceSyncMessage struct {
	ID        int64     `json:"id"`
	Action    string    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
}

// NewInvoiceSyncMessage creates a sync message for an invoice change.
func NewInvoiceSyncMessage(id int64, action string) *InvoiceSyncMessage {
	return &InvoiceSyncMessage{
		ID:        id,
		Action:    action,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *InvoiceSyncMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// FromJSON creates a message from JSON bytes
func InvoiceSyncMessageFromJSON(data []byte) (*InvoiceSyncMessage, error) {
	var msg InvoiceSyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
