package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"entrate/internal/core"
	"entrate/internal/store"
)

// RoutingKeyIncomeRecorded routes confirmed income writes.
const RoutingKeyIncomeRecorded = "income.recorded"

// IncomeRecordedMessage is published after an income has been written to
// the user's record. The entry uses the document wire shape.
type IncomeRecordedMessage struct {
	MessageID        string               `json:"message_id"`
	UserID           string               `json:"user_id"`
	Entry            store.IncomeDocument `json:"entry"`
	TotalIncomeCents int64                `json:"total_income_cents"`
	Timestamp        time.Time            `json:"timestamp"`
}

// NewIncomeRecordedMessage builds a message with a fresh id and timestamp.
func NewIncomeRecordedMessage(userID string, e core.IncomeEntry, total core.Money) *IncomeRecordedMessage {
	return &IncomeRecordedMessage{
		MessageID:        uuid.NewString(),
		UserID:           userID,
		Entry:            store.NewIncomeDocument(e),
		TotalIncomeCents: total.Cents,
		Timestamp:        time.Now().UTC(),
	}
}

// IncomeEntry decodes the carried entry.
func (m *IncomeRecordedMessage) IncomeEntry() (core.IncomeEntry, error) {
	return m.Entry.Entry()
}

// ToJSON serializes the message for publishing.
func (m *IncomeRecordedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// IncomeRecordedMessageFromJSON decodes and sanity checks a message body.
func IncomeRecordedMessageFromJSON(data []byte) (*IncomeRecordedMessage, error) {
	var msg IncomeRecordedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.UserID == "" {
		return nil, fmt.Errorf("message %s: missing user_id", msg.MessageID)
	}
	if _, err := msg.IncomeEntry(); err != nil {
		return nil, fmt.Errorf("message %s: %w", msg.MessageID, err)
	}
	return &msg, nil
}
