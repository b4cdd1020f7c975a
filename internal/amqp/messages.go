package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"moneytracker/internal/docstore"
)

// ChangeMessage announces one committed document write. Receivers re-read
// the affected collection rather than trusting a payload.
type ChangeMessage struct {
	Origin     string    `json:"origin"`
	Collection string    `json:"collection"`
	UserID     string    `json:"userId"`
	DocumentID string    `json:"documentId"`
	Op         string    `json:"op"`
	Timestamp  time.Time `json:"timestamp"`
}

var ErrInvalidMessage = errors.New("invalid change message")

// NewChangeMessage wraps c for publishing from origin.
func NewChangeMessage(origin string, c docstore.Change) *ChangeMessage {
	ts := c.At
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return &ChangeMessage{
		Origin:     origin,
		Collection: c.Collection,
		UserID:     c.UserID,
		DocumentID: c.DocumentID,
		Op:         string(c.Op),
		Timestamp:  ts,
	}
}

// ToJSON converts the message to JSON bytes
func (m *ChangeMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ChangeMessageFromJSON decodes and checks a message body.
func ChangeMessageFromJSON(data []byte) (*ChangeMessage, error) {
	var msg ChangeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Collection == "" {
		return nil, ErrInvalidMessage
	}
	return &msg, nil
}

// Change converts the message back to a docstore change.
func (m *ChangeMessage) Change() docstore.Change {
	return docstore.Change{
		Collection: m.Collection,
		UserID:     m.UserID,
		DocumentID: m.DocumentID,
		Op:         docstore.Op(m.Op),
		At:         m.Timestamp,
	}
}
