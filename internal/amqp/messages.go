package amqp

import (
	"encoding/json"
	"time"
)

// SnapshotSavedMessage announces that the financial snapshot was persisted.
// It carries no data: consumers reload the snapshot from storage.
type SnapshotSavedMessage struct {
	Operation string    `json:"operation"`
	Timestamp time.Time `json:"timestamp"`
}

func NewSnapshotSavedMessage(operation string) *SnapshotSavedMessage {
	return &SnapshotSavedMessage{
		Operation: operation,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *SnapshotSavedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func SnapshotSavedMessageFromJSON(data []byte) (*SnapshotSavedMessage, error) {
	var msg SnapshotSavedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
