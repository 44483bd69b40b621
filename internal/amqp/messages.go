package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// Sync operations carried by messages.
const (
	OpUpsert = "upsert"
	OpDelete = "delete"
)

// SyncMessage tells the worker to mirror one transaction into the
// statement sheet. It carries only identifiers; the worker fetches the
// full record from storage for upserts. Deletes carry the dedupe token
// because the row is already gone from storage.
type SyncMessage struct {
	Op        string    `json:"op"`
	ID        int64     `json:"id"`
	UUID      string    `json:"uuid,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewUpsertMessage creates a sync message for a created or updated transaction.
func NewUpsertMessage(id int64) *SyncMessage {
	return &SyncMessage{Op: OpUpsert, ID: id, Timestamp: time.Now()}
}

// NewDeleteMessage creates a sync message for a deleted transaction.
func NewDeleteMessage(id int64, uuid string) *SyncMessage {
	return &SyncMessage{Op: OpDelete, ID: id, UUID: uuid, Timestamp: time.Now()}
}

// ToJSON converts the message to JSON bytes.
func (m *SyncMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// SyncMessageFromJSON decodes and validates a message from JSON bytes.
func SyncMessageFromJSON(data []byte) (*SyncMessage, error) {
	var msg SyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	switch msg.Op {
	case OpUpsert, OpDelete:
	default:
		return nil, fmt.Errorf("unknown sync op %q", msg.Op)
	}
	return &msg, nil
}
