package amqp

import "testing"

func TestSyncMessageRoundTrip(t *testing.T) {
	msg := NewDeleteMessage(42, "abc-123")
	data, err := msg.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON: %v", err)
	}
	got, err := SyncMessageFromJSON(data)
	if err != nil {
		t.Fatalf("SyncMessageFromJSON: %v", err)
	}
	if got.Op != OpDelete || got.ID != 42 || got.UUID != "abc-123" {
		t.Fatalf("round trip returned %+v", got)
	}
}

func TestSyncMessageFromJSONRejectsBadInput(t *testing.T) {
	if _, err := SyncMessageFromJSON([]byte("not json")); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
	if _, err := SyncMessageFromJSON([]byte(`{"op":"explode","id":1}`)); err == nil {
		t.Fatal("expected error for unknown op")
	}
}

func TestNewUpsertMessage(t *testing.T) {
	msg := NewUpsertMessage(7)
	if msg.Op != OpUpsert || msg.ID != 7 {
		t.Fatalf("NewUpsertMessage = %+v", msg)
	}
	if msg.Timestamp.IsZero() {
		t.Fatal("timestamp not set")
	}
}
