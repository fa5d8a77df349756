package websocket

import (
	"encoding/json"
	"testing"
	"time"
)

func TestMessageRoundTrip(t *testing.T) {
	msg := &Message{
		Type:      "console_line",
		Payload:   map[string]interface{}{"line": "Server started."},
		Timestamp: time.Now(),
	}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded Message
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if decoded.Type != "console_line" {
		t.Fatalf("expected type console_line, got %s", decoded.Type)
	}
	payload, ok := decoded.Payload.(map[string]interface{})
	if !ok || payload["line"] != "Server started." {
		t.Fatalf("payload did not survive round trip: %#v", decoded.Payload)
	}
}

func TestMessageOmitsEmptyMetadata(t *testing.T) {
	data, err := json.Marshal(&Message{Type: "server_status"})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if _, ok := raw["metadata"]; ok {
		t.Fatalf("expected metadata to be omitted when empty")
	}
}
