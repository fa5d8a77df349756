package websocket

import (
	"testing"
)

func TestHubRegisterAndUnregister(t *testing.T) {
	hub := NewHub()
	client := &Client{
		ID:       "client-1",
		Username: "admin",
		Room:     RoomConsole,
		Send:     make(chan *Message, 1),
		Hub:      hub,
	}

	hub.registerClient(client)
	if hub.GetRoomSize(RoomConsole) != 1 {
		t.Fatalf("expected room size 1")
	}

	hub.unregisterClient(client)
	if hub.GetRoomSize(RoomConsole) != 0 {
		t.Fatalf("expected room to be empty")
	}
}

func TestHubBroadcastToRoom(t *testing.T) {
	hub := NewHub()
	client := &Client{
		ID:       "client-1",
		Username: "admin",
		Room:     RoomTelemetry,
		Send:     make(chan *Message, 1),
		Hub:      hub,
	}

	hub.registerClient(client)

	message := &Message{Type: "telemetry_snapshot"}
	hub.broadcastToRoom(&BroadcastMessage{Room: RoomTelemetry, Message: message})

	select {
	case received := <-client.Send:
		if received.Type != "telemetry_snapshot" {
			t.Fatalf("expected telemetry_snapshot message")
		}
	default:
		t.Fatalf("expected message to be delivered")
	}
}

func TestHubBroadcastDropsWhenSendFull(t *testing.T) {
	hub := NewHub()
	client := &Client{
		ID:   "client-1",
		Room: RoomConsole,
		Send: make(chan *Message, 1),
		Hub:  hub,
	}

	hub.registerClient(client)

	hub.broadcastToRoom(&BroadcastMessage{Room: RoomConsole, Message: &Message{Type: "console_line"}})
	// Second broadcast must not block even though the buffer is full.
	hub.broadcastToRoom(&BroadcastMessage{Room: RoomConsole, Message: &Message{Type: "console_line"}})

	if got := len(client.Send); got != 1 {
		t.Fatalf("expected 1 buffered message, got %d", got)
	}
}

func TestHubRoomsAreIsolated(t *testing.T) {
	hub := NewHub()
	console := &Client{ID: "c", Room: RoomConsole, Send: make(chan *Message, 1), Hub: hub}
	status := &Client{ID: "s", Room: RoomStatus, Send: make(chan *Message, 1), Hub: hub}

	hub.registerClient(console)
	hub.registerClient(status)

	hub.broadcastToRoom(&BroadcastMessage{Room: RoomStatus, Message: &Message{Type: "server_status"}})

	if len(console.Send) != 0 {
		t.Fatalf("console client should not receive status messages")
	}
	if len(status.Send) != 1 {
		t.Fatalf("status client should receive the message")
	}
}
