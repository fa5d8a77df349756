package websocket

import (
	"context"
	"log"
	"sync"
	"time"
)

// Well-known rooms. Console lines, runtime status flips and telemetry
// snapshots are each pushed to their own room so clients subscribe only
// to the streams they render.
const (
	RoomConsole   = "console"
	RoomStatus    = "status"
	RoomTelemetry = "telemetry"
)

// Message is the envelope for everything pushed over a WebSocket.
type Message struct {
	Type      string                 `json:"type"`
	Payload   interface{}            `json:"payload"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// BroadcastMessage pairs a message with the room it is destined for.
type BroadcastMessage struct {
	Room    string
	Message *Message
}

// Hub tracks connected clients per room and fans broadcasts out to them.
// Registration and broadcasting happen on the Run loop goroutine; the
// mutex guards the maps for the synchronous read helpers.
type Hub struct {
	rooms   map[string]map[*Client]bool
	clients map[string]*Client

	Register   chan *Client
	Unregister chan *Client
	broadcast  chan *BroadcastMessage

	mu sync.RWMutex
}

// NewHub creates an empty hub. Call Run to start delivery.
func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		clients:    make(map[string]*Client),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		broadcast:  make(chan *BroadcastMessage, 256),
	}
}

// Run drives registration and delivery until the context is cancelled,
// then closes every remaining connection.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case client := <-h.Register:
			h.registerClient(client)
		case client := <-h.Unregister:
			h.unregisterClient(client)
		case bm := <-h.broadcast:
			h.broadcastToRoom(bm)
		case <-ctx.Done():
			log.Println("[Hub] Shutting down")
			h.closeAll()
			return
		}
	}
}

// BroadcastToRoom queues a message for every client in the room. Safe to
// call from any goroutine; delivery happens on the Run loop.
func (h *Hub) BroadcastToRoom(room string, message *Message) {
	h.broadcast <- &BroadcastMessage{Room: room, Message: message}
}

// GetRoomSize reports how many clients are currently in the room.
func (h *Hub) GetRoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client.ID] = client
	if h.rooms[client.Room] == nil {
		h.rooms[client.Room] = make(map[*Client]bool)
	}
	h.rooms[client.Room][client] = true

	log.Printf("[Hub] Client %s (user=%s) joined %s (%d in room)",
		client.ID, client.Username, client.Room, len(h.rooms[client.Room]))
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.clients, client.ID)

	members, ok := h.rooms[client.Room]
	if !ok {
		return
	}
	if _, present := members[client]; !present {
		return
	}
	delete(members, client)
	close(client.Send)

	if len(members) == 0 {
		delete(h.rooms, client.Room)
	}
	log.Printf("[Hub] Client %s left %s (%d in room)", client.ID, client.Room, len(members))
}

// broadcastToRoom delivers to each member's buffered channel. A slow
// consumer with a full buffer loses the message rather than stalling
// the console or telemetry stream for everyone else.
func (h *Hub) broadcastToRoom(bm *BroadcastMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.rooms[bm.Room] {
		select {
		case client.Send <- bm.Message:
		default:
			log.Printf("[Hub] Client %s buffer full, dropping %s message", client.ID, bm.Message.Type)
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, client := range h.clients {
		close(client.Send)
		client.Conn.Close()
	}
	h.rooms = make(map[string]map[*Client]bool)
	h.clients = make(map[string]*Client)
}
