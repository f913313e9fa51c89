// Package live pushes board change events to connected browsers over
// websockets so open boards update without polling. Clients subscribe to a
// single board; events for other boards are not sent to them.
package live

import (
	"encoding/json"
	"log"
)

// Event is one board mutation, broadcast to every subscriber of the board.
type Event struct {
	Type    string `json:"type"`
	BoardID string `json:"boardId"`
	Payload any    `json:"payload,omitempty"`
}

// Hub maintains the set of active clients and fans events out to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Event
	register   chan *Client
	unregister chan *Client
}

// NewHub creates a hub; callers must start Run in a goroutine.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Event, 16),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Broadcast queues an event for every client subscribed to its board.
func (h *Hub) Broadcast(event Event) {
	h.broadcast <- event
}

// Run is the hub's main loop. It owns the clients map; register, unregister
// and broadcast all funnel through it, so no locking is needed.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
		case event := <-h.broadcast:
			message, err := json.Marshal(event)
			if err != nil {
				log.Printf("live: marshal event: %v", err)
				continue
			}
			for client := range h.clients {
				if client.boardID != event.BoardID {
					continue
				}
				select {
				case client.send <- message:
				default:
					// Slow consumer; drop it rather than stall the hub.
					delete(h.clients, client)
					close(client.send)
				}
			}
		}
	}
}
