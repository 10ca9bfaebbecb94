package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cx-tal-miterani/bus-booking-system/internal/events"
	"github.com/cx-tal-miterani/bus-booking-system/internal/models"
)

// MessageType represents the type of WebSocket message
type MessageType string

const (
	MessageTypeSeatsUpdated     MessageType = "seats_updated"
	MessageTypeBookingCreated   MessageType = "booking_created"
	MessageTypeBookingCancelled MessageType = "booking_cancelled"
)

// SeatUpdate represents one seat's current state
type SeatUpdate struct {
	Number   int    `json:"number"`
	Label    string `json:"label"`
	IsBooked bool   `json:"isBooked"`
}

// Message represents a WebSocket message
type Message struct {
	Type           MessageType  `json:"type"`
	TripID         string       `json:"tripId"`
	Seats          []SeatUpdate `json:"seats,omitempty"`
	Changed        []int        `json:"changed,omitempty"`
	AvailableSeats int          `json:"availableSeats"`
	Timestamp      int64        `json:"timestamp"`
}

// Client represents a WebSocket client connection
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	tripID string
}

// Hub manages WebSocket connections per trip
type Hub struct {
	clients    map[string]map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan *Message
	done       chan struct{}
	mu         sync.RWMutex
	logger     *zap.Logger
}

// NewHub creates a new Hub
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *Message, 256),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run starts the hub's main loop and returns when ctx is done
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.closeAll()
			return

		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.tripID] == nil {
				h.clients[client.tripID] = make(map[*Client]bool)
			}
			h.clients[client.tripID][client] = true
			h.logger.Debug("websocket client registered",
				zap.String("tripId", client.tripID),
				zap.Int("clients", len(h.clients[client.tripID])))
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			h.remove(client)
			h.mu.Unlock()

		case message := <-h.broadcast:
			data, err := json.Marshal(message)
			if err != nil {
				h.logger.Error("failed to marshal websocket message", zap.Error(err))
				continue
			}

			h.mu.Lock()
			for client := range h.clients[message.TripID] {
				select {
				case client.send <- data:
				default:
					h.remove(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// remove must be called with h.mu held
func (h *Hub) remove(client *Client) {
	clients, ok := h.clients[client.tripID]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}
	delete(clients, client)
	close(client.send)
	if len(clients) == 0 {
		delete(h.clients, client.tripID)
	}
	h.logger.Debug("websocket client unregistered",
		zap.String("tripId", client.tripID),
		zap.Int("remaining", len(clients)))
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, clients := range h.clients {
		for client := range clients {
			h.remove(client)
		}
	}
}

// BroadcastSeats pushes the full seat map of trip to everyone watching it
func (h *Hub) BroadcastSeats(msgType MessageType, trip *models.Trip, changed []int) {
	seats := make([]SeatUpdate, len(trip.Seats))
	for i, s := range trip.Seats {
		seats[i] = SeatUpdate{Number: s.Number, Label: s.Label(), IsBooked: s.IsBooked}
	}

	msg := &Message{
		Type:           msgType,
		TripID:         trip.ID,
		Seats:          seats,
		Changed:        changed,
		AvailableSeats: trip.AvailableSeats,
		Timestamp:      time.Now().UnixMilli(),
	}
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("websocket broadcast queue full, dropping update", zap.String("tripId", trip.ID))
	}
}

// Publish lets the hub receive booking events as a live seat-map feed
func (h *Hub) Publish(ctx context.Context, evt events.Event) error {
	if evt.Trip == nil {
		return nil
	}
	msgType := MessageTypeSeatsUpdated
	switch evt.Type {
	case events.BookingCreated:
		msgType = MessageTypeBookingCreated
	case events.BookingCancelled:
		msgType = MessageTypeBookingCancelled
	}
	h.BroadcastSeats(msgType, evt.Trip, evt.Seats)
	return nil
}

// ClientCount returns the number of clients watching a trip
func (h *Hub) ClientCount(tripID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[tripID])
}
