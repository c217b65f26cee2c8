package services

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"stealth-backend/internal/metrics"
	"stealth-backend/internal/types"
)

var ErrClientNotFound = errors.New("websocket client not found")

// SubscriptionFilter narrows the events a client receives. Empty Types means
// every type. Address keeps only intent events sent by that address; release
// and batch events carry no sender and are dropped when Address is set.
type SubscriptionFilter struct {
	Types   []types.EventType `json:"types,omitempty"`
	Address string            `json:"address,omitempty"`
}

func (f *SubscriptionFilter) matches(ev *types.LedgerEvent) bool {
	if len(f.Types) > 0 {
		found := false
		for _, t := range f.Types {
			if t == ev.Type {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Address != "" {
		return ev.Intent != nil && strings.EqualFold(ev.Intent.Sender.Hex(), f.Address)
	}
	return true
}

// EventMessage is the frame pushed to websocket clients.
type EventMessage struct {
	Type  string            `json:"type"`
	Event types.LedgerEvent `json:"event"`
}

// ClientSubscription is one connected client.
type ClientSubscription struct {
	ClientID string
	Address  string // user address from JWT, empty for anonymous clients
	Send     chan []byte

	mu      sync.RWMutex
	filter  SubscriptionFilter
	dropped int
}

// Filter returns the client's current filter.
func (c *ClientSubscription) Filter() SubscriptionFilter {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.filter
}

// EventHub fans committed ledger events out to websocket clients. A client
// whose buffer is full misses the event rather than stalling the ledger.
type EventHub struct {
	clients map[string]*ClientSubscription
	mu      sync.RWMutex
	buffer  int
	log     logrus.FieldLogger
}

// NewEventHub creates a hub with a per-client buffer of buffer frames.
func NewEventHub(buffer int) *EventHub {
	if buffer <= 0 {
		buffer = 256
	}
	return &EventHub{
		clients: make(map[string]*ClientSubscription),
		buffer:  buffer,
		log:     logrus.WithField("component", "ws-hub"),
	}
}

// RegisterClient adds a client that receives every event until it subscribes.
func (h *EventHub) RegisterClient(address string) *ClientSubscription {
	c := &ClientSubscription{
		ClientID: uuid.New().String(),
		Address:  address,
		Send:     make(chan []byte, h.buffer),
	}

	h.mu.Lock()
	h.clients[c.ClientID] = c
	n := len(h.clients)
	h.mu.Unlock()

	metrics.WebSocketClients.Set(float64(n))
	return c
}

// UnregisterClient removes a client and closes its channel.
func (h *EventHub) UnregisterClient(clientID string) {
	h.mu.Lock()
	c, ok := h.clients[clientID]
	delete(h.clients, clientID)
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		close(c.Send)
		metrics.WebSocketClients.Set(float64(n))
	}
}

// Subscribe replaces a client's filter.
func (h *EventHub) Subscribe(clientID string, filter SubscriptionFilter) error {
	h.mu.RLock()
	c, ok := h.clients[clientID]
	h.mu.RUnlock()
	if !ok {
		return ErrClientNotFound
	}

	c.mu.Lock()
	c.filter = filter
	c.mu.Unlock()
	return nil
}

// ClientCount returns the number of connected clients.
func (h *EventHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleLedgerEvent broadcasts ev to every matching client.
func (h *EventHub) HandleLedgerEvent(ev types.LedgerEvent) {
	frame, err := json.Marshal(EventMessage{Type: "ledger_event", Event: ev})
	if err != nil {
		h.log.WithError(err).Error("❌ Failed to encode websocket frame")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		c.mu.Lock()
		if c.filter.matches(&ev) {
			select {
			case c.Send <- frame:
			default:
				c.dropped++
				h.log.WithField("client_id", c.ClientID).Warn("⚠️ Websocket client buffer full, dropping event")
			}
		}
		c.mu.Unlock()
	}
}
