package internal

import (
	"sync"

	"github.com/rs/zerolog"
)

// Hub maps connection ids to live websocket clients. It is the
// session.Transport the coordinator delivers frames through.
type Hub struct {
	mutex   sync.RWMutex
	clients map[string]*Client
	metrics *Metrics
	log     zerolog.Logger
}

// builds an empty hub ready to serve websocket requests
func NewHub(metrics *Metrics, logger zerolog.Logger) *Hub {
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &Hub{
		clients: make(map[string]*Client),
		metrics: metrics,
		log:     logger,
	}
}

func (hub *Hub) register(client *Client) {
	hub.mutex.Lock()
	defer hub.mutex.Unlock()
	hub.clients[client.id] = client
}

// unregister removes the client and closes its send queue if it is still
// registered.
func (hub *Hub) unregister(client *Client) {
	hub.mutex.Lock()
	defer hub.mutex.Unlock()
	if current, exists := hub.clients[client.id]; exists && current == client {
		delete(hub.clients, client.id)
		close(client.send)
	}
}

// Deliver queues frame for connID without blocking. A client whose buffer
// is full is dropped; its write pump then closes the socket and the read
// pump reports the disconnect.
func (hub *Hub) Deliver(connID string, frame []byte) {
	hub.mutex.Lock()
	defer hub.mutex.Unlock()
	client, exists := hub.clients[connID]
	if !exists {
		return
	}
	select {
	case client.send <- frame:
	default:
		delete(hub.clients, connID)
		close(client.send)
		hub.metrics.FrameDropped()
		hub.log.Warn().Str("conn", connID).Msg("dropping slow client")
	}
}

// Len returns the number of registered connections.
func (hub *Hub) Len() int {
	hub.mutex.RLock()
	defer hub.mutex.RUnlock()
	return len(hub.clients)
}

// CloseAll drops every client. Their write pumps send a close frame and the
// read pumps report the disconnects.
func (hub *Hub) CloseAll() {
	hub.mutex.Lock()
	defer hub.mutex.Unlock()
	for id, client := range hub.clients {
		delete(hub.clients, id)
		close(client.send)
	}
}
