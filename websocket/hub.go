package websocket

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/anjiri1684/peptide_shop/logger"
	"github.com/anjiri1684/peptide_shop/services"
)

// Client is a connected admin socket. *websocket.Conn from gofiber/contrib satisfies it.
type Client interface {
	WriteJSON(v interface{}) error
	Close() error
}

// Hub fans confirmed orders out to every connected admin client.
type Hub struct {
	clients    map[Client]struct{}
	clientsMu  sync.RWMutex
	register   chan Client
	unregister chan Client
	broadcast  chan services.OrderEvent
	done       chan struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[Client]struct{}),
		register:   make(chan Client),
		unregister: make(chan Client),
		broadcast:  make(chan services.OrderEvent, 64),
		done:       make(chan struct{}),
	}
}

// Register and Unregister return immediately once the hub has stopped.
func (h *Hub) Register(c Client) {
	select {
	case h.register <- c:
	case <-h.done:
	}
}

func (h *Hub) Unregister(c Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Publish queues an order for broadcast. It never blocks the caller; when the
// queue is full the event is dropped.
func (h *Hub) Publish(ev services.OrderEvent) {
	select {
	case h.broadcast <- ev:
	default:
		logger.Log.Warn("order feed queue full, event dropped", zap.Int64("pay_num", ev.PayNum))
	}
}

// Clients reports how many sockets are connected.
func (h *Hub) Clients() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.clientsMu.Lock()
			for c := range h.clients {
				c.Close()
				delete(h.clients, c)
			}
			h.clientsMu.Unlock()
			return
		case c := <-h.register:
			h.clientsMu.Lock()
			h.clients[c] = struct{}{}
			h.clientsMu.Unlock()
			logger.Log.Info("order feed client registered")
		case c := <-h.unregister:
			h.clientsMu.Lock()
			delete(h.clients, c)
			h.clientsMu.Unlock()
			logger.Log.Info("order feed client unregistered")
		case ev := <-h.broadcast:
			h.send(ev)
		}
	}
}

func (h *Hub) send(ev services.OrderEvent) {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	for c := range h.clients {
		if err := c.WriteJSON(ev); err != nil {
			logger.Log.Warn("failed to push order to client, dropping it", zap.Error(err))
			c.Close()
			delete(h.clients, c)
		}
	}
}
