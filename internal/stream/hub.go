package stream

import (
	"context"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"
)

const liveChannel = "runsync:live:broadcast"

// Hub fans live session stats out to connected viewers. With a redis
// client attached, frames travel through pub/sub so viewers on other
// agent processes see the same feed; without one, delivery is local.
type Hub struct {
	redis   *redis.Client
	clients map[*Client]struct{}
	mu      sync.RWMutex
}

type Client struct {
	Send chan []byte
}

func NewHub(redisClient *redis.Client) *Hub {
	h := &Hub{
		redis:   redisClient,
		clients: map[*Client]struct{}{},
	}

	if redisClient != nil {
		go h.subscribeRedis()
	}
	return h
}

func (h *Hub) Register() *Client {
	client := &Client{Send: make(chan []byte, 64)}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client] = struct{}{}
	return client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.Send)
}

// Broadcast delivers one frame to every viewer. Slow viewers are skipped
// rather than blocking the feed.
func (h *Hub) Broadcast(payload []byte) {
	if h.redis != nil {
		if err := h.redis.Publish(context.Background(), liveChannel, payload).Err(); err != nil {
			log.Printf("redis publish error: %v", err)
			h.fanout(payload)
		}
		return
	}
	h.fanout(payload)
}

func (h *Hub) fanout(payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		select {
		case client.Send <- payload:
		default:
		}
	}
}

func (h *Hub) subscribeRedis() {
	pubsub := h.redis.Subscribe(context.Background(), liveChannel)
	defer pubsub.Close()

	for msg := range pubsub.Channel() {
		h.fanout([]byte(msg.Payload))
	}
}
