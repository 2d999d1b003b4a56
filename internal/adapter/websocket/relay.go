package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/pscheid92/taskboard/internal/adapter/metrics"
)

const publishTimeout = 2 * time.Second

// Fanout carries encoded messages to every relay instance, this one included.
type Fanout interface {
	Publish(ctx context.Context, payload []byte) error
}

// Relay decides how a received frame reaches the listeners. Without a fanout it
// broadcasts on the local hub. With one it publishes through it and falls back to
// the local hub when publishing fails.
type Relay struct {
	hub     *Hub
	fanout  Fanout
	metrics *metrics.WebSocketMetrics
}

// NewRelay wires hub to fanout. fanout and m may be nil.
func NewRelay(hub *Hub, fanout Fanout, m *metrics.WebSocketMetrics) *Relay {
	return &Relay{hub: hub, fanout: fanout, metrics: m}
}

func (r *Relay) Publish(ctx context.Context, msg Message) {
	if r.fanout == nil {
		r.count("local")
		r.hub.Broadcast(msg)
		return
	}

	payload, err := json.Marshal(msg)
	if err == nil {
		ctx, cancel := context.WithTimeout(ctx, publishTimeout)
		err = r.fanout.Publish(ctx, payload)
		cancel()
	}
	if err != nil {
		slog.Warn("Relay fanout failed, delivering locally", "error", err)
		r.count("fallback")
		r.hub.Broadcast(msg)
		return
	}
	r.count("bridge")
}

// Deliver handles a payload received from the fanout.
func (r *Relay) Deliver(payload []byte) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		slog.Warn("Dropping malformed relay payload", "error", err)
		return
	}
	r.hub.Broadcast(msg)
}

func (r *Relay) count(path string) {
	if r.metrics != nil {
		r.metrics.MessagesRelayed.WithLabelValues(path).Inc()
	}
}
