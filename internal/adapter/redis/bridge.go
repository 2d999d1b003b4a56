package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
)

// RelayChannel is the pub/sub channel shared by every relay instance.
const RelayChannel = "relay:broadcast"

// ErrBridgeOpen is returned by Publish while the breaker rejects calls.
var ErrBridgeOpen = errors.New("relay bridge unavailable")

func newBreaker() *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "relay-bridge",
		MaxRequests: 1,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	})
}

// RelayBridge fans relay messages out to every instance through Redis pub/sub.
type RelayBridge struct {
	rdb     *goredis.Client
	channel string
	cb      *gobreaker.CircuitBreaker
}

func NewRelayBridge(rdb *goredis.Client) *RelayBridge {
	return &RelayBridge{rdb: rdb, channel: RelayChannel, cb: newBreaker()}
}

// Publish sends payload to all subscribed instances.
func (b *RelayBridge) Publish(ctx context.Context, payload []byte) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, b.rdb.Publish(ctx, b.channel, payload).Err()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", ErrBridgeOpen, err)
	}
	if err != nil {
		return fmt.Errorf("failed to publish relay message: %w", err)
	}
	return nil
}

// Run subscribes to the relay channel and hands every payload to deliver until
// ctx is cancelled.
func (b *RelayBridge) Run(ctx context.Context, deliver func(payload []byte)) {
	pubsub := b.rdb.Subscribe(ctx, b.channel)
	defer func() { _ = pubsub.Close() }()

	ch := pubsub.Channel()
	for {
		select {
		case msg := <-ch:
			if msg == nil {
				return
			}
			if msg.Payload == "" {
				slog.Warn("Empty relay bridge message")
				continue
			}
			deliver([]byte(msg.Payload))
		case <-ctx.Done():
			return
		}
	}
}

func (b *RelayBridge) State() gobreaker.State {
	return b.cb.State()
}

// Ping checks the underlying connection.
func (b *RelayBridge) Ping(ctx context.Context) error {
	return b.rdb.Ping(ctx).Err()
}

// Check is the readiness check of the bridge. An open breaker fails it even
// when Redis answers pings, since publishes are being rejected.
func (b *RelayBridge) Check(ctx context.Context) error {
	if b.State() == gobreaker.StateOpen {
		return fmt.Errorf("%w: circuit open", ErrBridgeOpen)
	}
	return b.Ping(ctx)
}
