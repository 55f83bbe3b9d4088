package event

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.pilab.hu/authcore/domain"
	"go.pilab.hu/authcore/log"
)

// DefaultChannel is the Redis channel used when none is configured.
const DefaultChannel = "authcore:resources"

// RedisBus publishes commit events to a Redis channel and fans the events it
// receives out to local subscribers. A replica sees its own events through
// the subscription, so Publish does not deliver locally.
type RedisBus struct {
	client  redis.UniversalClient
	channel string
	local   *Bus
	logger  log.Logger
	ready   chan struct{}
}

var (
	_ domain.EventPublisher  = (*RedisBus)(nil)
	_ domain.EventSubscriber = (*RedisBus)(nil)
)

func NewRedisBus(client redis.UniversalClient, channel string, logger log.Logger) *RedisBus {
	if channel == "" {
		channel = DefaultChannel
	}

	if logger == nil {
		logger = log.Nop()
	}

	return &RedisBus{
		client:  client,
		channel: channel,
		local:   NewBus(logger),
		logger:  logger,
		ready:   make(chan struct{}),
	}
}

// Publish sends evt to the channel.
func (b *RedisBus) Publish(ctx context.Context, evt domain.ResourceChanged) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal resource change: %w", err)
	}

	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish resource change: %w", err)
	}

	return nil
}

// Subscribe registers a local handler for events received from the channel.
func (b *RedisBus) Subscribe(handler domain.EventHandler) func() {
	return b.local.Subscribe(handler)
}

// Ready is closed once Run has an active subscription.
func (b *RedisBus) Ready() <-chan struct{} {
	return b.ready
}

// Run subscribes to the channel and dispatches messages until ctx is done.
// It must be called once.
func (b *RedisBus) Run(ctx context.Context) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	// Wait for the subscription to be confirmed.
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", b.channel, err)
	}
	close(b.ready)

	b.logger.Info(ctx, "listening for resource changes", log.Fields{"channel": b.channel})

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}

			var evt domain.ResourceChanged
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				b.logger.Warn(ctx, "dropping malformed resource change", log.Fields{"channel": msg.Channel})
				continue
			}

			_ = b.local.Publish(ctx, evt)
		}
	}
}
