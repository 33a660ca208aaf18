package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/pkg/errors"

	"github.com/oggyb/shaadimantra/internal/cache"
)

// RedisBridge fans envelopes out to every instance through Redis pub/sub.
// Every instance, the publisher included, delivers what it receives, so a
// hub using it never delivers locally on its own.
type RedisBridge struct {
	cache   *cache.RedisCache
	channel string
	log     *slog.Logger

	ready     chan struct{}
	readyOnce sync.Once
}

var _ Bridge = (*RedisBridge)(nil)

func NewRedisBridge(rc *cache.RedisCache, channel string, log *slog.Logger) *RedisBridge {
	return &RedisBridge{
		cache:   rc,
		channel: channel,
		log:     log.With("component", "realtime.bridge", "channel", channel),
		ready:   make(chan struct{}),
	}
}

func (b *RedisBridge) Publish(ctx context.Context, env Envelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return errors.Wrap(b.cache.Publish(ctx, b.channel, raw), "redis publish")
}

// Ready is closed once the subscription is confirmed.
func (b *RedisBridge) Ready() <-chan struct{} { return b.ready }

// Listen delivers envelopes until ctx is cancelled.
func (b *RedisBridge) Listen(ctx context.Context, deliver func(Envelope)) error {
	sub := b.cache.Subscribe(ctx, b.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return errors.Wrap(err, "redis subscribe")
	}
	b.readyOnce.Do(func() { close(b.ready) })

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				b.log.Warn("bad envelope", "err", err)
				continue
			}
			deliver(env)
		}
	}
}
