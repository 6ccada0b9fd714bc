package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Hassanturkie1994-hash/roast-live-app-fauwkm-ymbhwd-sub010/internal/domain"
	"github.com/Hassanturkie1994-hash/roast-live-app-fauwkm-ymbhwd-sub010/internal/metrics"
	goredis "github.com/redis/go-redis/v9"
)

// RedisBus implements domain.EventBus over Redis Pub/Sub for multi-instance
// deployments. Events are JSON envelopes on one channel per session/season.
type RedisBus struct {
	rdb *goredis.Client
}

func NewRedisBus(rdb *goredis.Client) *RedisBus {
	return &RedisBus{rdb: rdb}
}

func (b *RedisBus) Publish(ctx context.Context, channel string, ev domain.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := b.rdb.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	metrics.BusEventsPublished.WithLabelValues(string(ev.Kind)).Inc()
	return nil
}

func (b *RedisBus) Subscribe(ctx context.Context, channel string) (domain.Subscription, error) {
	sub := b.rdb.Subscribe(ctx, channel)

	// Force the subscription to be established before returning so callers
	// never miss events published right after Subscribe.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	subCtx, cancel := context.WithCancel(context.Background())
	rs := &redisSubscription{
		sub:    sub,
		ch:     make(chan domain.Event, subscriberBuffer),
		cancel: cancel,
	}

	go rs.pump(subCtx, channel)
	return rs, nil
}

type redisSubscription struct {
	sub    *goredis.PubSub
	ch     chan domain.Event
	cancel context.CancelFunc
	once   sync.Once
}

func (s *redisSubscription) pump(ctx context.Context, channel string) {
	defer close(s.ch)
	msgCh := s.sub.Channel()
	for {
		select {
		case msg, ok := <-msgCh:
			if !ok {
				return
			}
			var ev domain.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				slog.Warn("Failed to unmarshal bus event", "channel", channel, "error", err)
				continue
			}
			metrics.BusEventsReceived.WithLabelValues(string(ev.Kind)).Inc()
			select {
			case s.ch <- ev:
			default:
				metrics.BusEventsDropped.Inc()
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *redisSubscription) Events() <-chan domain.Event {
	return s.ch
}

func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() {
		s.cancel()
		err = s.sub.Close()
	})
	return err
}
