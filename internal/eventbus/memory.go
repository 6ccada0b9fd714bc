package eventbus

import (
	"context"
	"sync"

	"github.com/Hassanturkie1994-hash/roast-live-app-fauwkm-ymbhwd-sub010/internal/domain"
	"github.com/Hassanturkie1994-hash/roast-live-app-fauwkm-ymbhwd-sub010/internal/metrics"
)

const subscriberBuffer = 64

// MemoryBus is an in-process domain.EventBus. Publish never blocks: slow
// subscribers lose events, matching the transport's at-least-once (not
// exactly-once) contract.
type MemoryBus struct {
	mu       sync.RWMutex
	channels map[string]map[*memorySubscription]struct{}
	closed   bool
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		channels: make(map[string]map[*memorySubscription]struct{}),
	}
}

func (b *MemoryBus) Publish(_ context.Context, channel string, ev domain.Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	metrics.BusEventsPublished.WithLabelValues(string(ev.Kind)).Inc()
	for sub := range b.channels[channel] {
		select {
		case sub.ch <- ev:
		default:
			metrics.BusEventsDropped.Inc()
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(_ context.Context, channel string) (domain.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &memorySubscription{
		bus:     b,
		channel: channel,
		ch:      make(chan domain.Event, subscriberBuffer),
	}
	if b.channels[channel] == nil {
		b.channels[channel] = make(map[*memorySubscription]struct{})
	}
	b.channels[channel][sub] = struct{}{}
	return sub, nil
}

// Close shuts down the bus and closes all subscriptions.
func (b *MemoryBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for channel, subs := range b.channels {
		for sub := range subs {
			close(sub.ch)
			sub.detached = true
		}
		delete(b.channels, channel)
	}
}

type memorySubscription struct {
	bus      *MemoryBus
	channel  string
	ch       chan domain.Event
	once     sync.Once
	detached bool
}

func (s *memorySubscription) Events() <-chan domain.Event {
	return s.ch
}

func (s *memorySubscription) Close() error {
	s.once.Do(func() {
		s.bus.mu.Lock()
		defer s.bus.mu.Unlock()
		if s.detached {
			return
		}
		if subs := s.bus.channels[s.channel]; subs != nil {
			delete(subs, s)
			if len(subs) == 0 {
				delete(s.bus.channels, s.channel)
			}
		}
		close(s.ch)
		s.detached = true
	})
	return nil
}
