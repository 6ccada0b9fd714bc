package domain

import (
	"context"

	"github.com/google/uuid"
)

// Subscription is one live subscription to a bus channel. Close is idempotent
// and releases the underlying transport resources; after Close returns, the
// Events channel is closed.
type Subscription interface {
	Events() <-chan Event
	Close() error
}

// EventBus abstracts the realtime transport. Delivery is at-least-once and
// ordered best-effort within a channel; consumers must tolerate duplicates.
type EventBus interface {
	Publish(ctx context.Context, channel string, ev Event) error
	Subscribe(ctx context.Context, channel string) (Subscription, error)
}

// EventPublisher publishes domain events to infrastructure. Narrow interface
// so engines never see the raw bus.
type EventPublisher interface {
	PublishViewerCount(ctx context.Context, sessionID uuid.UUID, count int) error
	PublishComboUpdate(ctx context.Context, sessionID uuid.UUID, combo ComboPayload) error
	PublishRankUp(ctx context.Context, seasonID string, rank RankPayload) error
	PublishTierUp(ctx context.Context, seasonID string, rank RankPayload) error
	PublishScoreCorrected(ctx context.Context, seasonID, creatorID string) error
}
