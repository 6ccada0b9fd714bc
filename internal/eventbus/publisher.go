package eventbus

import (
	"context"

	"github.com/Hassanturkie1994-hash/roast-live-app-fauwkm-ymbhwd-sub010/internal/domain"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Publisher implements domain.EventPublisher on top of a domain.EventBus,
// stamping envelopes with the injected clock.
type Publisher struct {
	bus   domain.EventBus
	clock clockwork.Clock
}

func NewPublisher(bus domain.EventBus, clock clockwork.Clock) *Publisher {
	return &Publisher{bus: bus, clock: clock}
}

func (p *Publisher) PublishViewerCount(ctx context.Context, sessionID uuid.UUID, count int) error {
	return p.bus.Publish(ctx, domain.SessionChannel(sessionID), domain.Event{
		Kind:      domain.EventViewerCount,
		SessionID: sessionID,
		At:        p.clock.Now(),
		Count:     count,
	})
}

func (p *Publisher) PublishComboUpdate(ctx context.Context, sessionID uuid.UUID, combo domain.ComboPayload) error {
	return p.bus.Publish(ctx, domain.SessionChannel(sessionID), domain.Event{
		Kind:      domain.EventComboUpdate,
		SessionID: sessionID,
		At:        p.clock.Now(),
		Combo:     &combo,
	})
}

func (p *Publisher) PublishRankUp(ctx context.Context, seasonID string, rank domain.RankPayload) error {
	return p.bus.Publish(ctx, domain.SeasonChannel(seasonID), domain.Event{
		Kind:     domain.EventRankUp,
		SeasonID: seasonID,
		At:       p.clock.Now(),
		Rank:     &rank,
	})
}

func (p *Publisher) PublishTierUp(ctx context.Context, seasonID string, rank domain.RankPayload) error {
	return p.bus.Publish(ctx, domain.SeasonChannel(seasonID), domain.Event{
		Kind:     domain.EventTierUp,
		SeasonID: seasonID,
		At:       p.clock.Now(),
		Rank:     &rank,
	})
}

func (p *Publisher) PublishScoreCorrected(ctx context.Context, seasonID, creatorID string) error {
	return p.bus.Publish(ctx, domain.SeasonChannel(seasonID), domain.Event{
		Kind:     domain.EventScoreCorrected,
		SeasonID: seasonID,
		At:       p.clock.Now(),
		Rank:     &domain.RankPayload{CreatorID: creatorID},
	})
}
