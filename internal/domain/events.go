package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventKind identifies the payload carried by an Event envelope.
type EventKind string

const (
	// Presence events (transport membership).
	EventPresenceJoin  EventKind = "presence_join"
	EventPresenceLeave EventKind = "presence_leave"
	EventPresenceSync  EventKind = "presence_sync"

	// Broadcast events (app-defined payloads).
	EventGiftSent       EventKind = "gift_sent"
	EventBattleResult   EventKind = "battle_result"
	EventViewerCount    EventKind = "viewer_count"
	EventComboUpdate    EventKind = "combo_update"
	EventRankUp         EventKind = "rank_up"
	EventTierUp         EventKind = "tier_up"
	EventScoreCorrected EventKind = "score_corrected"

	// Change notifications (row-level mutations).
	EventSessionChanged EventKind = "session_changed"
)

// Event is the typed envelope delivered by the event bus. Exactly the payload
// fields matching Kind are set; delivery is at-least-once, ordering is
// best-effort within a channel only.
type Event struct {
	Kind      EventKind `json:"kind"`
	SessionID uuid.UUID `json:"session_id,omitempty"`
	SeasonID  string    `json:"season_id,omitempty"`
	At        time.Time `json:"at"`

	ViewerID string         `json:"viewer_id,omitempty"` // presence_join / presence_leave
	Members  []string       `json:"members,omitempty"`   // presence_sync
	Count    int            `json:"count,omitempty"`     // viewer_count
	Gift     *GiftPayload   `json:"gift,omitempty"`
	Battle   *BattlePayload `json:"battle,omitempty"`
	Combo    *ComboPayload  `json:"combo,omitempty"`
	Rank     *RankPayload   `json:"rank,omitempty"`
	Change   *ChangePayload `json:"change,omitempty"`
}

// GiftPayload describes one gift sent to a creator during a session.
type GiftPayload struct {
	SenderID  string `json:"sender_id"`
	CreatorID string `json:"creator_id"`
	GiftID    string `json:"gift_id"`
	Amount    int64  `json:"amount"`
}

// BattlePayload describes the outcome of one creator battle.
type BattlePayload struct {
	WinnerID string `json:"winner_id"`
	LoserID  string `json:"loser_id"`
}

// ComboPayload is the advisory combo state for engagement display.
type ComboPayload struct {
	ComboCount     int     `json:"combo_count"`
	HypeMultiplier float64 `json:"hype_multiplier"`
}

// RankPayload describes a rank or tier change for one creator.
type RankPayload struct {
	CreatorID string `json:"creator_id"`
	OldRank   int    `json:"old_rank,omitempty"`
	NewRank   int    `json:"new_rank,omitempty"`
	OldTier   string `json:"old_tier,omitempty"`
	NewTier   string `json:"new_tier,omitempty"`
}

// ChangePayload describes a row-level mutation notification.
type ChangePayload struct {
	Table string `json:"table"`
	Op    string `json:"op"`
}

// SessionChannel is the bus channel carrying all events for one session.
func SessionChannel(sessionID uuid.UUID) string {
	return fmt.Sprintf("session:%s:events", sessionID)
}

// SeasonChannel is the bus channel carrying score events for one season.
func SeasonChannel(seasonID string) string {
	return fmt.Sprintf("season:%s:events", seasonID)
}
