// Package momentum computes gift combo streaks and hype multipliers.
package momentum

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/Hassanturkie1994-hash/roast-live-app-fauwkm-ymbhwd-sub010/internal/domain"
	"github.com/Hassanturkie1994-hash/roast-live-app-fauwkm-ymbhwd-sub010/internal/metrics"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

const (
	// DefaultComboWindow is the max gap between gifts that extends a combo.
	DefaultComboWindow = 5 * time.Second

	multiplierStep = 0.1
	multiplierCap  = 3.0
)

var errStopped = errors.New("momentum engine stopped")

type momentumCmd interface{ momentumCmd() }

type giftCmd struct {
	replyCh chan domain.ComboPayload
}

func (giftCmd) momentumCmd() {}

type clearCmd struct{}

func (clearCmd) momentumCmd() {}

// comboWindow is one session's combo state. Owned exclusively by that
// session's worker goroutine; never touched from outside it. done closes when
// the worker exits; cmdCh itself is never closed, so a send can never race
// teardown.
type comboWindow struct {
	cmdCh      chan momentumCmd
	done       chan struct{}
	comboCount int
	lastGiftAt time.Time
	multiplier float64
}

// Engine serializes gift processing per session while letting independent
// sessions process fully in parallel: one worker goroutine per active
// session, fed over a channel in arrival order. The output is advisory
// engagement state, never a source of truth for monetary amounts.
type Engine struct {
	publisher   domain.EventPublisher
	clock       clockwork.Clock
	comboWindow time.Duration

	mu      sync.Mutex
	windows map[uuid.UUID]*comboWindow
	stopped bool
}

func NewEngine(publisher domain.EventPublisher, clock clockwork.Clock, window time.Duration) *Engine {
	if window <= 0 {
		window = DefaultComboWindow
	}
	return &Engine{
		publisher:   publisher,
		clock:       clock,
		comboWindow: window,
		windows:     make(map[uuid.UUID]*comboWindow),
	}
}

// ApplyGift applies one gift event to the session's combo window and returns
// the resulting combo state. Calls for the same session are applied strictly
// in arrival order; the arrival timestamp is taken when the worker processes
// the command.
func (e *Engine) ApplyGift(ctx context.Context, sessionID uuid.UUID) (domain.ComboPayload, error) {
	for {
		w, err := e.window(sessionID)
		if err != nil {
			return domain.ComboPayload{}, err
		}

		cmd := giftCmd{replyCh: make(chan domain.ComboPayload, 1)}
		select {
		case w.cmdCh <- cmd:
		case <-w.done:
			// The session was cleared between lookup and send; resolve a
			// fresh window and start a new combo.
			continue
		case <-ctx.Done():
			return domain.ComboPayload{}, ctx.Err()
		}

		select {
		case payload := <-cmd.replyCh:
			return payload, nil
		case <-w.done:
			// The worker exited; it replied first if it saw the gift.
			select {
			case payload := <-cmd.replyCh:
				return payload, nil
			default:
				continue
			}
		case <-ctx.Done():
			return domain.ComboPayload{}, ctx.Err()
		}
	}
}

// Current returns the session's combo state without applying a gift, or the
// zero payload when the session has no window yet.
func (e *Engine) Current(sessionID uuid.UUID) domain.ComboPayload {
	e.mu.Lock()
	defer e.mu.Unlock()
	w, ok := e.windows[sessionID]
	if !ok {
		return domain.ComboPayload{}
	}
	return domain.ComboPayload{ComboCount: w.comboCount, HypeMultiplier: w.multiplier}
}

// ClearSession tears down the session's worker and combo state. Teardown is
// delivered as a command behind any queued gifts, so in-flight sends can never
// hit a closed channel.
func (e *Engine) ClearSession(sessionID uuid.UUID) {
	e.mu.Lock()
	w, ok := e.windows[sessionID]
	if ok {
		delete(e.windows, sessionID)
	}
	e.mu.Unlock()
	if !ok {
		return
	}
	select {
	case w.cmdCh <- clearCmd{}:
	case <-w.done:
	}
}

// Stop tears down all workers. ApplyGift fails afterwards.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	windows := make([]*comboWindow, 0, len(e.windows))
	for sessionID, w := range e.windows {
		windows = append(windows, w)
		delete(e.windows, sessionID)
	}
	e.mu.Unlock()

	for _, w := range windows {
		select {
		case w.cmdCh <- clearCmd{}:
		case <-w.done:
		}
	}
}

func (e *Engine) window(sessionID uuid.UUID) (*comboWindow, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return nil, errStopped
	}
	w, ok := e.windows[sessionID]
	if !ok {
		w = &comboWindow{cmdCh: make(chan momentumCmd, 64), done: make(chan struct{}), multiplier: 1.0}
		e.windows[sessionID] = w
		go e.runWorker(sessionID, w)
	}
	return w, nil
}

func (e *Engine) runWorker(sessionID uuid.UUID, w *comboWindow) {
	defer close(w.done)
	ctx := context.Background()
	for raw := range w.cmdCh {
		cmd, ok := raw.(giftCmd)
		if !ok {
			return
		}

		now := e.clock.Now()
		gap := now.Sub(w.lastGiftAt)

		e.mu.Lock()
		if !w.lastGiftAt.IsZero() && gap < e.comboWindow {
			w.comboCount++
		} else {
			if w.comboCount > 1 {
				metrics.ComboResets.Inc()
			}
			w.comboCount = 1
		}
		w.lastGiftAt = now
		w.multiplier = math.Min(1.0+multiplierStep*float64(w.comboCount), multiplierCap)
		payload := domain.ComboPayload{ComboCount: w.comboCount, HypeMultiplier: w.multiplier}
		e.mu.Unlock()

		metrics.GiftEventsTotal.Inc()
		metrics.HypeMultiplier.Observe(payload.HypeMultiplier)

		if err := e.publisher.PublishComboUpdate(ctx, sessionID, payload); err != nil {
			slog.Error("Failed to publish combo update", "session_id", sessionID.String(), "error", err)
		}

		cmd.replyCh <- payload
	}
}
