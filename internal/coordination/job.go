package coordination

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
)

// LeaderJob runs a function on a fixed interval, but only while this instance
// holds the election lease. The lease is acquired opportunistically on every
// tick and renewed before running, so leadership moves over within one TTL
// after the current leader disappears.
type LeaderJob struct {
	name     string
	election *Election
	interval time.Duration
	clock    clockwork.Clock
	fn       func(ctx context.Context)

	leading bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewLeaderJob(name string, election *Election, interval time.Duration, clock clockwork.Clock, fn func(ctx context.Context)) *LeaderJob {
	return &LeaderJob{
		name:     name,
		election: election,
		interval: interval,
		clock:    clock,
		fn:       fn,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Run blocks until Stop is called or ctx is cancelled.
func (j *LeaderJob) Run(ctx context.Context) {
	defer close(j.doneCh)

	ticker := j.clock.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			j.tick(ctx)
		case <-j.stopCh:
			j.resign(ctx)
			return
		case <-ctx.Done():
			j.resign(ctx)
			return
		}
	}
}

// Stop signals the loop to resign and waits for it to exit.
func (j *LeaderJob) Stop() {
	select {
	case <-j.stopCh:
	default:
		close(j.stopCh)
	}
	<-j.doneCh
}

func (j *LeaderJob) tick(ctx context.Context) {
	if j.leading {
		if err := j.election.Renew(ctx); err != nil {
			if errors.Is(err, ErrNotLeader) {
				slog.Info("Lost leadership", "job", j.name)
			} else {
				slog.Warn("Leader lease renewal failed", "job", j.name, "error", err)
			}
			j.leading = false
			return
		}
		j.fn(ctx)
		return
	}

	ok, err := j.election.TryAcquire(ctx)
	if err != nil {
		slog.Warn("Leader election attempt failed", "job", j.name, "error", err)
		return
	}
	if !ok {
		return
	}
	slog.Info("Acquired leadership", "job", j.name)
	j.leading = true
	j.fn(ctx)
}

func (j *LeaderJob) resign(ctx context.Context) {
	if !j.leading {
		return
	}
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := j.election.Release(releaseCtx); err != nil {
		slog.Warn("Failed to release leader lease", "job", j.name, "error", err)
	}
	j.leading = false
}
