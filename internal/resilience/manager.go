// Package resilience keeps a viewer's realtime connection alive across flaky
// networks with a bounded, deterministic reconnect loop.
package resilience

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Hassanturkie1994-hash/roast-live-app-fauwkm-ymbhwd-sub010/internal/domain"
	"github.com/Hassanturkie1994-hash/roast-live-app-fauwkm-ymbhwd-sub010/internal/metrics"
	"github.com/jonboulle/clockwork"
)

// Status is the client-local connection state.
type Status string

const (
	StatusConnected    Status = "connected"
	StatusDegraded     Status = "degraded"
	StatusReconnecting Status = "reconnecting"
	StatusDisconnected Status = "disconnected"
)

// Quality is the result of a successful health sample.
type Quality int

const (
	QualityGood Quality = iota
	QualityPoor
)

// HealthProbe samples the underlying transport/network. Errors are absorbed
// by the manager and treated as unhealthy samples, never surfaced.
type HealthProbe interface {
	Sample(ctx context.Context) (Quality, error)
}

// Config tunes a Manager. Zero values fall back to defaults.
type Config struct {
	SampleInterval time.Duration // default 5s
	RetryInterval  time.Duration // default 5s
	MaxAttempts    int           // default 5

	OnReconnectSuccess func()
	OnReconnectFailed  func()
}

const (
	defaultSampleInterval = 5 * time.Second
	defaultRetryInterval  = 5 * time.Second
	defaultMaxAttempts    = 5
)

// Manager is the per-viewer connection watchdog. At most one reconnect loop
// is active per instance; StartReconnect while reconnecting is a no-op and
// StopReconnect cancels the pending attempt deterministically.
type Manager struct {
	probe          HealthProbe
	clock          clockwork.Clock
	sampleInterval time.Duration
	retryInterval  time.Duration
	maxAttempts    int
	onSuccess      func()
	onFailed       func()

	mu               sync.Mutex
	status           Status
	attempt          int
	lastTransitionAt time.Time
	lastErr          error
	reconnecting     bool
	gen              int
	cycleStop        chan struct{}
}

func NewManager(probe HealthProbe, clock clockwork.Clock, cfg Config) *Manager {
	if cfg.SampleInterval <= 0 {
		cfg.SampleInterval = defaultSampleInterval
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = defaultRetryInterval
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	return &Manager{
		probe:          probe,
		clock:          clock,
		sampleInterval: cfg.SampleInterval,
		retryInterval:  cfg.RetryInterval,
		maxAttempts:    cfg.MaxAttempts,
		onSuccess:      cfg.OnReconnectSuccess,
		onFailed:       cfg.OnReconnectFailed,
		status:         StatusConnected,
	}
}

// Status returns the current connection status.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Attempt returns the current reconnect attempt counter.
func (m *Manager) Attempt() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempt
}

// LastTransitionAt returns when the status last changed.
func (m *Manager) LastTransitionAt() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastTransitionAt
}

// Err returns ErrMaxReconnectAttempts once a reconnect cycle has exhausted its
// attempt budget, nil otherwise. Cleared when a new cycle starts or succeeds.
func (m *Manager) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Run samples health on a fixed interval until ctx is cancelled. Sampling is
// paused while a reconnect loop is active.
func (m *Manager) Run(ctx context.Context) {
	ticker := m.clock.NewTicker(m.sampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			m.sample(ctx)
		}
	}
}

func (m *Manager) sample(ctx context.Context) {
	m.mu.Lock()
	if m.reconnecting {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	quality, err := m.probe.Sample(ctx)
	if err != nil {
		// Treated as a data point, not an exception.
		slog.Debug("Health sample failed, starting reconnect", "error", err)
		m.StartReconnect(ctx)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reconnecting {
		return
	}
	if quality == QualityGood {
		m.setStatus(StatusConnected)
	} else {
		m.setStatus(StatusDegraded)
	}
}

// StartReconnect begins the bounded reconnect loop. Idempotent: a no-op while
// a loop is already active.
func (m *Manager) StartReconnect(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reconnecting {
		return
	}
	m.reconnecting = true
	m.attempt = 0
	m.lastErr = nil
	m.gen++
	m.cycleStop = make(chan struct{})
	m.setStatus(StatusReconnecting)
	go m.reconnectLoop(ctx, m.gen, m.cycleStop)
}

// StopReconnect cancels any pending reconnect timer and resets the attempt
// counter without changing status; callers decide the resulting status. After
// it returns, no further attempt for the stopped cycle fires.
func (m *Manager) StopReconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cycleStop != nil {
		close(m.cycleStop)
		m.cycleStop = nil
	}
	m.reconnecting = false
	m.attempt = 0
	m.gen++
}

func (m *Manager) reconnectLoop(ctx context.Context, gen int, stop chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-m.clock.After(m.retryInterval):
		}

		m.mu.Lock()
		if !m.reconnecting || m.gen != gen {
			m.mu.Unlock()
			return
		}
		m.attempt++
		attempt := m.attempt
		m.mu.Unlock()

		quality, err := m.probe.Sample(ctx)

		m.mu.Lock()
		if !m.reconnecting || m.gen != gen {
			// Cycle was stopped while sampling; discard the result.
			m.mu.Unlock()
			return
		}

		if err == nil {
			m.reconnecting = false
			m.attempt = 0
			m.lastErr = nil
			if quality == QualityGood {
				m.setStatus(StatusConnected)
			} else {
				m.setStatus(StatusDegraded)
			}
			m.mu.Unlock()
			metrics.ReconnectAttemptsTotal.WithLabelValues("success").Inc()
			slog.Info("Reconnected", "attempt", attempt)
			if m.onSuccess != nil {
				m.onSuccess()
			}
			return
		}

		metrics.ReconnectAttemptsTotal.WithLabelValues("failure").Inc()
		if attempt >= m.maxAttempts {
			m.reconnecting = false
			m.lastErr = domain.ErrMaxReconnectAttempts
			m.setStatus(StatusDisconnected)
			m.mu.Unlock()
			slog.Warn("Reconnect attempts exhausted", "attempts", attempt)
			if m.onFailed != nil {
				m.onFailed()
			}
			return
		}
		m.mu.Unlock()
	}
}

func (m *Manager) setStatus(s Status) {
	if m.status == s {
		return
	}
	m.status = s
	m.lastTransitionAt = m.clock.Now()
	metrics.ConnectionState.Set(stateGaugeValue(s))
}

func stateGaugeValue(s Status) float64 {
	switch s {
	case StatusConnected:
		return 0
	case StatusDegraded:
		return 1
	case StatusReconnecting:
		return 2
	default:
		return 3
	}
}
