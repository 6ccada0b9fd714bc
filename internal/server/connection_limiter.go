package server

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// ConnectionLimits guards the websocket endpoint with three independent
// checks: a per-instance cap, a per-IP concurrency cap, and a per-IP token
// bucket on new connection attempts.
type ConnectionLimits struct {
	max     int64
	current atomic.Int64

	perIPMax int
	ipMu     sync.Mutex
	perIP    map[string]int

	rateMu      sync.Mutex
	rateLimit   rate.Limit
	rateBurst   int
	buckets     map[string]*ipBucket
	nextCleanup time.Time
}

type ipBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// LimitReason names which check rejected a connection.
type LimitReason string

const (
	LimitReasonGlobal LimitReason = "instance_limit"
	LimitReasonPerIP  LimitReason = "per_ip_limit"
	LimitReasonRate   LimitReason = "rate_limit"

	bucketCleanupInterval = 5 * time.Minute
	bucketIdleEviction    = 10 * time.Minute
)

func NewConnectionLimits(globalMax int64, perIPMax int, connectionsPerSecond float64, burst int) *ConnectionLimits {
	return &ConnectionLimits{
		max:         globalMax,
		perIPMax:    perIPMax,
		perIP:       make(map[string]int),
		rateLimit:   rate.Limit(connectionsPerSecond),
		rateBurst:   burst,
		buckets:     make(map[string]*ipBucket),
		nextCleanup: time.Now().Add(bucketCleanupInterval),
	}
}

// Acquire claims one connection slot for the IP. On success the caller must
// Release exactly once.
func (l *ConnectionLimits) Acquire(ip string) (bool, LimitReason) {
	if !l.allowRate(ip) {
		return false, LimitReasonRate
	}

	for {
		current := l.current.Load()
		if current >= l.max {
			return false, LimitReasonGlobal
		}
		if l.current.CompareAndSwap(current, current+1) {
			break
		}
	}

	l.ipMu.Lock()
	if l.perIP[ip] >= l.perIPMax {
		l.ipMu.Unlock()
		l.current.Add(-1)
		return false, LimitReasonPerIP
	}
	l.perIP[ip]++
	l.ipMu.Unlock()

	return true, ""
}

// Release returns the slot claimed by a successful Acquire.
func (l *ConnectionLimits) Release(ip string) {
	l.ipMu.Lock()
	if count := l.perIP[ip]; count > 0 {
		if count == 1 {
			delete(l.perIP, ip)
		} else {
			l.perIP[ip] = count - 1
		}
	}
	l.ipMu.Unlock()
	l.current.Add(-1)
}

// Current returns the instance-wide connection count.
func (l *ConnectionLimits) Current() int64 {
	return l.current.Load()
}

func (l *ConnectionLimits) allowRate(ip string) bool {
	l.rateMu.Lock()
	defer l.rateMu.Unlock()

	now := time.Now()
	if now.After(l.nextCleanup) {
		cutoff := now.Add(-bucketIdleEviction)
		for key, b := range l.buckets {
			if b.lastSeen.Before(cutoff) {
				delete(l.buckets, key)
			}
		}
		l.nextCleanup = now.Add(bucketCleanupInterval)
	}

	b, ok := l.buckets[ip]
	if !ok {
		b = &ipBucket{limiter: rate.NewLimiter(l.rateLimit, l.rateBurst)}
		l.buckets[ip] = b
	}
	b.lastSeen = now
	return b.limiter.Allow()
}
