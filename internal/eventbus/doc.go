// Package eventbus provides the realtime event transport implementations.
//
// RedisBus carries typed event envelopes over Redis Pub/Sub, one channel per
// session plus one per season. MemoryBus is a fully in-process implementation
// with the same at-least-once, per-channel-ordered semantics, used in tests
// and single-node deployments. Both drop events for subscribers that cannot
// keep up rather than blocking publishers.
package eventbus
