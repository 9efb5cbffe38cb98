package idsession

import "sync/atomic"

// MetricID identifies one counter in the in-process metrics system.
type MetricID uint8

const (
	// MetricSignInSuccess counts completed sign-ins.
	MetricSignInSuccess MetricID = iota
	// MetricSignInFailure counts failed sign-ins (non-control errors).
	MetricSignInFailure
	// MetricChallengeIssued counts sign-ins interrupted by a challenge.
	MetricChallengeIssued
	// MetricSignOut counts sign-outs.
	MetricSignOut
	// MetricRefreshSuccess counts refreshes that yielded a valid session.
	MetricRefreshSuccess
	// MetricRefreshUnauthenticated counts refreshes that found no session.
	MetricRefreshUnauthenticated
	// MetricRegistration counts accepted registrations.
	MetricRegistration
	// MetricResetConfirmed counts completed credential resets.
	MetricResetConfirmed
	// MetricCredentialChallengeCompleted counts resolved forced resets.
	MetricCredentialChallengeCompleted
	// MetricAttributesUpdated counts profile mutations.
	MetricAttributesUpdated
	// MetricEnrollmentStarted counts second-factor enrollments begun.
	MetricEnrollmentStarted
	// MetricEnrollmentConfirmed counts second-factor enrollments completed.
	MetricEnrollmentConfirmed
	// MetricEnrollmentFailed counts rejected enrollment codes.
	MetricEnrollmentFailed
	// MetricOperationRejected counts mutations rejected for overlap.
	MetricOperationRejected
	// MetricInvalidationReceived counts invalidation signals handled.
	MetricInvalidationReceived

	metricIDCount
)

// Metrics holds atomic counters. All methods are no-ops on a disabled or
// nil instance, so call sites never branch.
type Metrics struct {
	enabled  bool
	counters [metricIDCount]atomic.Uint64
}

// NewMetrics creates a Metrics instance. When cfg.Enabled is false every
// operation is a no-op.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{enabled: cfg.Enabled}
}

// Inc increments one counter.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	m.counters[id].Add(1)
}

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot struct {
	Counters map[MetricID]uint64
}

// Snapshot deep-copies the current counter values.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{Counters: make(map[MetricID]uint64, int(metricIDCount))}
	if m == nil || !m.enabled {
		return snap
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		snap.Counters[id] = m.counters[id].Load()
	}
	return snap
}
