package idsession

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// State is the machine's authentication stage.
type State uint8

const (
	// StateUnauthenticated: no session; sign-in may start.
	StateUnauthenticated State = iota
	// StateAuthenticating: a sign-in attempt is in flight.
	StateAuthenticating
	// StateChallengePending: the provider interrupted sign-in with a
	// challenge that must be resolved before a session exists.
	StateChallengePending
	// StateAuthenticated: a session, profile and groups are held.
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateAuthenticating:
		return "authenticating"
	case StateChallengePending:
		return "challenge_pending"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unauthenticated"
	}
}

// ErrMachineClosed is returned by operations on a machine after Close.
var ErrMachineClosed = errors.New("machine closed")

// Machine is the session state machine. One instance exists per mounted
// consumer; instances observe each other through the shared [Broadcaster].
// Construct with [Builder.Build] and release with [Machine.Close].
type Machine struct {
	config   Config
	provider Provider
	storage  Storage
	keys     storageKeys
	bus      *Broadcaster
	audit    *auditDispatcher
	metrics  *Metrics

	mu         sync.RWMutex
	state      State
	stage      Stage
	session    *Session
	profile    ProfileAttributes
	groups     []string
	elevated   bool
	challenge  *Challenge
	enrollment enrollment

	// mutating serializes provider-mutating operations; overlap is
	// rejected, not queued, because several provider calls carry one-shot
	// side effects.
	mutating atomic.Bool
	closed   atomic.Bool

	subID     string
	subCh     <-chan struct{}
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Close unsubscribes from the invalidation channel, stops the listener and
// drains the audit buffer. A closed machine discards results of in-flight
// provider calls instead of mutating state nobody observes.
func (m *Machine) Close() {
	if m == nil {
		return
	}
	m.closeOnce.Do(func() {
		m.closed.Store(true)
		if m.bus != nil {
			m.bus.Unsubscribe(m.subID)
		}
		close(m.done)
		m.wg.Wait()
		m.audit.Close()
	})
}

// State returns the current authentication state.
func (m *Machine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Stage returns the persisted flow selector.
func (m *Machine) Stage() Stage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stage
}

// SetStage switches the presented flow. Stage transitions are always
// explicit, never inferred, and persist across reloads. Switching discards
// any pending challenge: challenges are transient and a reload or flow
// change requires a fresh sign-in.
func (m *Machine) SetStage(ctx context.Context, stage Stage) error {
	if m.closed.Load() {
		return ErrMachineClosed
	}
	if !stage.valid() {
		return errors.New("invalid stage")
	}

	m.mu.Lock()
	m.stage = stage
	m.challenge = nil
	if m.state == StateChallengePending || m.state == StateAuthenticating {
		m.state = StateUnauthenticated
	}
	m.mu.Unlock()

	_ = m.storage.Set(ctx, m.keys.stage(), string(stage))
	return nil
}

// CurrentSession returns the held session, or nil when unauthenticated.
func (m *Machine) CurrentSession() *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session
}

// Attributes returns a copy of the cached profile attributes, or nil.
func (m *Machine) Attributes() ProfileAttributes {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.profile.Clone()
}

// Groups returns a copy of the cached group membership.
func (m *Machine) Groups() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.groups) == 0 {
		return nil
	}
	out := make([]string, len(m.groups))
	copy(out, m.groups)
	return out
}

// IsSuperAdmin reports the elevated-role flag derived from the current
// group membership.
func (m *Machine) IsSuperAdmin() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.elevated
}

// Challenge returns a copy of the pending challenge, or nil.
func (m *Machine) Challenge() *Challenge {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.challenge.clone()
}

// AllowRegistration reports whether the hosting application offers the
// sign-up flow.
func (m *Machine) AllowRegistration() bool {
	return m.config.AllowRegistration
}

// AuditDropped reports how many audit events were discarded because the
// buffer was full.
func (m *Machine) AuditDropped() uint64 {
	return m.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of all counters.
func (m *Machine) MetricsSnapshot() MetricsSnapshot {
	return m.metrics.Snapshot()
}

// RefreshSession re-validates the held session against the provider. An
// expired or absent session is not an error: the machine transitions to
// Unauthenticated, cached profile/group data is discarded, and (nil, nil)
// is returned. Transport failures leave state untouched and propagate.
//
// Safe to call concurrently with read operations; calling it twice with no
// intervening mutation yields the same validity outcome.
func (m *Machine) RefreshSession(ctx context.Context) (*Session, error) {
	if m.closed.Load() {
		return nil, ErrMachineClosed
	}

	m.mu.RLock()
	current := m.session
	m.mu.RUnlock()

	if current == nil {
		current = m.loadPersistedSession(ctx)
	}
	if current == nil {
		m.becomeUnauthenticated(ctx)
		return nil, nil
	}

	fresh, err := m.provider.Refresh(ctx, current)
	if err != nil {
		return nil, err
	}
	if fresh == nil || !fresh.IsValid() {
		m.metrics.Inc(MetricRefreshUnauthenticated)
		m.emitAudit(auditEventSessionExpired, true, current.Username(), nil, nil)
		m.becomeUnauthenticated(ctx)
		return nil, nil
	}

	m.applySession(ctx, fresh)
	m.metrics.Inc(MetricRefreshSuccess)
	m.emitAudit(auditEventSessionRefreshed, true, fresh.Username(), nil, nil)
	return fresh, nil
}

// CheckSession re-validates the session and, when one is held, re-fetches
// profile, groups and second-factor status. Invoked on construction and on
// every invalidation signal; applications may also call it directly.
func (m *Machine) CheckSession(ctx context.Context) error {
	if m.closed.Load() {
		return ErrMachineClosed
	}
	sess, err := m.RefreshSession(ctx)
	if err != nil {
		return err
	}
	if sess == nil {
		return nil
	}
	return m.refetch(ctx, sess)
}

// ensureSession is the gate for authenticated-only operations: refresh
// first, and fail with KindNotAuthenticated instead of attempting the
// provider call without a valid session.
func (m *Machine) ensureSession(ctx context.Context, op string) (*Session, error) {
	sess, err := m.RefreshSession(ctx)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, E(KindNotAuthenticated, op, nil)
	}
	return sess, nil
}

func (m *Machine) beginMutation(op string) error {
	if m.closed.Load() {
		return ErrMachineClosed
	}
	if !m.mutating.CompareAndSwap(false, true) {
		m.metrics.Inc(MetricOperationRejected)
		return E(KindOperationInProgress, op, nil)
	}
	return nil
}

func (m *Machine) endMutation() {
	m.mutating.Store(false)
}

// invalidate broadcasts the session-invalidated signal. Every subscribed
// machine, this one included, reacts by re-fetching.
func (m *Machine) invalidate() {
	if m.bus != nil {
		m.bus.Publish()
	}
}

func (m *Machine) listen() {
	defer m.wg.Done()

	for {
		select {
		case <-m.done:
			return
		case <-m.subCh:
			if m.closed.Load() {
				return
			}
			m.metrics.Inc(MetricInvalidationReceived)
			_ = m.CheckSession(context.Background())
		}
	}
}

// restore loads persisted stage and session on construction. The session
// key is authoritative: without one, any stale cached profile or group data
// is discarded. A pending challenge is never restored.
func (m *Machine) restore(ctx context.Context) {
	if raw, ok, err := m.storage.Get(ctx, m.keys.stage()); err == nil && ok && Stage(raw).valid() {
		m.mu.Lock()
		m.stage = Stage(raw)
		m.mu.Unlock()
	}
	_ = m.CheckSession(ctx)
}

func (m *Machine) loadPersistedSession(ctx context.Context) *Session {
	raw, ok, err := m.storage.Get(ctx, m.keys.session())
	if err != nil || !ok {
		return nil
	}
	sess, err := decodeSession(raw)
	if err != nil {
		_ = m.storage.Delete(ctx, m.keys.session())
		return nil
	}
	return sess
}

// applySession installs a validated session. Persists the token bundle;
// persistence is best-effort, each key written independently.
func (m *Machine) applySession(ctx context.Context, sess *Session) {
	if m.closed.Load() {
		return
	}
	m.mu.Lock()
	m.state = StateAuthenticated
	m.session = sess
	m.challenge = nil
	m.mu.Unlock()

	if encoded, err := encodeSession(sess); err == nil {
		_ = m.storage.Set(ctx, m.keys.session(), encoded)
	}
}

// becomeUnauthenticated clears the session and everything derived from it.
// A pending challenge survives: it belongs to the in-flight sign-in, not to
// the session being dropped.
func (m *Machine) becomeUnauthenticated(ctx context.Context) {
	if m.closed.Load() {
		return
	}
	m.mu.Lock()
	m.session = nil
	m.profile = nil
	m.groups = nil
	m.elevated = false
	if m.challenge == nil {
		m.state = StateUnauthenticated
	} else {
		m.state = StateChallengePending
	}
	m.mu.Unlock()

	m.clearPersisted(ctx)
}

func (m *Machine) clearPersisted(ctx context.Context) {
	_ = m.storage.Delete(ctx, m.keys.session())
	_ = m.storage.Delete(ctx, m.keys.profile())
	_ = m.storage.Delete(ctx, m.keys.groups())
	_ = m.storage.Delete(ctx, m.keys.elevated())
}

// refetch pulls profile and second-factor status concurrently (both are
// read-only against the same session), derives groups and the elevated
// flag, and writes the caches.
func (m *Machine) refetch(ctx context.Context, sess *Session) error {
	var (
		profile       ProfileAttributes
		factorEnabled bool
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := m.provider.FetchProfile(gctx, sess)
		if err != nil {
			return err
		}
		profile = p
		return nil
	})
	g.Go(func() error {
		enabled, err := m.provider.SecondFactorStatus(gctx, sess)
		if err != nil {
			return err
		}
		factorEnabled = enabled
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}
	if m.closed.Load() {
		return ErrMachineClosed
	}

	groups := sess.Groups()
	elevated := isElevatedIn(groups, m.config.Elevation.Groups)

	m.mu.Lock()
	m.profile = profile
	m.groups = groups
	m.elevated = elevated
	m.enrollment.syncStatus(factorEnabled)
	m.mu.Unlock()

	m.persistCaches(ctx, profile, groups, elevated)
	return nil
}

func (m *Machine) persistCaches(ctx context.Context, profile ProfileAttributes, groups []string, elevated bool) {
	if data, err := json.Marshal(profile); err == nil {
		_ = m.storage.Set(ctx, m.keys.profile(), string(data))
	}
	if data, err := json.Marshal(groups); err == nil {
		_ = m.storage.Set(ctx, m.keys.groups(), string(data))
	}
	_ = m.storage.Set(ctx, m.keys.elevated(), strconv.FormatBool(elevated))
}

func (m *Machine) emitAudit(eventType string, success bool, identity string, cause error, meta func() map[string]string) {
	if m.audit == nil {
		return
	}
	event := AuditEvent{
		Timestamp: time.Now(),
		EventType: eventType,
		Identity:  identity,
		Stage:     string(m.Stage()),
		Success:   success,
	}
	if cause != nil {
		event.Error = cause.Error()
	}
	if meta != nil {
		event.Metadata = meta()
	}
	m.audit.Emit(context.Background(), event)
}
