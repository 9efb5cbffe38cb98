package idsession

import "context"

// SignIn runs the challenge-response sign-in. otp may be empty; when the
// account requires a second factor the attempt parks in ChallengePending
// and the caller resubmits SignIn with otp set. The otp argument is honored
// the same way regardless of the configured storage backend.
//
// The three provider control signals (second factor, forced new credential,
// unconfirmed account) do not fail the flow: SignIn returns (nil, nil) and
// the machine enters ChallengePending; inspect [Machine.Challenge]. All
// other failures return the underlying typed error and leave the machine
// Unauthenticated, except a wrong one-time code, which keeps the pending
// second-factor challenge so the caller can re-prompt.
//
// A pending forced-credential challenge cannot be resolved by ordinary
// sign-in: SignIn then fails with [ErrCredentialChallengeOutstanding]
// (kind [KindNewCredentialRequired]) until
// [Machine.CompleteCredentialChallenge] is called.
func (m *Machine) SignIn(ctx context.Context, identity, secret, otp string) (*Session, error) {
	const op = "machine.SignIn"
	if err := m.beginMutation(op); err != nil {
		return nil, err
	}
	defer m.endMutation()

	m.mu.Lock()
	if m.challenge != nil && m.challenge.Kind == ChallengeNewCredential {
		m.mu.Unlock()
		err := E(KindNewCredentialRequired, op, ErrCredentialChallengeOutstanding)
		m.emitAudit(auditEventSignInFailure, false, identity, err, nil)
		return nil, err
	}
	// A new attempt clears any previous challenge. Remember a pending
	// second-factor challenge so a wrong code can restore it.
	prior := m.challenge
	m.challenge = nil
	m.state = StateAuthenticating
	m.session = nil
	m.profile = nil
	m.groups = nil
	m.elevated = false
	m.mu.Unlock()

	// Local sign-out before authenticating: stale persisted tokens must not
	// outlive the attempt that replaces them.
	m.clearPersisted(ctx)

	outcome, err := m.provider.Authenticate(ctx, identity, secret, otp)
	if err != nil {
		kind := KindOf(err)
		if kind.control() {
			m.setChallenge(challengeForKind(kind, identity))
			m.metrics.Inc(MetricChallengeIssued)
			m.emitAudit(auditEventChallengeIssued, true, identity, nil, func() map[string]string {
				return map[string]string{"challenge": kind.String()}
			})
			return nil, nil
		}
		if prior != nil && prior.Kind == ChallengeSecondFactor && otp != "" {
			// Wrong or stale code: the challenge survives the failure.
			m.setChallenge(prior)
		} else {
			m.mu.Lock()
			if !m.closed.Load() {
				m.state = StateUnauthenticated
			}
			m.mu.Unlock()
		}
		m.metrics.Inc(MetricSignInFailure)
		m.emitAudit(auditEventSignInFailure, false, identity, err, nil)
		return nil, err
	}

	if outcome.Challenge != nil {
		m.setChallenge(outcome.Challenge)
		m.metrics.Inc(MetricChallengeIssued)
		m.emitAudit(auditEventChallengeIssued, true, identity, nil, func() map[string]string {
			return map[string]string{"challenge": outcome.Challenge.Kind.String()}
		})
		return nil, nil
	}

	sess := outcome.Session
	m.applySession(ctx, sess)
	if err := m.refetch(ctx, sess); err != nil {
		// Sign-in stands; the next check cycle retries the fetch.
		m.emitAudit(auditEventSignInSuccess, true, identity, err, func() map[string]string {
			return map[string]string{"profile_fetch": "deferred"}
		})
	} else {
		m.emitAudit(auditEventSignInSuccess, true, identity, nil, nil)
	}
	m.metrics.Inc(MetricSignInSuccess)
	m.invalidate()
	return sess, nil
}

// SignOut invalidates all sessions of the current principal (best effort)
// and clears local state. Provider errors are swallowed: there is no
// recovery action for a failed global sign-out, and local clearing must
// happen regardless. The only observable failures are a closed machine and
// an overlapping mutation.
func (m *Machine) SignOut(ctx context.Context) error {
	const op = "machine.SignOut"
	if err := m.beginMutation(op); err != nil {
		return err
	}
	defer m.endMutation()

	m.mu.RLock()
	sess := m.session
	m.mu.RUnlock()
	if sess == nil {
		sess = m.loadPersistedSession(ctx)
	}
	identity := sess.Username()
	if sess != nil {
		_ = m.provider.GlobalSignOut(ctx, sess)
	}

	m.mu.Lock()
	m.state = StateUnauthenticated
	m.session = nil
	m.profile = nil
	m.groups = nil
	m.elevated = false
	m.challenge = nil
	m.enrollment.reset()
	m.mu.Unlock()

	m.clearPersisted(ctx)
	m.metrics.Inc(MetricSignOut)
	m.emitAudit(auditEventSignOut, true, identity, nil, nil)
	m.invalidate()
	return nil
}

func (m *Machine) setChallenge(ch *Challenge) {
	if m.closed.Load() {
		return
	}
	m.mu.Lock()
	m.challenge = ch
	m.state = StateChallengePending
	m.mu.Unlock()
}

func challengeForKind(kind Kind, identity string) *Challenge {
	switch kind {
	case KindSecondFactorRequired:
		return &Challenge{Kind: ChallengeSecondFactor, PendingIdentity: identity}
	case KindNewCredentialRequired:
		return &Challenge{Kind: ChallengeNewCredential, PendingIdentity: identity}
	case KindNotConfirmed:
		return &Challenge{Kind: ChallengeNotConfirmed, PendingIdentity: identity}
	default:
		return nil
	}
}
