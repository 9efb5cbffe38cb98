package idsession

import "context"

// ForgotPassword starts the credential-reset flow and returns the code
// delivery destination. Fails KindIdentityNotFound.
func (m *Machine) ForgotPassword(ctx context.Context, identity string) (string, error) {
	destination, err := m.provider.RequestPasswordReset(ctx, identity)
	if err != nil {
		m.emitAudit(auditEventResetRequested, false, identity, err, nil)
		return "", err
	}
	m.emitAudit(auditEventResetRequested, true, identity, nil, func() map[string]string {
		return map[string]string{"destination": destination}
	})
	return destination, nil
}

// ConfirmForgotPassword redeems the reset code with a new secret. Each
// failure cause keeps its own kind (KindCodeMismatch, KindCodeExpired,
// KindWeakCredential, KindProviderUnreachable) so the caller can give
// field-level feedback instead of one generic message.
func (m *Machine) ConfirmForgotPassword(ctx context.Context, identity, code, newSecret string) error {
	const op = "machine.ConfirmForgotPassword"
	if err := m.beginMutation(op); err != nil {
		return err
	}
	defer m.endMutation()

	if err := m.provider.ConfirmPasswordReset(ctx, identity, code, newSecret); err != nil {
		m.emitAudit(auditEventResetConfirmed, false, identity, err, nil)
		return err
	}

	m.metrics.Inc(MetricResetConfirmed)
	m.emitAudit(auditEventResetConfirmed, true, identity, nil, nil)
	return nil
}

// CompleteCredentialChallenge resolves a pending forced-credential
// challenge with the new secret. This is the only way out of
// ChallengeNewCredential; ordinary SignIn is rejected while one is pending.
// On success the machine is Authenticated and every subscribed machine is
// signalled to re-fetch.
func (m *Machine) CompleteCredentialChallenge(ctx context.Context, newSecret string) (*Session, error) {
	const op = "machine.CompleteCredentialChallenge"
	if err := m.beginMutation(op); err != nil {
		return nil, err
	}
	defer m.endMutation()

	m.mu.RLock()
	challenge := m.challenge.clone()
	m.mu.RUnlock()

	if challenge == nil || challenge.Kind != ChallengeNewCredential {
		return nil, E(KindNewCredentialRequired, op, ErrNoCredentialChallenge)
	}

	sess, err := m.provider.CompleteCredentialChallenge(ctx, challenge, newSecret)
	if err != nil {
		// The challenge stays pending: a weak secret or transport failure
		// can be retried with the same pending state.
		m.emitAudit(auditEventCredentialChallenge, false, challenge.PendingIdentity, err, nil)
		return nil, err
	}

	m.applySession(ctx, sess)
	if err := m.refetch(ctx, sess); err != nil {
		m.emitAudit(auditEventCredentialChallenge, true, challenge.PendingIdentity, err, func() map[string]string {
			return map[string]string{"profile_fetch": "deferred"}
		})
	} else {
		m.emitAudit(auditEventCredentialChallenge, true, challenge.PendingIdentity, nil, nil)
	}
	m.metrics.Inc(MetricCredentialChallengeCompleted)
	m.invalidate()
	return sess, nil
}
