package idsession

import "context"

// Register creates an account for the identity/secret pair. The secret is
// consumed by this call and never stored. Fails KindAlreadyRegistered when
// the identity exists and KindWeakCredential when the secret fails provider
// policy.
func (m *Machine) Register(ctx context.Context, identity, secret string) (*Registration, error) {
	const op = "machine.Register"
	if err := m.beginMutation(op); err != nil {
		return nil, err
	}
	defer m.endMutation()

	reg, err := m.provider.Register(ctx, identity, secret)
	if err != nil {
		m.emitAudit(auditEventRegistered, false, identity, err, nil)
		return nil, err
	}

	m.metrics.Inc(MetricRegistration)
	m.emitAudit(auditEventRegistered, true, identity, nil, func() map[string]string {
		return map[string]string{"destination": reg.CodeDestination}
	})
	return reg, nil
}

// ConfirmRegistration redeems the sign-up confirmation code. On success a
// pending not-confirmed challenge is cleared so the caller can retry
// SignIn. Fails KindCodeMismatch or KindCodeExpired.
func (m *Machine) ConfirmRegistration(ctx context.Context, identity, code string) error {
	const op = "machine.ConfirmRegistration"
	if err := m.beginMutation(op); err != nil {
		return err
	}
	defer m.endMutation()

	if err := m.provider.ConfirmRegistration(ctx, identity, code); err != nil {
		m.emitAudit(auditEventRegistrationConfirm, false, identity, err, nil)
		return err
	}

	m.mu.Lock()
	if m.challenge != nil && m.challenge.Kind == ChallengeNotConfirmed {
		m.challenge = nil
		m.state = StateUnauthenticated
	}
	m.mu.Unlock()

	m.emitAudit(auditEventRegistrationConfirm, true, identity, nil, nil)
	return nil
}

// ResendConfirmationCode requests a fresh sign-up confirmation code and
// returns the delivery destination.
func (m *Machine) ResendConfirmationCode(ctx context.Context, identity string) (string, error) {
	return m.provider.ResendConfirmationCode(ctx, identity)
}
