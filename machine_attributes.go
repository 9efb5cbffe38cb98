package idsession

import (
	"context"
	"fmt"
)

// UpdateAttributes writes profile attribute values. Values are stringified
// on the wire; the refreshed profile comes back normalized. Requires a
// valid session and broadcasts invalidation on success so every subscribed
// machine re-fetches.
func (m *Machine) UpdateAttributes(ctx context.Context, attrs ProfileAttributes) error {
	const op = "machine.UpdateAttributes"
	if err := m.beginMutation(op); err != nil {
		return err
	}
	defer m.endMutation()

	sess, err := m.ensureSession(ctx, op)
	if err != nil {
		return err
	}
	if err := m.provider.UpdateProfile(ctx, sess, attrs); err != nil {
		m.emitAudit(auditEventAttributesUpdated, false, sess.Username(), err, nil)
		return err
	}

	m.metrics.Inc(MetricAttributesUpdated)
	m.emitAudit(auditEventAttributesUpdated, true, sess.Username(), nil, func() map[string]string {
		return map[string]string{"count": fmt.Sprintf("%d", len(attrs))}
	})
	m.invalidate()
	return nil
}

// VerifyAttribute redeems a verification code for one profile attribute
// (typically "email"). Requires a valid session; broadcasts invalidation on
// success. Fails KindCodeMismatch or KindCodeExpired.
func (m *Machine) VerifyAttribute(ctx context.Context, attribute, code string) error {
	const op = "machine.VerifyAttribute"
	if err := m.beginMutation(op); err != nil {
		return err
	}
	defer m.endMutation()

	sess, err := m.ensureSession(ctx, op)
	if err != nil {
		return err
	}
	if err := m.provider.ConfirmAttributeVerification(ctx, sess, attribute, code); err != nil {
		m.emitAudit(auditEventAttributeVerified, false, sess.Username(), err, func() map[string]string {
			return map[string]string{"attribute": attribute}
		})
		return err
	}

	m.emitAudit(auditEventAttributeVerified, true, sess.Username(), nil, func() map[string]string {
		return map[string]string{"attribute": attribute}
	})
	m.invalidate()
	return nil
}

// RequestAttributeVerification sends a fresh verification code for one
// profile attribute and returns the delivery destination. Requires a valid
// session; read-only, so it is not serialized against mutations.
func (m *Machine) RequestAttributeVerification(ctx context.Context, attribute string) (string, error) {
	const op = "machine.RequestAttributeVerification"
	sess, err := m.ensureSession(ctx, op)
	if err != nil {
		return "", err
	}
	return m.provider.RequestAttributeVerification(ctx, sess, attribute)
}
