package idsession

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// EnrollmentState is the second-factor enrollment lifecycle stage.
type EnrollmentState uint8

const (
	// EnrollmentDisabled: no software-token factor is configured.
	EnrollmentDisabled EnrollmentState = iota
	// EnrollmentEnrolling: a secret has been issued and awaits its first
	// confirmed code. The secret exists only in memory and only in this
	// state.
	EnrollmentEnrolling
	// EnrollmentEnabled: the software-token factor is active.
	EnrollmentEnabled
)

func (s EnrollmentState) String() string {
	switch s {
	case EnrollmentEnrolling:
		return "enrolling"
	case EnrollmentEnabled:
		return "enabled"
	default:
		return "disabled"
	}
}

// ErrNotEnrolling is returned by [Machine.SubmitEnrollmentCode] outside the
// Enrolling state.
var ErrNotEnrolling = errors.New("no second-factor enrollment in progress")

// ErrSecondFactorNotEnabled is returned by [Machine.DisableSecondFactor]
// when the factor is not enabled.
var ErrSecondFactorNotEnabled = errors.New("second factor not enabled")

// enrollment is guarded by Machine.mu.
type enrollment struct {
	state   EnrollmentState
	secret  string
	lastErr error
}

func (e *enrollment) reset() {
	e.state = EnrollmentDisabled
	e.secret = ""
	e.lastErr = nil
}

// syncStatus folds the provider-reported factor preference into the local
// state. An in-flight enrollment is never overridden by a status probe.
func (e *enrollment) syncStatus(enabled bool) {
	if e.state == EnrollmentEnrolling {
		return
	}
	if enabled {
		e.state = EnrollmentEnabled
	} else {
		e.state = EnrollmentDisabled
	}
	e.secret = ""
}

// SecondFactorState returns the enrollment lifecycle stage.
func (m *Machine) SecondFactorState() EnrollmentState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enrollment.state
}

// EnrollmentError returns the error attached to the pending enrollment
// attempt, if the last SubmitEnrollmentCode was rejected. It lets a caller
// re-prompt without re-issuing the secret.
func (m *Machine) EnrollmentError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enrollment.lastErr
}

// StartEnroll requests a software-token secret from the provider and moves
// enrollment to Enrolling. Without a valid session the state stays
// Disabled and KindNotAuthenticated is returned. The returned setup carries
// the secret and an otpauth:// URI for authenticator apps; neither is ever
// written to durable storage.
func (m *Machine) StartEnroll(ctx context.Context) (*SecondFactorSetup, error) {
	const op = "machine.StartEnroll"
	if err := m.beginMutation(op); err != nil {
		return nil, err
	}
	defer m.endMutation()

	sess, err := m.ensureSession(ctx, op)
	if err != nil {
		return nil, err
	}

	secret, err := m.provider.IssueSecondFactorSecret(ctx, sess)
	if err != nil {
		m.emitAudit(auditEventEnrollmentStarted, false, sess.Username(), err, nil)
		return nil, err
	}
	if m.closed.Load() {
		return nil, ErrMachineClosed
	}

	m.mu.Lock()
	m.enrollment.state = EnrollmentEnrolling
	m.enrollment.secret = secret
	m.enrollment.lastErr = nil
	m.mu.Unlock()

	m.metrics.Inc(MetricEnrollmentStarted)
	m.emitAudit(auditEventEnrollmentStarted, true, sess.Username(), nil, nil)
	return &SecondFactorSetup{
		Secret: secret,
		URI:    m.provisionURI(secret, sess.Username()),
	}, nil
}

// SubmitEnrollmentCode confirms enrollment with the first one-time code.
// Only valid in Enrolling. The code is verified locally against the issued
// secret before the provider round trip; a wrong code keeps the state at
// Enrolling with the same secret, attaches the error to the pending
// attempt, and returns KindCodeMismatch. Success transitions to Enabled,
// marks the factor preferred with the provider, and wipes the secret from
// memory. deviceLabel falls back to [WithDeviceLabel] context metadata.
func (m *Machine) SubmitEnrollmentCode(ctx context.Context, code, deviceLabel string) error {
	const op = "machine.SubmitEnrollmentCode"
	if err := m.beginMutation(op); err != nil {
		return err
	}
	defer m.endMutation()

	m.mu.RLock()
	state := m.enrollment.state
	secret := m.enrollment.secret
	m.mu.RUnlock()
	if state != EnrollmentEnrolling {
		return ErrNotEnrolling
	}

	sess, err := m.ensureSession(ctx, op)
	if err != nil {
		return err
	}
	if deviceLabel == "" {
		deviceLabel = deviceLabelFromContext(ctx)
	}

	if err := m.verifyEnrollmentCode(code, secret); err != nil {
		m.failEnrollmentAttempt(sess.Username(), err)
		return err
	}

	if err := m.provider.ConfirmSecondFactor(ctx, sess, code, deviceLabel); err != nil {
		m.failEnrollmentAttempt(sess.Username(), err)
		return err
	}
	if err := m.provider.SetSecondFactorEnabled(ctx, sess, true); err != nil {
		m.failEnrollmentAttempt(sess.Username(), err)
		return err
	}
	if m.closed.Load() {
		return ErrMachineClosed
	}

	m.mu.Lock()
	m.enrollment.state = EnrollmentEnabled
	m.enrollment.secret = ""
	m.enrollment.lastErr = nil
	m.mu.Unlock()

	m.metrics.Inc(MetricEnrollmentConfirmed)
	m.emitAudit(auditEventEnrollmentConfirmed, true, sess.Username(), nil, func() map[string]string {
		return map[string]string{"device": deviceLabel}
	})
	m.invalidate()
	return nil
}

// DisableSecondFactor turns the software-token factor off. Only valid in
// Enabled. Local enrollment state is cleared once the provider call
// resolves, success or failure alike: a failure here means the factor was
// already off or the provider is unreachable, and keeping stale local state
// helps neither case. The provider error, if any, is still returned.
func (m *Machine) DisableSecondFactor(ctx context.Context) error {
	const op = "machine.DisableSecondFactor"
	if err := m.beginMutation(op); err != nil {
		return err
	}
	defer m.endMutation()

	m.mu.RLock()
	state := m.enrollment.state
	m.mu.RUnlock()
	if state != EnrollmentEnabled {
		return ErrSecondFactorNotEnabled
	}

	sess, err := m.ensureSession(ctx, op)
	if err != nil {
		return err
	}

	provErr := m.provider.SetSecondFactorEnabled(ctx, sess, false)

	if !m.closed.Load() {
		m.mu.Lock()
		m.enrollment.reset()
		m.mu.Unlock()
	}

	m.emitAudit(auditEventSecondFactorDisabled, provErr == nil, sess.Username(), provErr, nil)
	m.invalidate()
	return provErr
}

// verifyEnrollmentCode checks shape (numeric, configured length) and then
// the TOTP value against the issued secret.
func (m *Machine) verifyEnrollmentCode(code, secret string) error {
	const op = "machine.SubmitEnrollmentCode"
	if len(code) != m.config.SecondFactor.CodeDigits {
		return E(KindCodeMismatch, op, fmt.Errorf("code must be %d digits", m.config.SecondFactor.CodeDigits))
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return E(KindCodeMismatch, op, errors.New("code must be numeric"))
		}
	}

	ok, err := totp.ValidateCustom(code, secret, time.Now(), totp.ValidateOpts{
		Period:    uint(m.config.SecondFactor.CodePeriod / time.Second),
		Skew:      1,
		Digits:    otp.Digits(m.config.SecondFactor.CodeDigits),
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil || !ok {
		return E(KindCodeMismatch, op, errors.New("code does not match issued secret"))
	}
	return nil
}

func (m *Machine) failEnrollmentAttempt(identity string, cause error) {
	if m.closed.Load() {
		return
	}
	m.mu.Lock()
	if m.enrollment.state == EnrollmentEnrolling {
		m.enrollment.lastErr = cause
	}
	m.mu.Unlock()

	m.metrics.Inc(MetricEnrollmentFailed)
	m.emitAudit(auditEventEnrollmentFailed, false, identity, cause, nil)
}

func (m *Machine) provisionURI(secret, account string) string {
	issuer := m.config.SecondFactor.Issuer
	values := url.Values{}
	values.Set("secret", secret)
	values.Set("issuer", issuer)
	values.Set("digits", fmt.Sprintf("%d", m.config.SecondFactor.CodeDigits))
	values.Set("period", fmt.Sprintf("%d", int(m.config.SecondFactor.CodePeriod/time.Second)))
	return fmt.Sprintf("otpauth://totp/%s:%s?%s",
		url.PathEscape(issuer), url.PathEscape(account), values.Encode())
}
