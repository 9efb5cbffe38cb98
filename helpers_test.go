package idsession

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

func defaultValidateOpts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}
}

// testToken mints an HS256 token carrying the claims the session decoder
// reads. Signature verification never happens client-side, so any key works.
func testToken(t *testing.T, username string, groups []string, ttl time.Duration) string {
	t.Helper()

	claims := jwt.MapClaims{
		"sub":      uuid.NewString(),
		"username": username,
		"exp":      time.Now().Add(ttl).Unix(),
	}
	if len(groups) > 0 {
		anyGroups := make([]any, len(groups))
		for i, g := range groups {
			anyGroups[i] = g
		}
		claims[groupsClaim] = anyGroups
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func totpCode(t *testing.T, secret string) string {
	t.Helper()
	code, err := totp.GenerateCode(secret, time.Now())
	if err != nil {
		t.Fatalf("generate code: %v", err)
	}
	return code
}

type fakeAccount struct {
	secret         string
	confirmed      bool
	attrs          ProfileAttributes
	groups         []string
	confirmCode    string
	resetCode      string
	forceNewSecret bool

	mfaSecret     string
	mfaEnabled    bool
	pendingSecret string
	deviceLabel   string
}

// fakeProvider is an in-memory Provider with enough behavior to exercise
// every machine flow. All state is guarded by mu; error shapes mirror a
// real provider's taxonomy mapping.
type fakeProvider struct {
	mu       sync.Mutex
	t        *testing.T
	accounts map[string]*fakeAccount
	// refresh token -> identity; deleting an entry revokes the session
	refreshTokens map[string]string
	tokenTTL      time.Duration

	refreshErr error
	signOutErr error
	profileErr error

	authCalls          int
	refreshCalls       int
	confirmFactorCalls int
	submittedNew map[string]any // attributes sent with the last credential challenge answer
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()
	return &fakeProvider{
		t:             t,
		accounts:      make(map[string]*fakeAccount),
		refreshTokens: make(map[string]string),
		tokenTTL:      time.Hour,
	}
}

func (p *fakeProvider) addAccount(identity, secret string, groups ...string) *fakeAccount {
	p.mu.Lock()
	defer p.mu.Unlock()
	a := &fakeAccount{
		secret:    secret,
		confirmed: true,
		attrs:     ProfileAttributes{"email": identity, "email_verified": true},
		groups:    groups,
	}
	p.accounts[identity] = a
	return a
}

// mint issues a session for the identity. Callers hold no locks.
func (p *fakeProvider) mint(identity string) *Session {
	p.mu.Lock()
	a := p.accounts[identity]
	refresh := "refresh-" + uuid.NewString()
	p.refreshTokens[refresh] = identity
	groups := a.groups
	ttl := p.tokenTTL
	p.mu.Unlock()

	access := testToken(p.t, identity, groups, ttl)
	return NewSession(access, access, refresh)
}

func (p *fakeProvider) Register(_ context.Context, identity, secret string) (*Registration, error) {
	const op = "fake.Register"
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.accounts[identity]; ok {
		return nil, E(KindAlreadyRegistered, op, nil)
	}
	if len(secret) < 8 {
		return nil, E(KindWeakCredential, op, nil)
	}
	p.accounts[identity] = &fakeAccount{
		secret:      secret,
		confirmCode: "123456",
		attrs:       ProfileAttributes{"email": identity},
	}
	return &Registration{CodeDestination: "e***@example.com"}, nil
}

func (p *fakeProvider) ConfirmRegistration(_ context.Context, identity, code string) error {
	const op = "fake.ConfirmRegistration"
	p.mu.Lock()
	defer p.mu.Unlock()

	a, ok := p.accounts[identity]
	if !ok {
		return E(KindIdentityNotFound, op, nil)
	}
	if code != a.confirmCode {
		return E(KindCodeMismatch, op, nil)
	}
	a.confirmed = true
	return nil
}

func (p *fakeProvider) ResendConfirmationCode(_ context.Context, identity string) (string, error) {
	const op = "fake.ResendConfirmationCode"
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.accounts[identity]; !ok {
		return "", E(KindIdentityNotFound, op, nil)
	}
	return "e***@example.com", nil
}

func (p *fakeProvider) Authenticate(_ context.Context, identity, secret, otp string) (*AuthOutcome, error) {
	const op = "fake.Authenticate"
	p.mu.Lock()
	p.authCalls++
	a, ok := p.accounts[identity]
	if !ok {
		p.mu.Unlock()
		return nil, E(KindIdentityNotFound, op, nil)
	}
	if !a.confirmed {
		p.mu.Unlock()
		return nil, E(KindNotConfirmed, op, nil)
	}
	if secret != a.secret {
		p.mu.Unlock()
		return nil, E(KindInvalidCredential, op, nil)
	}
	if a.forceNewSecret {
		attrs := a.attrs.Clone()
		p.mu.Unlock()
		return &AuthOutcome{Challenge: &Challenge{
			Kind:              ChallengeNewCredential,
			PendingIdentity:   identity,
			PendingAttributes: attrs,
			ProviderState:     "continuation-1",
		}}, nil
	}
	if a.mfaEnabled {
		if otp == "" {
			p.mu.Unlock()
			return &AuthOutcome{Challenge: &Challenge{
				Kind:            ChallengeSecondFactor,
				PendingIdentity: identity,
				ProviderState:   "continuation-2",
			}}, nil
		}
		ok, _ := totp.ValidateCustom(otp, a.mfaSecret, time.Now(), defaultValidateOpts())
		if !ok {
			p.mu.Unlock()
			return nil, E(KindCodeMismatch, op, nil)
		}
	}
	p.mu.Unlock()
	return &AuthOutcome{Session: p.mint(identity)}, nil
}

func (p *fakeProvider) CompleteCredentialChallenge(_ context.Context, challenge *Challenge, newSecret string) (*Session, error) {
	const op = "fake.CompleteCredentialChallenge"
	p.mu.Lock()
	a, ok := p.accounts[challenge.PendingIdentity]
	if !ok || challenge.ProviderState == "" {
		p.mu.Unlock()
		return nil, E(KindIdentityNotFound, op, nil)
	}
	if len(newSecret) < 8 {
		p.mu.Unlock()
		return nil, E(KindWeakCredential, op, nil)
	}
	a.secret = newSecret
	a.forceNewSecret = false
	p.submittedNew = challenge.PendingAttributes.Clone()
	p.mu.Unlock()
	return p.mint(challenge.PendingIdentity), nil
}

func (p *fakeProvider) Refresh(_ context.Context, session *Session) (*Session, error) {
	p.mu.Lock()
	p.refreshCalls++
	if p.refreshErr != nil {
		err := p.refreshErr
		p.mu.Unlock()
		return nil, err
	}
	if session == nil {
		p.mu.Unlock()
		return nil, nil
	}
	identity, ok := p.refreshTokens[session.RefreshToken()]
	p.mu.Unlock()
	if !ok {
		return nil, nil
	}
	return p.mint(identity), nil
}

func (p *fakeProvider) GlobalSignOut(_ context.Context, session *Session) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if session != nil {
		delete(p.refreshTokens, session.RefreshToken())
	}
	return p.signOutErr
}

func (p *fakeProvider) RequestPasswordReset(_ context.Context, identity string) (string, error) {
	const op = "fake.RequestPasswordReset"
	p.mu.Lock()
	defer p.mu.Unlock()
	a, ok := p.accounts[identity]
	if !ok {
		return "", E(KindIdentityNotFound, op, nil)
	}
	a.resetCode = "777777"
	return "e***@example.com", nil
}

func (p *fakeProvider) ConfirmPasswordReset(_ context.Context, identity, code, newSecret string) error {
	const op = "fake.ConfirmPasswordReset"
	p.mu.Lock()
	defer p.mu.Unlock()
	a, ok := p.accounts[identity]
	if !ok {
		return E(KindIdentityNotFound, op, nil)
	}
	if a.resetCode == "" || code != a.resetCode {
		return E(KindCodeMismatch, op, nil)
	}
	if len(newSecret) < 8 {
		return E(KindWeakCredential, op, nil)
	}
	a.secret = newSecret
	a.resetCode = ""
	return nil
}

func (p *fakeProvider) FetchProfile(_ context.Context, session *Session) (ProfileAttributes, error) {
	const op = "fake.FetchProfile"
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.profileErr != nil {
		return nil, p.profileErr
	}
	a, ok := p.accounts[session.Username()]
	if !ok {
		return nil, E(KindIdentityNotFound, op, nil)
	}
	return a.attrs.Clone(), nil
}

func (p *fakeProvider) UpdateProfile(_ context.Context, session *Session, attrs ProfileAttributes) error {
	const op = "fake.UpdateProfile"
	p.mu.Lock()
	defer p.mu.Unlock()
	a, ok := p.accounts[session.Username()]
	if !ok {
		return E(KindIdentityNotFound, op, nil)
	}
	if a.attrs == nil {
		a.attrs = ProfileAttributes{}
	}
	for name, value := range attrs {
		a.attrs[name] = value
	}
	return nil
}

func (p *fakeProvider) RequestAttributeVerification(_ context.Context, session *Session, attribute string) (string, error) {
	return "e***@example.com", nil
}

func (p *fakeProvider) ConfirmAttributeVerification(_ context.Context, session *Session, attribute, code string) error {
	const op = "fake.ConfirmAttributeVerification"
	if code != "999999" {
		return E(KindCodeMismatch, op, nil)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if a, ok := p.accounts[session.Username()]; ok {
		a.attrs[attribute+"_verified"] = true
	}
	return nil
}

func (p *fakeProvider) IssueSecondFactorSecret(_ context.Context, session *Session) (string, error) {
	const op = "fake.IssueSecondFactorSecret"
	key, err := totp.Generate(totp.GenerateOpts{Issuer: "test", AccountName: session.Username()})
	if err != nil {
		return "", E(KindProviderUnreachable, op, err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	a, ok := p.accounts[session.Username()]
	if !ok {
		return "", E(KindIdentityNotFound, op, nil)
	}
	a.pendingSecret = key.Secret()
	return key.Secret(), nil
}

func (p *fakeProvider) ConfirmSecondFactor(_ context.Context, session *Session, code, deviceLabel string) error {
	const op = "fake.ConfirmSecondFactor"
	p.mu.Lock()
	defer p.mu.Unlock()
	p.confirmFactorCalls++
	a, ok := p.accounts[session.Username()]
	if !ok || a.pendingSecret == "" {
		return E(KindCodeMismatch, op, nil)
	}
	valid, _ := totp.ValidateCustom(code, a.pendingSecret, time.Now(), defaultValidateOpts())
	if !valid {
		return E(KindCodeMismatch, op, nil)
	}
	a.mfaSecret = a.pendingSecret
	a.pendingSecret = ""
	a.deviceLabel = deviceLabel
	return nil
}

func (p *fakeProvider) SetSecondFactorEnabled(_ context.Context, session *Session, enabled bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	a, ok := p.accounts[session.Username()]
	if !ok {
		return E(KindIdentityNotFound, "fake.SetSecondFactorEnabled", nil)
	}
	a.mfaEnabled = enabled
	if !enabled {
		a.mfaSecret = ""
	}
	return nil
}

func (p *fakeProvider) SecondFactorStatus(_ context.Context, session *Session) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	a, ok := p.accounts[session.Username()]
	if !ok {
		return false, E(KindIdentityNotFound, "fake.SecondFactorStatus", nil)
	}
	return a.mfaEnabled, nil
}

var _ Provider = (*fakeProvider)(nil)

func testConfig() Config {
	cfg := defaultConfig()
	cfg.Storage.KeyPrefix = "test"
	cfg.Metrics.Enabled = true
	return cfg
}

// newTestMachine builds a machine on an isolated broadcaster and in-memory
// storage. The done func closes the machine.
func newTestMachine(t *testing.T, p *fakeProvider) (*Machine, func()) {
	t.Helper()
	return newTestMachineOn(t, p, NewBroadcaster(), NewMemoryStorage(0))
}

func newTestMachineOn(t *testing.T, p *fakeProvider, bus *Broadcaster, storage Storage) (*Machine, func()) {
	t.Helper()

	m, err := New().
		WithConfig(testConfig()).
		WithProvider(p).
		WithStorage(storage).
		WithBroadcaster(bus).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return m, func() { m.Close() }
}

// waitFor polls until cond holds or the deadline passes. Used for effects
// that arrive through the invalidation listener goroutine.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}
