package idsession

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Credential is an identity/secret pair. It is consumed by the call that
// uses it and never persisted.
type Credential struct {
	Identity string
	Secret   string
}

// groupsClaim is the access-token claim carrying group membership on
// Cognito-compatible providers.
const groupsClaim = "cognito:groups"

// Session is the opaque token bundle proving authentication. Tokens are
// never inspected by application code except through the accessors below;
// the validity window and group list are decoded (not verified) from the
// access token.
type Session struct {
	accessToken  string
	idToken      string
	refreshToken string
	expiresAt    time.Time
	groups       []string
	username     string
}

// NewSession builds a Session from raw provider tokens. The expiry window,
// group list, and username are decoded from the access token claims; an
// undecodable token yields a session that is never valid.
func NewSession(accessToken, idToken, refreshToken string) *Session {
	s := &Session{
		accessToken:  accessToken,
		idToken:      idToken,
		refreshToken: refreshToken,
	}
	claims := decodeClaims(accessToken)
	if claims == nil {
		return s
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		s.expiresAt = exp.Time
	}
	if raw, ok := claims[groupsClaim].([]any); ok {
		for _, g := range raw {
			if name, ok := g.(string); ok {
				s.groups = append(s.groups, name)
			}
		}
	}
	if name, ok := claims["username"].(string); ok {
		s.username = name
	} else if sub, ok := claims["sub"].(string); ok {
		s.username = sub
	}
	return s
}

// IsValid reports whether the session's access token is present and inside
// its validity window.
func (s *Session) IsValid() bool {
	if s == nil || s.accessToken == "" {
		return false
	}
	return time.Now().Before(s.expiresAt)
}

// AccessToken returns the raw access token.
func (s *Session) AccessToken() string {
	if s == nil {
		return ""
	}
	return s.accessToken
}

// IDToken returns the raw identity token.
func (s *Session) IDToken() string {
	if s == nil {
		return ""
	}
	return s.idToken
}

// RefreshToken returns the raw refresh token.
func (s *Session) RefreshToken() string {
	if s == nil {
		return ""
	}
	return s.refreshToken
}

// ExpiresAt returns the end of the validity window (zero if undecodable).
func (s *Session) ExpiresAt() time.Time {
	if s == nil {
		return time.Time{}
	}
	return s.expiresAt
}

// Groups returns the ordered group membership decoded from the access token.
func (s *Session) Groups() []string {
	if s == nil || len(s.groups) == 0 {
		return nil
	}
	out := make([]string, len(s.groups))
	copy(out, s.groups)
	return out
}

// Username returns the principal name decoded from the access token.
func (s *Session) Username() string {
	if s == nil {
		return ""
	}
	return s.username
}

// decodeClaims parses token claims without signature verification. Token
// cryptography is the provider's responsibility; the client only needs the
// validity window and group claim.
func decodeClaims(token string) jwt.MapClaims {
	if token == "" {
		return nil
	}
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return nil
	}
	return claims
}

// ProfileAttributes maps attribute names to normalized values: the strings
// "true" and "false" are coerced to bool, everything else stays a string.
type ProfileAttributes map[string]any

// NormalizeAttributeValue applies the "true"/"false" → bool coercion used
// for all profile attribute values.
func NormalizeAttributeValue(value string) any {
	switch value {
	case "true":
		return true
	case "false":
		return false
	default:
		return value
	}
}

// Clone returns a shallow copy, nil-safe.
func (p ProfileAttributes) Clone() ProfileAttributes {
	if p == nil {
		return nil
	}
	out := make(ProfileAttributes, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Stage selects which top-level flow the caller is presenting. It persists
// across reloads and is mutated only by explicit [Machine.SetStage] calls.
type Stage string

const (
	// StageLogin presents the sign-in flow.
	StageLogin Stage = "login"
	// StageRegister presents the sign-up flow.
	StageRegister Stage = "register"
	// StageForgotPassword presents the credential-reset flow.
	StageForgotPassword Stage = "forgotPassword"
)

func (s Stage) valid() bool {
	switch s {
	case StageLogin, StageRegister, StageForgotPassword:
		return true
	}
	return false
}

// ChallengeKind enumerates the provider-initiated extra steps that can
// interrupt a sign-in.
type ChallengeKind uint8

const (
	// ChallengeNone means no challenge is pending.
	ChallengeNone ChallengeKind = iota
	// ChallengeSecondFactor: resubmit SignIn with the one-time code set.
	ChallengeSecondFactor
	// ChallengeNewCredential: resolved only via CompleteCredentialChallenge.
	ChallengeNewCredential
	// ChallengeNotConfirmed: confirm registration, then retry SignIn.
	ChallengeNotConfirmed
)

func (k ChallengeKind) String() string {
	switch k {
	case ChallengeSecondFactor:
		return "second_factor_required"
	case ChallengeNewCredential:
		return "new_credential_required"
	case ChallengeNotConfirmed:
		return "not_confirmed"
	default:
		return "none"
	}
}

// Challenge is the transient, in-memory record of an interrupted sign-in.
// It exists only between a sign-in attempt and its resolution and is never
// persisted. At most one Challenge exists per machine.
type Challenge struct {
	Kind ChallengeKind

	// PendingIdentity and PendingAttributes are set for
	// ChallengeNewCredential and echo what the provider returned with the
	// forced-reset demand.
	PendingIdentity   string
	PendingAttributes ProfileAttributes

	// ProviderState is the opaque continuation token some providers require
	// to answer the challenge. Owned by the Provider; never persisted.
	ProviderState string
}

func (c *Challenge) clone() *Challenge {
	if c == nil {
		return nil
	}
	out := *c
	out.PendingAttributes = c.PendingAttributes.Clone()
	return &out
}

// Registration is returned by [Machine.Register].
type Registration struct {
	// Confirmed is true when the provider auto-confirms accounts and no
	// confirmation code round trip is needed.
	Confirmed bool
	// CodeDestination describes where the confirmation code was delivered
	// (masked email or phone number), when one was sent.
	CodeDestination string
}

// AuthOutcome is what [Provider.Authenticate] resolves to: exactly one of
// Session or Challenge is set.
type AuthOutcome struct {
	Session   *Session
	Challenge *Challenge
}

// SecondFactorSetup carries the secret issued when enrollment starts, plus
// the otpauth:// URI an authenticator app can scan. The secret lives only in
// memory for the duration of the Enrolling state.
type SecondFactorSetup struct {
	Secret string
	URI    string
}

// Provider is the protocol client contract: wrap the identity provider's
// wire calls and normalize every outcome into the package error taxonomy.
// Implementations must never let a provider-specific error type escape.
//
// All methods taking a *Session may assume the caller refreshed it first;
// the Machine is responsible for that.
type Provider interface {
	// Register creates an account. Fails KindAlreadyRegistered or
	// KindWeakCredential.
	Register(ctx context.Context, identity, secret string) (*Registration, error)
	// ConfirmRegistration redeems the sign-up confirmation code. Fails
	// KindCodeMismatch or KindCodeExpired.
	ConfirmRegistration(ctx context.Context, identity, code string) error
	// ResendConfirmationCode requests a fresh sign-up code and returns the
	// delivery destination.
	ResendConfirmationCode(ctx context.Context, identity string) (string, error)

	// Authenticate runs the challenge-response sign-in. otp may be empty;
	// when the account requires a second factor and otp is set, the
	// challenge round trip is completed inside this call.
	Authenticate(ctx context.Context, identity, secret, otp string) (*AuthOutcome, error)
	// CompleteCredentialChallenge resolves a ChallengeNewCredential.
	// Provider-reserved attribute names are stripped from the pending
	// attributes before submission.
	CompleteCredentialChallenge(ctx context.Context, challenge *Challenge, newSecret string) (*Session, error)
	// Refresh re-validates a session. An expired or revoked session is not
	// an error: it returns (nil, nil) to signal unauthenticated.
	Refresh(ctx context.Context, session *Session) (*Session, error)
	// GlobalSignOut invalidates every session of the current principal.
	GlobalSignOut(ctx context.Context, session *Session) error

	// RequestPasswordReset starts the reset flow and returns the code
	// delivery destination.
	RequestPasswordReset(ctx context.Context, identity string) (string, error)
	// ConfirmPasswordReset redeems the reset code with a new secret. Fails
	// KindCodeMismatch, KindCodeExpired or KindWeakCredential.
	ConfirmPasswordReset(ctx context.Context, identity, code, newSecret string) error

	// FetchProfile returns the normalized profile attribute map.
	FetchProfile(ctx context.Context, session *Session) (ProfileAttributes, error)
	// UpdateProfile writes attribute values (stringified on the wire).
	UpdateProfile(ctx context.Context, session *Session, attrs ProfileAttributes) error
	// RequestAttributeVerification sends a verification code for one
	// attribute and returns the delivery destination.
	RequestAttributeVerification(ctx context.Context, session *Session, attribute string) (string, error)
	// ConfirmAttributeVerification redeems an attribute verification code.
	ConfirmAttributeVerification(ctx context.Context, session *Session, attribute, code string) error

	// IssueSecondFactorSecret starts software-token enrollment and returns
	// the shared secret.
	IssueSecondFactorSecret(ctx context.Context, session *Session) (string, error)
	// ConfirmSecondFactor verifies the first code against the issued secret
	// provider-side and registers the device label.
	ConfirmSecondFactor(ctx context.Context, session *Session, code, deviceLabel string) error
	// SetSecondFactorEnabled toggles the software-token factor preference.
	SetSecondFactorEnabled(ctx context.Context, session *Session, enabled bool) error
	// SecondFactorStatus reports whether the software-token factor is
	// currently the preferred second factor.
	SecondFactorStatus(ctx context.Context, session *Session) (bool, error)
}
