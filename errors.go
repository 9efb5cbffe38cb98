package idsession

import (
	"errors"
	"fmt"
)

// Kind discriminates the failure classes that can leave this package.
// Provider-specific error codes never escape; every failure is mapped to one
// of these before it reaches a caller.
type Kind uint8

const (
	// KindUnknown is the zero Kind. It only appears when a non-idsession
	// error is inspected with [KindOf].
	KindUnknown Kind = iota
	// KindIdentityNotFound: no account exists for the given identity.
	KindIdentityNotFound
	// KindInvalidCredential: the secret was wrong. Surfaced generically so a
	// caller cannot distinguish bad identity from bad secret.
	KindInvalidCredential
	// KindCodeMismatch: a verification code was wrong.
	KindCodeMismatch
	// KindCodeExpired: a verification code is stale and must be resent.
	KindCodeExpired
	// KindWeakCredential: a new secret failed the provider's policy.
	KindWeakCredential
	// KindAlreadyRegistered: the identity already has an account.
	KindAlreadyRegistered
	// KindSecondFactorRequired is a control signal: sign-in needs a one-time
	// code. The machine absorbs it into a pending challenge.
	KindSecondFactorRequired
	// KindNewCredentialRequired is a control signal: the provider forces a
	// new secret before sign-in completes.
	KindNewCredentialRequired
	// KindNotConfirmed is a control signal: the account registration was
	// never confirmed.
	KindNotConfirmed
	// KindNotAuthenticated: an authenticated-only operation was called
	// without a valid session. Never retried automatically.
	KindNotAuthenticated
	// KindOperationInProgress: a mutating call overlapped another one on the
	// same machine. Retry after the in-flight call resolves.
	KindOperationInProgress
	// KindProviderUnreachable: transport-level failure. Eligible for
	// caller-driven retry with backoff; never retried by this package.
	KindProviderUnreachable
)

var kindNames = map[Kind]string{
	KindUnknown:               "unknown",
	KindIdentityNotFound:      "identity not found",
	KindInvalidCredential:     "invalid credential",
	KindCodeMismatch:          "code mismatch",
	KindCodeExpired:           "code expired",
	KindWeakCredential:        "weak credential",
	KindAlreadyRegistered:     "already registered",
	KindSecondFactorRequired:  "second factor required",
	KindNewCredentialRequired: "new credential required",
	KindNotConfirmed:          "registration not confirmed",
	KindNotAuthenticated:      "not authenticated",
	KindOperationInProgress:   "operation in progress",
	KindProviderUnreachable:   "provider unreachable",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// control reports whether k is one of the three control-signal kinds the
// state machine recovers from by entering ChallengePending.
func (k Kind) control() bool {
	switch k {
	case KindSecondFactorRequired, KindNewCredentialRequired, KindNotConfirmed:
		return true
	}
	return false
}

// Error is the single tagged error type used across the package. Behavior
// dispatches on Kind, not on type identity of provider-side errors.
type Error struct {
	Kind Kind
	Op   string // operation that failed, e.g. "machine.SignIn"
	Err  error  // underlying cause, may be nil
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// E builds an *Error. Kept short because it appears on most return paths.
func E(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the Kind from err, unwrapping as needed. Errors that did
// not originate here report KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given Kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// ErrCredentialChallengeOutstanding is returned by [Machine.SignIn] when a
// forced-credential challenge is pending. Ordinary sign-in cannot resolve
// it; callers must use [Machine.CompleteCredentialChallenge].
var ErrCredentialChallengeOutstanding = errors.New(
	"new-credential challenge outstanding; resolve with CompleteCredentialChallenge")

// ErrNoCredentialChallenge is returned by
// [Machine.CompleteCredentialChallenge] when no forced-credential challenge
// is pending.
var ErrNoCredentialChallenge = errors.New("no new-credential challenge pending")
