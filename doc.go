// Package idsession drives a challenge-response authentication flow against a
// remote identity provider and manages the resulting session material.
//
// The package is the client-side counterpart of a hosted identity provider:
// it owns the authentication stage, the in-flight challenge (if any), and the
// cached profile and group data, and exposes the high-level operations an
// application calls (sign-up, sign-in, confirm, reset, verify, second-factor
// enrollment). Wire-level provider access is delegated to a [Provider]
// implementation; the cognito subpackage ships one for Cognito-compatible
// endpoints.
//
// # Architecture boundaries
//
// idsession is the public surface. It exposes [Machine], [Builder], [Config],
// the error taxonomy ([Kind], [Error]), and the collaborator contracts
// ([Provider], [Storage], [Broadcaster]). Applications must go through
// Machine operations; they must not reach into provider or storage internals
// directly.
//
// # What this package must NOT do
//
//   - Verify token signatures or perform SRP math; tokens are treated as an
//     opaque bundle with a decodable validity window and group claim.
//   - Retry provider calls on its own. Transport failures surface as
//     [KindProviderUnreachable] and retry policy belongs to the caller;
//     several provider operations carry one-shot side effects.
//   - Persist challenge state or enrollment secrets. Both are in-memory only
//     and die with the Machine that holds them.
//
// A [Machine] is safe for concurrent use after [Builder.Build]. Read-only
// operations may run in parallel; mutating operations are serialized per
// machine and reject overlap with [KindOperationInProgress].
package idsession
