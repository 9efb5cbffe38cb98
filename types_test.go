package idsession

import (
	"testing"
	"time"
)

func TestNormalizeAttributeValue(t *testing.T) {
	cases := []struct {
		in   string
		want any
	}{
		{"true", true},
		{"false", false},
		{"True", "True"},
		{"yes", "yes"},
		{"", ""},
		{"alice@example.com", "alice@example.com"},
	}
	for _, tc := range cases {
		if got := NormalizeAttributeValue(tc.in); got != tc.want {
			t.Errorf("NormalizeAttributeValue(%q) = %v (%T), want %v", tc.in, got, got, tc.want)
		}
	}
}

func TestSessionDecodesClaims(t *testing.T) {
	access := testToken(t, "alice", []string{"USERS", "SUPERADMIN"}, time.Hour)
	sess := NewSession(access, "id", "refresh")

	if !sess.IsValid() {
		t.Fatal("session inside the window must be valid")
	}
	if sess.Username() != "alice" {
		t.Fatalf("username = %q", sess.Username())
	}
	if got := sess.Groups(); len(got) != 2 || got[0] != "USERS" || got[1] != "SUPERADMIN" {
		t.Fatalf("groups = %v", got)
	}
	if time.Until(sess.ExpiresAt()) <= 0 {
		t.Fatal("expiry must be in the future")
	}
}

func TestSessionExpired(t *testing.T) {
	access := testToken(t, "alice", nil, -time.Minute)
	sess := NewSession(access, "id", "refresh")
	if sess.IsValid() {
		t.Fatal("expired token must not be valid")
	}
}

func TestSessionUndecodableToken(t *testing.T) {
	sess := NewSession("not-a-jwt", "id", "refresh")
	if sess.IsValid() {
		t.Fatal("undecodable token must never be valid")
	}
	if sess.Groups() != nil || sess.Username() != "" {
		t.Fatal("no claims must be derived from an undecodable token")
	}
	if sess.AccessToken() != "not-a-jwt" {
		t.Fatal("raw token must still be carried")
	}
}

func TestSessionNilAccessors(t *testing.T) {
	var sess *Session
	if sess.IsValid() || sess.AccessToken() != "" || sess.Groups() != nil || sess.Username() != "" {
		t.Fatal("nil session accessors must be safe and empty")
	}
}

func TestProfileAttributesClone(t *testing.T) {
	attrs := ProfileAttributes{"email": "a@example.com", "email_verified": true}
	clone := attrs.Clone()
	clone["email"] = "b@example.com"

	if attrs["email"] != "a@example.com" {
		t.Fatal("clone must not alias the original")
	}
	if ProfileAttributes(nil).Clone() != nil {
		t.Fatal("nil must clone to nil")
	}
}

func TestChallengeClone(t *testing.T) {
	ch := &Challenge{
		Kind:              ChallengeNewCredential,
		PendingIdentity:   "alice",
		PendingAttributes: ProfileAttributes{"name": "Alice"},
		ProviderState:     "state",
	}
	clone := ch.clone()
	clone.PendingAttributes["name"] = "Mallory"

	if ch.PendingAttributes["name"] != "Alice" {
		t.Fatal("clone must not alias pending attributes")
	}
	if (*Challenge)(nil).clone() != nil {
		t.Fatal("nil must clone to nil")
	}
}

func TestChallengeKindString(t *testing.T) {
	cases := map[ChallengeKind]string{
		ChallengeNone:          "none",
		ChallengeSecondFactor:  "second_factor_required",
		ChallengeNewCredential: "new_credential_required",
		ChallengeNotConfirmed:  "not_confirmed",
	}
	for kind, want := range cases {
		if got := kind.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", kind, got, want)
		}
	}
}
