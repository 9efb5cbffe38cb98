package idsession

import (
	"context"
	"encoding/json"
)

// storageSchemaVersion is baked into every persisted key. Bumping it
// orphans (and thereby invalidates) all previously persisted state in one
// place instead of scattering migration logic.
const storageSchemaVersion = "v1"

// Storage is the key-value persistence contract. Two backends ship with the
// package: [MemoryStorage] scopes state to the process (the tab-local mode)
// and [RedisStorage] survives across processes (the remember-me mode).
// Which one a machine uses is an explicit [Builder.WithStorage] input, never
// a hidden switch.
//
// Keys are independently settable; there is no multi-key transaction.
// Callers must therefore treat the session key as authoritative: cached
// profile or group values without a valid session are discarded on load.
type Storage interface {
	// Get returns the value and whether the key was present.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// storageKeys enumerates every key the machine persists. Adding a key here
// is the only sanctioned way to grow the schema.
type storageKeys struct {
	prefix string
}

func newStorageKeys(prefix string) storageKeys {
	return storageKeys{prefix: prefix}
}

func (k storageKeys) key(name string) string {
	return k.prefix + ":" + storageSchemaVersion + ":" + name
}

func (k storageKeys) stage() string    { return k.key("stage") }
func (k storageKeys) session() string  { return k.key("session") }
func (k storageKeys) profile() string  { return k.key("profile") }
func (k storageKeys) groups() string   { return k.key("groups") }
func (k storageKeys) elevated() string { return k.key("elevated") }

// persistedSession is the serialized token bundle. Expiry and groups are
// re-decoded from the access token on load, so only the raw tokens travel.
type persistedSession struct {
	AccessToken  string `json:"access_token"`
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
}

func encodeSession(s *Session) (string, error) {
	data, err := json.Marshal(persistedSession{
		AccessToken:  s.AccessToken(),
		IDToken:      s.IDToken(),
		RefreshToken: s.RefreshToken(),
	})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeSession(raw string) (*Session, error) {
	var p persistedSession
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, err
	}
	return NewSession(p.AccessToken, p.IDToken, p.RefreshToken), nil
}
