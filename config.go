package idsession

import (
	"errors"
	"time"
)

// Config configures a [Machine]. Instances are set up once, passed to
// [Builder.WithConfig], and treated as immutable afterwards.
type Config struct {
	Stage        StageConfig
	Storage      StorageConfig
	SecondFactor SecondFactorConfig
	Elevation    ElevationConfig
	Audit        AuditConfig
	Metrics      MetricsConfig

	// AllowRegistration is surfaced to consumers so a UI can hide the
	// sign-up flow. It does not gate Register itself; a provider that
	// forbids sign-up rejects the call anyway.
	AllowRegistration bool
}

/*
====================================
STAGE CONFIG
====================================
*/

// StageConfig controls the persisted flow selector.
type StageConfig struct {
	// Default is the stage presented when nothing is persisted yet.
	Default Stage
}

/*
====================================
STORAGE CONFIG
====================================
*/

// StorageConfig controls the persisted key schema and cache lifetime.
type StorageConfig struct {
	// KeyPrefix namespaces every persisted key. All keys follow
	// "<prefix>:v<schema>:<name>" so migration and cleanup stay in one
	// place.
	KeyPrefix string
	// CacheTTL bounds how long cached profile/group data may outlive the
	// write. Session validity is always authoritative over the cache.
	CacheTTL time.Duration
}

/*
====================================
SECOND FACTOR CONFIG
====================================
*/

// SecondFactorConfig controls software-token enrollment.
type SecondFactorConfig struct {
	// Issuer is the name shown in authenticator apps.
	Issuer string
	// CodeDigits is the accepted one-time code length.
	CodeDigits int
	// CodePeriod is the TOTP step used for local verification.
	CodePeriod time.Duration
}

/*
====================================
ELEVATION CONFIG
====================================
*/

// ElevationConfig lists the group names that grant the elevated-role flag.
// Matching is case-sensitive and exact.
type ElevationConfig struct {
	Groups []string
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig controls the buffered audit event dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls the in-process counters.
type MetricsConfig struct {
	Enabled bool
}

// DefaultConfig returns the configuration [New] starts from. Adjust fields
// and pass the result to [Builder.WithConfig].
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Stage: StageConfig{
			Default: StageLogin,
		},
		Storage: StorageConfig{
			KeyPrefix: "idsession",
			CacheTTL:  12 * time.Hour,
		},
		SecondFactor: SecondFactorConfig{
			Issuer:     "idsession",
			CodeDigits: 6,
			CodePeriod: 30 * time.Second,
		},
		Elevation: ElevationConfig{
			Groups: []string{"SUPERADMIN", "SUPER_ADMIN"},
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
		},
		AllowRegistration: true,
	}
}

// Validate checks internal consistency. Build refuses configs that fail.
func (c *Config) Validate() error {
	if c.Stage.Default != "" && !c.Stage.Default.valid() {
		return errors.New("Stage Default must be login, register or forgotPassword")
	}
	if c.Storage.KeyPrefix == "" {
		return errors.New("Storage KeyPrefix must not be empty")
	}
	if c.Storage.CacheTTL < 0 {
		return errors.New("Storage CacheTTL must be >= 0")
	}
	if c.SecondFactor.CodeDigits < 6 || c.SecondFactor.CodeDigits > 8 {
		return errors.New("SecondFactor CodeDigits must be between 6 and 8")
	}
	if c.SecondFactor.CodePeriod <= 0 {
		return errors.New("SecondFactor CodePeriod must be > 0")
	}
	if len(c.Elevation.Groups) == 0 {
		return errors.New("Elevation Groups must not be empty")
	}
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}
	return nil
}

func cloneConfig(c Config) Config {
	out := c
	out.Elevation.Groups = append([]string(nil), c.Elevation.Groups...)
	return out
}
