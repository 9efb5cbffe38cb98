package idsession

import (
	"context"
	"errors"
)

// Builder assembles a [Machine]. Configure once, call Build once.
type Builder struct {
	config   Config
	provider Provider
	storage  Storage
	bus      *Broadcaster

	auditSink AuditSink

	built bool
}

// New returns a Builder loaded with defaults.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the default configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithProvider sets the identity provider. Required.
func (b *Builder) WithProvider(p Provider) *Builder {
	b.provider = p
	return b
}

// WithStorage sets the persistence backend. Defaults to an in-memory store
// with the configured cache TTL.
func (b *Builder) WithStorage(s Storage) *Builder {
	b.storage = s
	return b
}

// WithBroadcaster sets the invalidation bus. Machines sharing it converge
// after every mutation. Defaults to [DefaultBroadcaster].
func (b *Builder) WithBroadcaster(bus *Broadcaster) *Builder {
	b.bus = bus
	return b
}

// WithAuditSink sets the audit destination and enables auditing.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	b.config.Audit.Enabled = sink != nil
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration, restores persisted state and starts
// the invalidation listener. The machine is ready when Build returns; the
// caller owns it and must call [Machine.Close].
func (b *Builder) Build() (*Machine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.provider == nil {
		return nil, errors.New("provider required")
	}

	storage := b.storage
	if storage == nil {
		storage = NewMemoryStorage(cfg.Storage.CacheTTL)
	}
	bus := b.bus
	if bus == nil {
		bus = DefaultBroadcaster
	}

	sink := b.auditSink
	if sink == nil {
		sink = NoOpSink{}
	}

	m := &Machine{
		config:   cfg,
		provider: b.provider,
		storage:  storage,
		keys:     newStorageKeys(cfg.Storage.KeyPrefix),
		bus:      bus,
		audit:    newAuditDispatcher(cfg.Audit, sink),
		metrics:  NewMetrics(cfg.Metrics),
		state:    StateUnauthenticated,
		stage:    StageLogin,
		done:     make(chan struct{}),
	}
	if cfg.Stage.Default.valid() {
		m.stage = cfg.Stage.Default
	}

	m.subID, m.subCh = bus.Subscribe()
	m.wg.Add(1)
	go m.listen()

	m.restore(context.Background())

	b.built = true
	return m, nil
}
