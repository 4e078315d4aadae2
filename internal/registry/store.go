package registry

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ErrNotLoaded is returned when a snapshot is requested before the first
// successful load.
var ErrNotLoaded = errors.New("registry: no snapshot loaded")

// Source produces registry snapshots from some backing configuration store.
type Source interface {
	Load(ctx context.Context) (*Snapshot, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context) (*Snapshot, error)

// Load implements Source.
func (f SourceFunc) Load(ctx context.Context) (*Snapshot, error) { return f(ctx) }

// Store publishes the current registry snapshot through an atomic pointer so
// in-flight requests always observe one consistent table, never a partially
// applied reload. A failed reload keeps the previous snapshot live.
type Store struct {
	source  Source
	logger  *zap.Logger
	now     func() time.Time
	current atomic.Pointer[Snapshot]
}

// StoreOption customises Store construction.
type StoreOption func(*Store)

// WithLogger attaches a logger used for reload outcomes.
func WithLogger(logger *zap.Logger) StoreOption {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock injects a custom clock, primarily for tests.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore constructs a Store reading from the given source. No snapshot is
// loaded until Reload is called.
func NewStore(source Source, opts ...StoreOption) (*Store, error) {
	if source == nil {
		return nil, errors.New("registry: source is required")
	}
	store := &Store{
		source: source,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store, nil
}

// Reload fetches, validates, and atomically publishes a fresh snapshot.
// On any failure the previously published snapshot remains in effect.
func (s *Store) Reload(ctx context.Context) error {
	snapshot, err := s.source.Load(ctx)
	if err != nil {
		s.logger.Warn("registry reload failed", zap.Error(err))
		return fmt.Errorf("registry: load snapshot: %w", err)
	}
	snapshot.normalise()
	if err := snapshot.Validate(); err != nil {
		s.logger.Warn("registry snapshot rejected", zap.Error(err))
		return err
	}
	snapshot.LoadedAt = s.now().UTC()
	s.current.Store(snapshot)
	s.logger.Info("registry snapshot published",
		zap.String("version", snapshot.Version),
		zap.Int("partners", len(snapshot.Partners)),
		zap.Int("countries", len(snapshot.Zones)),
	)
	return nil
}

// Snapshot returns the currently published snapshot.
func (s *Store) Snapshot() (*Snapshot, error) {
	snapshot := s.current.Load()
	if snapshot == nil {
		return nil, ErrNotLoaded
	}
	return snapshot, nil
}

// Ready reports whether an initial snapshot has been published; used by the
// readiness probe.
func (s *Store) Ready() bool {
	return s.current.Load() != nil
}

// RunPeriodicReload re-publishes the snapshot on the given interval until the
// context is cancelled. Reload failures are logged and retried on the next
// tick; they never tear down the previous snapshot.
func (s *Store) RunPeriodicReload(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = s.Reload(ctx)
		}
	}
}
