// ABOUTME: Engine session owning one live in-memory engine, its storage key, and seed data
// ABOUTME: Loads the persisted image on first use, ensures schema, and seeds empty stores

package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/2389/shopdb/internal/blockstore"
	"github.com/2389/shopdb/internal/image"
)

// ErrNotReady is returned when the engine is used before Open succeeds.
var ErrNotReady = errors.New("engine session not ready")

// State is the lifecycle state of a Session.
type State int32

const (
	StateUninitialized State = iota
	StateLoading
	StateReady
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Seeder populates default rows in a freshly created store.
type Seeder interface {
	// NeedsSeed reports whether the primary seed rows are absent.
	NeedsSeed(ctx context.Context, db *sql.DB) (bool, error)
	// Seed inserts the default rows.
	Seed(ctx context.Context, db *sql.DB) error
}

// Config describes the engine a Session owns.
type Config struct {
	Identity string
	Key      string
	Schema   SchemaDescriptor
	Seeder   Seeder // optional
}

// Session owns one live engine. Statement execution holds the read side
// of mu; swapping the engine (import) takes the write side.
type Session struct {
	cfg    Config
	blocks blockstore.BlockStore
	logger *slog.Logger

	openMu sync.Mutex
	state  atomic.Int32
	seeded atomic.Bool

	mu sync.RWMutex
	db *sql.DB
}

// NewSession creates an uninitialized session. Pass nil logger for default.
func NewSession(cfg Config, blocks blockstore.BlockStore, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		cfg:    cfg,
		blocks: blocks,
		logger: logger.With("component", "engine", "instance", cfg.Identity),
	}
}

// Identity returns the instance identity the session belongs to.
func (s *Session) Identity() string { return s.cfg.Identity }

// Key returns the primary storage key.
func (s *Session) Key() string { return s.cfg.Key }

// Schema returns the schema descriptor applied on open and import.
func (s *Session) Schema() SchemaDescriptor { return s.cfg.Schema }

// State returns the current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

// Seeded reports whether loading inserted seed data.
func (s *Session) Seeded() bool { return s.seeded.Load() }

// Open loads the engine on first use and returns it. Calls made while
// the session is Ready return the same handle without reloading.
func (s *Session) Open(ctx context.Context) (*sql.DB, error) {
	s.openMu.Lock()
	defer s.openMu.Unlock()

	if s.State() == StateReady {
		s.mu.RLock()
		defer s.mu.RUnlock()
		return s.db, nil
	}

	s.state.Store(int32(StateLoading))
	db, err := s.load(ctx)
	if err != nil {
		s.state.Store(int32(StateUninitialized))
		return nil, err
	}

	s.mu.Lock()
	s.db = db
	s.mu.Unlock()
	s.state.Store(int32(StateReady))

	s.logger.Info("engine session ready", "key", s.cfg.Key)
	return db, nil
}

func (s *Session) load(ctx context.Context) (*sql.DB, error) {
	data, ok, err := s.blocks.Get(ctx, s.cfg.Key)
	if err != nil {
		// Storage is best-effort; start from an empty engine.
		s.logger.Error("reading persisted image", "key", s.cfg.Key, "error", err)
		ok = false
	}

	var db *sql.DB
	if ok {
		db, err = image.Deserialize(ctx, data)
		if err != nil {
			s.logger.Error("persisted image unreadable, starting fresh", "key", s.cfg.Key, "error", err)
			s.preserveCorrupt(ctx, data)
			db = nil
		} else {
			s.logger.Debug("loaded persisted image", "key", s.cfg.Key, "size", len(data))
		}
	}
	if db == nil {
		db, err = image.NewEngine(ctx)
		if err != nil {
			return nil, err
		}
	}

	if err := s.Prepare(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	if s.cfg.Seeder != nil {
		need, err := s.cfg.Seeder.NeedsSeed(ctx, db)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("checking seed rows: %w", err)
		}
		if need {
			if err := s.cfg.Seeder.Seed(ctx, db); err != nil {
				db.Close()
				return nil, fmt.Errorf("seeding %s store: %w", s.cfg.Identity, err)
			}
			s.seeded.Store(true)
			s.logger.Info("seeded default data")
		}
	}
	return db, nil
}

// preserveCorrupt keeps an unreadable image under a side key so the fresh
// engine's first flush does not destroy it.
func (s *Session) preserveCorrupt(ctx context.Context, data []byte) {
	key := fmt.Sprintf("%s_corrupt_%s", s.cfg.Key, time.Now().UTC().Format("20060102T150405.000000000Z"))
	if err := s.blocks.Put(ctx, key, data); err != nil {
		s.logger.Error("preserving unreadable image", "key", key, "error", err)
		return
	}
	s.logger.Warn("preserved unreadable image", "key", key)
}

// Prepare applies the session schema to db.
func (s *Session) Prepare(ctx context.Context, db *sql.DB) error {
	if _, err := Ensure(ctx, db, s.cfg.Schema, s.logger); err != nil {
		return fmt.Errorf("ensuring schema: %w", err)
	}
	return nil
}

// Acquire returns the live engine with the read lock held. The returned
// release function must be called when the caller is done with db.
func (s *Session) Acquire() (*sql.DB, func(), error) {
	s.mu.RLock()
	if s.db == nil {
		s.mu.RUnlock()
		return nil, func() {}, ErrNotReady
	}
	return s.db, s.mu.RUnlock, nil
}

// Snapshot serializes the live engine.
func (s *Session) Snapshot(ctx context.Context) ([]byte, error) {
	db, release, err := s.Acquire()
	if err != nil {
		return nil, err
	}
	defer release()
	return image.Serialize(ctx, db, s.cfg.Identity)
}

// Replace makes db the live engine and closes the previous one.
func (s *Session) Replace(db *sql.DB) error {
	s.mu.Lock()
	old := s.db
	if old == nil {
		s.mu.Unlock()
		return ErrNotReady
	}
	s.db = db
	s.mu.Unlock()

	if err := old.Close(); err != nil {
		s.logger.Warn("closing replaced engine", "error", err)
	}
	s.logger.Info("replaced live engine")
	return nil
}

// Close closes the live engine. The session returns to Uninitialized.
func (s *Session) Close() error {
	s.openMu.Lock()
	defer s.openMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	s.state.Store(int32(StateUninitialized))
	return err
}
