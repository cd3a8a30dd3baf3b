// ABOUTME: One store instance: engine session, persistence, query facade, and domain store
// ABOUTME: Built from a Profile and owned by the Registry for the life of the process

package instance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/shopdb/internal/blockstore"
	"github.com/2389/shopdb/internal/engine"
	"github.com/2389/shopdb/internal/notify"
	"github.com/2389/shopdb/internal/persist"
	"github.com/2389/shopdb/internal/query"
	"github.com/2389/shopdb/internal/store"
)

// Options configures instances.
type Options struct {
	BackupInterval time.Duration    // 0 means persist.DefaultBackupInterval
	Clock          func() time.Time // nil means time.Now
	BcryptCost     int              // 0 means bcrypt.DefaultCost
	Logger         *slog.Logger
}

// Instance is one isolated store.
type Instance struct {
	profile Profile
	blocks  blockstore.BlockStore
	session *engine.Session
	coord   *persist.Coordinator
	facade  *query.Facade
	store   *store.Store
	logger  *slog.Logger
}

// Open loads the instance described by p. bus may be nil.
func Open(ctx context.Context, p Profile, blocks blockstore.BlockStore, bus *notify.Bus, opts Options) (*Instance, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("instance", string(p.Identity))

	session := engine.NewSession(engine.Config{
		Identity: string(p.Identity),
		Key:      p.StorageKey,
		Schema:   p.Schema,
		Seeder:   p.Seeder,
	}, blocks, logger)
	if _, err := session.Open(ctx); err != nil {
		return nil, fmt.Errorf("opening %s instance: %w", p.Identity, err)
	}

	var pub persist.Publisher
	if bus != nil {
		pub = bus
	}
	coord := persist.New(session, blocks, pub, persist.Options{
		BackupInterval: opts.BackupInterval,
		Clock:          opts.Clock,
		Logger:         logger,
	})
	facade := query.New(session, coord, logger)
	if session.Seeded() {
		coord.ScheduleFlush()
	}

	storeOpts := []store.Option{store.WithSchema(p.Schema), store.WithLogger(logger)}
	if opts.Clock != nil {
		storeOpts = append(storeOpts, store.WithClock(opts.Clock))
	}
	if opts.BcryptCost != 0 {
		storeOpts = append(storeOpts, store.WithBcryptCost(opts.BcryptCost))
	}

	return &Instance{
		profile: p,
		blocks:  blocks,
		session: session,
		coord:   coord,
		facade:  facade,
		store:   store.New(facade, storeOpts...),
		logger:  logger.With("component", "instance"),
	}, nil
}

// Identity returns the instance identity.
func (i *Instance) Identity() Identity { return i.profile.Identity }

// Profile returns the profile the instance was opened with.
func (i *Instance) Profile() Profile { return i.profile }

// Store returns the typed domain store.
func (i *Instance) Store() *store.Store { return i.store }

// Query returns the raw statement facade used by administrative tooling.
func (i *Instance) Query() *query.Facade { return i.facade }

// Persistence returns the persistence coordinator.
func (i *Instance) Persistence() *persist.Coordinator { return i.coord }

// State returns the engine session state.
func (i *Instance) State() engine.State { return i.session.State() }

// Close flushes any pending write and closes the engine.
func (i *Instance) Close() error {
	i.coord.Close()
	return i.session.Close()
}
