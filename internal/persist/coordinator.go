// ABOUTME: Persistence coordinator with a coalescing flush worker and backup ticker
// ABOUTME: Writes engine snapshots to block storage and publishes change notifications

package persist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/2389/shopdb/internal/blockstore"
	"github.com/2389/shopdb/internal/notify"
)

// DefaultBackupInterval is the backup ticker period when none is configured.
const DefaultBackupInterval = 10 * time.Minute

// backupTimeFormat sorts lexicographically in time order.
const backupTimeFormat = "20060102T150405.000Z"

// ErrClosed is returned by synchronous operations after Close.
var ErrClosed = errors.New("coordinator closed")

// Source is the engine being persisted.
type Source interface {
	Identity() string
	Key() string
	Snapshot(ctx context.Context) ([]byte, error)
}

// Publisher receives change notifications.
type Publisher interface {
	Publish(ev notify.Event)
}

// Options configures a Coordinator.
type Options struct {
	BackupInterval time.Duration
	Clock          func() time.Time
	Logger         *slog.Logger
}

// Stats counts coordinator activity.
type Stats struct {
	FlushesScheduled int64
	FlushesCompleted int64
	FlushesFailed    int64
	BackupsWritten   int64
	BackupsFailed    int64
}

// Coordinator persists one instance.
type Coordinator struct {
	src      Source
	blocks   blockstore.BlockStore
	bus      Publisher
	interval time.Duration
	clock    func() time.Time
	logger   *slog.Logger

	kick   chan struct{}
	stop   chan struct{}
	done   chan struct{}
	closed atomic.Bool
	once   sync.Once

	flushMu sync.Mutex // one flush at a time

	backupMu      sync.Mutex
	backupStarted bool
	backupStop    chan struct{}
	backupDone    chan struct{}

	keyMu      sync.Mutex
	lastBackup time.Time

	scheduled   atomic.Int64
	completed   atomic.Int64
	failed      atomic.Int64
	backups     atomic.Int64
	backupFails atomic.Int64
}

// New creates a coordinator and starts its flush worker.
// bus may be nil when nobody listens for change notifications.
func New(src Source, blocks blockstore.BlockStore, bus Publisher, opts Options) *Coordinator {
	if opts.BackupInterval <= 0 {
		opts.BackupInterval = DefaultBackupInterval
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	c := &Coordinator{
		src:        src,
		blocks:     blocks,
		bus:        bus,
		interval:   opts.BackupInterval,
		clock:      opts.Clock,
		logger:     opts.Logger.With("component", "persist", "instance", src.Identity()),
		kick:       make(chan struct{}, 1),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		backupStop: make(chan struct{}),
		backupDone: make(chan struct{}),
	}
	go c.run()
	return c
}

// ScheduleFlush requests a flush without waiting for it. It also starts
// the backup ticker on first use.
func (c *Coordinator) ScheduleFlush() {
	if c.closed.Load() {
		c.logger.Debug("flush requested after close, ignoring")
		return
	}
	c.scheduled.Add(1)
	c.StartBackups()

	select {
	case c.kick <- struct{}{}:
	default:
		// A flush is already pending and will include this write.
	}
}

func (c *Coordinator) run() {
	defer close(c.done)
	ctx := context.Background()

	for {
		select {
		case <-c.kick:
			_ = c.Flush(ctx)
		case <-c.stop:
			select {
			case <-c.kick:
				_ = c.Flush(ctx)
			default:
			}
			return
		}
	}
}

// Flush writes the current engine under the primary key and publishes a
// change notification. Failures are logged and counted before being
// returned; the worker discards them.
func (c *Coordinator) Flush(ctx context.Context) error {
	c.flushMu.Lock()
	defer c.flushMu.Unlock()

	data, err := c.src.Snapshot(ctx)
	if err != nil {
		c.failed.Add(1)
		c.logger.Error("snapshot for flush failed", "error", err)
		return fmt.Errorf("snapshotting engine: %w", err)
	}

	if err := c.blocks.Put(ctx, c.src.Key(), data); err != nil {
		c.failed.Add(1)
		c.logger.Error("flush failed", "key", c.src.Key(), "error", err)
		return fmt.Errorf("storing image: %w", err)
	}

	c.completed.Add(1)
	c.logger.Debug("flushed", "key", c.src.Key(), "size", len(data))

	if c.bus != nil {
		c.bus.Publish(notify.Event{
			Name:     notify.EventStoreChanged,
			Identity: c.src.Identity(),
			At:       c.clock().UTC(),
		})
	}
	return nil
}

// StartBackups starts the backup ticker. Calling it again is a no-op.
func (c *Coordinator) StartBackups() {
	c.backupMu.Lock()
	defer c.backupMu.Unlock()
	if c.backupStarted || c.closed.Load() {
		return
	}
	c.backupStarted = true

	go func() {
		defer close(c.backupDone)
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				_, _ = c.BackupNow(context.Background())
			case <-c.backupStop:
				return
			}
		}
	}()

	c.logger.Info("backup rotation started", "interval", c.interval)
}

// BackupsRunning reports whether the backup ticker has started.
func (c *Coordinator) BackupsRunning() bool {
	c.backupMu.Lock()
	defer c.backupMu.Unlock()
	return c.backupStarted
}

// BackupNow stores one backup snapshot and returns its key.
func (c *Coordinator) BackupNow(ctx context.Context) (string, error) {
	data, err := c.src.Snapshot(ctx)
	if err != nil {
		c.backupFails.Add(1)
		c.logger.Error("snapshot for backup failed", "error", err)
		return "", fmt.Errorf("snapshotting engine: %w", err)
	}

	key := c.nextBackupKey()
	if err := c.blocks.Put(ctx, key, data); err != nil {
		c.backupFails.Add(1)
		c.logger.Error("backup failed", "key", key, "error", err)
		return "", fmt.Errorf("storing backup: %w", err)
	}

	c.backups.Add(1)
	c.logger.Info("stored backup", "key", key, "size", len(data))
	return key, nil
}

// BackupPrefix is the key prefix shared by this instance's backups.
func (c *Coordinator) BackupPrefix() string {
	return c.src.Key() + "_backup_"
}

// Backups lists stored backup keys, oldest first.
func (c *Coordinator) Backups(ctx context.Context) ([]string, error) {
	return c.blocks.List(ctx, c.BackupPrefix())
}

func (c *Coordinator) nextBackupKey() string {
	c.keyMu.Lock()
	defer c.keyMu.Unlock()

	ts := c.clock().UTC().Truncate(time.Millisecond)
	if !ts.After(c.lastBackup) {
		ts = c.lastBackup.Add(time.Millisecond)
	}
	c.lastBackup = ts
	return c.BackupPrefix() + ts.Format(backupTimeFormat)
}

// Stats returns a snapshot of the activity counters.
func (c *Coordinator) Stats() Stats {
	return Stats{
		FlushesScheduled: c.scheduled.Load(),
		FlushesCompleted: c.completed.Load(),
		FlushesFailed:    c.failed.Load(),
		BackupsWritten:   c.backups.Load(),
		BackupsFailed:    c.backupFails.Load(),
	}
}

// Close stops the backup ticker, runs any pending flush, and stops the worker.
func (c *Coordinator) Close() {
	c.once.Do(func() {
		c.closed.Store(true)

		c.backupMu.Lock()
		started := c.backupStarted
		c.backupMu.Unlock()
		close(c.backupStop)
		if started {
			<-c.backupDone
		}

		close(c.stop)
		<-c.done
		c.logger.Debug("coordinator closed", "stats", c.Stats())
	})
}
