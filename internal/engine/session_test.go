// ABOUTME: Tests for the engine session lifecycle
// ABOUTME: Covers cold start seeding, idempotent open, reload of small and large images, and unreadable images

package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/shopdb/internal/blockstore"
	"github.com/2389/shopdb/internal/image"
)

// userSeeder inserts one bootstrap user when the users table is empty.
type userSeeder struct {
	seeded int
}

func (s *userSeeder) NeedsSeed(ctx context.Context, db *sql.DB) (bool, error) {
	var n int
	if err := db.QueryRowContext(ctx, `SELECT count(*) FROM users`).Scan(&n); err != nil {
		return false, err
	}
	return n == 0, nil
}

func (s *userSeeder) Seed(ctx context.Context, db *sql.DB) error {
	s.seeded++
	_, err := db.ExecContext(ctx, `INSERT INTO users (id, email, role) VALUES ('adm_boot', 'admin@example.com', 'admin')`)
	return err
}

func newTestSession(blocks blockstore.BlockStore, seeder Seeder) *Session {
	return NewSession(Config{
		Identity: "privileged",
		Key:      "privileged",
		Schema:   testSchema,
		Seeder:   seeder,
	}, blocks, nil)
}

type failingGets struct {
	*blockstore.Memory
}

func (f failingGets) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("storage unavailable")
}

func TestSession_ColdStartSeeds(t *testing.T) {
	ctx := context.Background()
	seeder := &userSeeder{}
	s := newTestSession(blockstore.NewMemory(), seeder)
	assert.Equal(t, StateUninitialized, s.State())

	db, err := s.Open(ctx)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, StateReady, s.State())
	assert.Equal(t, 1, seeder.seeded)
	assert.Equal(t, 1, countRows(t, db, "users"))
}

func TestSession_OpenIsIdempotent(t *testing.T) {
	ctx := context.Background()
	seeder := &userSeeder{}
	s := newTestSession(blockstore.NewMemory(), seeder)
	defer s.Close()

	first, err := s.Open(ctx)
	require.NoError(t, err)
	second, err := s.Open(ctx)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, seeder.seeded)
}

func TestSession_LoadsPersistedImageWithoutReseeding(t *testing.T) {
	ctx := context.Background()
	blocks := blockstore.NewMemory()

	first := newTestSession(blocks, &userSeeder{})
	db, err := first.Open(ctx)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO users (id, email) VALUES ('usr_1', 'shopper@example.com')`)
	require.NoError(t, err)

	data, err := first.Snapshot(ctx)
	require.NoError(t, err)
	require.NoError(t, blocks.Put(ctx, "privileged", data))
	require.NoError(t, first.Close())

	seeder := &userSeeder{}
	second := newTestSession(blocks, seeder)
	db, err = second.Open(ctx)
	require.NoError(t, err)
	defer second.Close()

	assert.Zero(t, seeder.seeded)
	assert.Equal(t, 2, countRows(t, db, "users"))
}

func TestSession_UnreadableImageStartsFreshAndIsPreserved(t *testing.T) {
	ctx := context.Background()
	blocks := blockstore.NewMemory()
	require.NoError(t, blocks.Put(ctx, "privileged", []byte("garbage")))

	s := newTestSession(blocks, &userSeeder{})
	db, err := s.Open(ctx)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, 1, countRows(t, db, "users"))

	keys, err := blocks.List(ctx, "privileged_corrupt_")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	data, _, err := blocks.Get(ctx, keys[0])
	require.NoError(t, err)
	assert.Equal(t, []byte("garbage"), data)
}

func TestSession_StorageReadFailureIsNotFatal(t *testing.T) {
	s := newTestSession(failingGets{blockstore.NewMemory()}, &userSeeder{})

	db, err := s.Open(context.Background())
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, 1, countRows(t, db, "users"))
}

func TestSession_AcquireBeforeOpen(t *testing.T) {
	s := newTestSession(blockstore.NewMemory(), nil)

	_, release, err := s.Acquire()
	release()
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestSession_Replace(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(blockstore.NewMemory(), &userSeeder{})
	old, err := s.Open(ctx)
	require.NoError(t, err)
	defer s.Close()

	next, err := image.NewEngine(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Replace(next))

	db, release, err := s.Acquire()
	require.NoError(t, err)
	assert.Same(t, next, db)
	release()

	assert.Error(t, old.PingContext(ctx), "replaced engine should be closed")
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "uninitialized", StateUninitialized.String())
	assert.Equal(t, "loading", StateLoading.String())
	assert.Equal(t, "ready", StateReady.String())
}

func TestSession_ReloadsLargeImageAndCloses(t *testing.T) {
	ctx := context.Background()
	blocks := blockstore.NewMemory()

	first := newTestSession(blocks, &userSeeder{})
	db, err := first.Open(ctx)
	require.NoError(t, err)
	assert.True(t, first.Seeded())

	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	for i := 0; i < 400; i++ {
		_, err := tx.Exec(`INSERT INTO users (id, email) VALUES (?, ?)`,
			fmt.Sprintf("usr_%03d", i), fmt.Sprintf("%s%d@example.com", strings.Repeat("s", 200), i))
		require.NoError(t, err)
	}
	require.NoError(t, tx.Commit())

	data, err := first.Snapshot(ctx)
	require.NoError(t, err)
	require.NoError(t, blocks.Put(ctx, "privileged", data))
	require.NoError(t, first.Close())

	second := newTestSession(blocks, &userSeeder{})
	db, err = second.Open(ctx)
	require.NoError(t, err)
	assert.False(t, second.Seeded())
	assert.Equal(t, 401, countRows(t, db, "users"))

	_, err = db.Exec(`INSERT INTO users (id, email) VALUES ('usr_late', 'late@example.com')`)
	require.NoError(t, err)
	require.NoError(t, second.Close())

	candidate, err := image.Deserialize(ctx, data)
	require.NoError(t, err)
	third := newTestSession(blocks, &userSeeder{})
	_, err = third.Open(ctx)
	require.NoError(t, err)
	require.NoError(t, third.Replace(candidate))
	require.NoError(t, third.Close())
}
