package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/2389/shopdb/internal/blockstore"
	"github.com/2389/shopdb/internal/engine"
	"github.com/2389/shopdb/internal/query"
)

// flushCounter counts scheduled flushes.
type flushCounter struct {
	n atomic.Int64
}

func (c *flushCounter) ScheduleFlush() { c.n.Add(1) }

func (c *flushCounter) Load() int64 { return c.n.Load() }

// stepClock advances one second per reading.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func newStepClock() *stepClock {
	return &stepClock{now: time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

// setupTestStore opens an engine session on in-memory blocks and returns a
// Store on top of it together with its flush counter.
func setupTestStore(t *testing.T, schema engine.SchemaDescriptor, seeder engine.Seeder) (*Store, *flushCounter) {
	t.Helper()
	sess := engine.NewSession(engine.Config{
		Identity: "test",
		Key:      "test",
		Schema:   schema,
		Seeder:   seeder,
	}, blockstore.NewMemory(), nil)
	_, err := sess.Open(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { sess.Close() })

	flushes := &flushCounter{}
	s := New(query.New(sess, flushes, nil),
		WithSchema(schema),
		WithBcryptCost(bcrypt.MinCost),
		WithClock(newStepClock().Now),
	)
	return s, flushes
}

func setupTenantStore(t *testing.T) (*Store, *flushCounter) {
	return setupTestStore(t, TenantSchema(), nil)
}

func countRows(t *testing.T, s *Store, table string) int {
	t.Helper()
	var n int
	err := s.q.Read(context.Background(), func(q query.Querier) error {
		return q.QueryRowContext(context.Background(), `SELECT count(*) FROM `+table).Scan(&n)
	})
	require.NoError(t, err)
	return n
}

func auditCount(t *testing.T, s *Store) int {
	t.Helper()
	return countRows(t, s, "login_events") + countRows(t, s, "activity_events") + countRows(t, s, "transaction_events")
}

func TestStore_AddUser_GeneratesPrefixedID(t *testing.T) {
	s, _ := setupTenantStore(t)
	ctx := context.Background()

	customer := &User{Name: "Mona", Email: "Mona@Example.com"}
	require.NoError(t, s.AddUser(ctx, customer, "secret"))
	assert.Regexp(t, `^usr_`, customer.ID)
	assert.Equal(t, "mona@example.com", customer.Email)
	assert.NotEqual(t, "secret", customer.PasswordHash)

	admin := &User{Name: "Root", Email: "root@example.com", Role: RoleAdmin}
	require.NoError(t, s.AddUser(ctx, admin, "secret"))
	assert.Regexp(t, `^adm_`, admin.ID)

	got, err := s.GetUser(ctx, customer.ID)
	require.NoError(t, err)
	assert.Equal(t, "Mona", got.Name)
	assert.Equal(t, RoleCustomer, got.Role)
	assert.Nil(t, got.LastLoginAt)

	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 2)
}

func TestStore_AddUser_IDRoleMismatch(t *testing.T) {
	s, flushes := setupTenantStore(t)

	err := s.AddUser(context.Background(), &User{ID: "usr_1", Email: "a@example.com", Role: RoleAdmin}, "")
	assert.ErrorIs(t, err, ErrIDRoleMismatch)

	err = s.AddUser(context.Background(), &User{ID: "adm_1", Email: "b@example.com"}, "")
	assert.ErrorIs(t, err, ErrIDRoleMismatch)

	assert.Zero(t, flushes.Load())
	assert.Zero(t, countRows(t, s, "users"))
}

func TestStore_AddUser_DuplicateEmailIgnoresCase(t *testing.T) {
	s, _ := setupTenantStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddUser(ctx, &User{Email: "dup@example.com"}, ""))
	err := s.AddUser(ctx, &User{Email: "DUP@Example.COM"}, "")
	assert.ErrorIs(t, err, ErrEmailExists)
}

func TestStore_FindUserByEmail(t *testing.T) {
	s, _ := setupTenantStore(t)
	ctx := context.Background()

	u := &User{Name: "Straße", Email: "Strasse@Example.com"}
	require.NoError(t, s.AddUser(ctx, u, ""))

	found, err := s.FindUserByEmail(ctx, "  STRASSE@example.COM ")
	require.NoError(t, err)
	require.True(t, found.IsPresent())
	assert.Equal(t, u.ID, found.MustGet().ID)

	missing, err := s.FindUserByEmail(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.True(t, missing.IsAbsent())
}

func TestStore_GetUser_NotFound(t *testing.T) {
	s, _ := setupTenantStore(t)
	_, err := s.GetUser(context.Background(), "usr_missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_UpdateUserProfile(t *testing.T) {
	s, _ := setupTenantStore(t)
	ctx := context.Background()

	u := &User{Name: "Old", Email: "p@example.com"}
	require.NoError(t, s.AddUser(ctx, u, ""))
	require.NoError(t, s.UpdateUserProfile(ctx, u.ID, "New", "+20100"))

	got, err := s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "New", got.Name)
	assert.Equal(t, "+20100", got.Phone)

	assert.ErrorIs(t, s.UpdateUserProfile(ctx, "usr_missing", "x", ""), ErrNotFound)
}

func TestStore_SignupLoginLogout(t *testing.T) {
	s, _ := setupTenantStore(t)
	ctx := context.Background()

	u, err := s.Signup(ctx, "Sara", "sara@example.com", "pa55word", "")
	require.NoError(t, err)
	sess, err := s.GetActiveSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, u.ID, sess.MustGet().UserID)

	require.NoError(t, s.Logout(ctx))
	sess, err = s.GetActiveSession(ctx)
	require.NoError(t, err)
	assert.True(t, sess.IsAbsent())

	_, err = s.Login(ctx, "sara@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = s.Login(ctx, "ghost@example.com", "pa55word")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	logged, err := s.Login(ctx, "SARA@example.com", "pa55word")
	require.NoError(t, err)
	assert.Equal(t, u.ID, logged.ID)
	require.NotNil(t, logged.LastLoginAt)

	stored, err := s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastLoginAt)
	assert.True(t, stored.LastLoginAt.Equal(*logged.LastLoginAt))

	sess, err = s.GetActiveSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, u.ID, sess.MustGet().UserID)

	events, err := s.ListLoginEvents(ctx, AuditFilter{})
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.True(t, events[0].Success)
	assert.False(t, events[1].Success)
	assert.Empty(t, events[1].UserID)
	assert.False(t, events[2].Success)
	assert.Equal(t, u.ID, events[2].UserID)
}

func TestStore_Signup_RequiresPassword(t *testing.T) {
	s, _ := setupTenantStore(t)
	_, err := s.Signup(context.Background(), "x", "x@example.com", "", "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestStore_ActiveSession(t *testing.T) {
	s, _ := setupTenantStore(t)
	ctx := context.Background()

	sess, err := s.GetActiveSession(ctx)
	require.NoError(t, err)
	assert.True(t, sess.IsAbsent())

	require.NoError(t, s.SetActiveSession(ctx, "usr_a"))
	require.NoError(t, s.SetActiveSession(ctx, "usr_b"))
	sess, err = s.GetActiveSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, "usr_b", sess.MustGet().UserID)
	assert.Equal(t, 1, countRows(t, s, "sessions"))

	require.NoError(t, s.ClearActiveSession(ctx))
	sess, err = s.GetActiveSession(ctx)
	require.NoError(t, err)
	assert.True(t, sess.IsAbsent())

	assert.ErrorIs(t, s.SetActiveSession(ctx, ""), ErrInvalidInput)
}

func TestStore_DeleteUser_Cascades(t *testing.T) {
	s, _ := setupTenantStore(t)
	ctx := context.Background()

	u := &User{Email: "gone@example.com"}
	other := &User{Email: "stays@example.com"}
	require.NoError(t, s.AddUser(ctx, u, ""))
	require.NoError(t, s.AddUser(ctx, other, ""))

	for _, id := range []string{u.ID, other.ID} {
		require.NoError(t, s.AddAddress(ctx, &Address{UserID: id, Line1: "1 Nile St", City: "Cairo"}))
		require.NoError(t, s.AddSavedCard(ctx, &SavedCard{UserID: id, Brand: "visa", Last4: "4242"}))
		require.NoError(t, s.SaveCart(ctx, &SavedCart{UserID: id, Name: "later", Items: []OrderItem{{ProductID: "prd_1", Quantity: 1}}}))
		require.NoError(t, s.AddFavorite(ctx, id, "prd_1"))
	}
	require.NoError(t, s.SetActiveSession(ctx, u.ID))
	auditBefore := auditCount(t, s)
	actorFilter := AuditFilter{Actor: &u.ID}
	activityBefore, err := s.ListActivityEvents(ctx, actorFilter)
	require.NoError(t, err)

	require.NoError(t, s.DeleteUser(ctx, u.ID))

	_, err = s.GetUser(ctx, u.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	addrs, err := s.ListAddresses(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, addrs)
	cards, err := s.ListSavedCards(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, cards)
	carts, err := s.ListSavedCarts(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, carts)
	favs, err := s.ListFavorites(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, favs)
	sess, err := s.GetActiveSession(ctx)
	require.NoError(t, err)
	assert.True(t, sess.IsAbsent())

	// The other user's rows are untouched.
	addrs, err = s.ListAddresses(ctx, other.ID)
	require.NoError(t, err)
	assert.Len(t, addrs, 1)
	favs, err = s.ListFavorites(ctx, other.ID)
	require.NoError(t, err)
	assert.Len(t, favs, 1)

	// Audit records naming the deleted user survive.
	assert.Equal(t, auditBefore+1, auditCount(t, s))
	activityAfter, err := s.ListActivityEvents(ctx, actorFilter)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(activityAfter), len(activityBefore))

	assert.ErrorIs(t, s.DeleteUser(ctx, u.ID), ErrNotFound)
}

func TestStore_DeleteUser_PrivilegedSchema(t *testing.T) {
	s, _ := setupTestStore(t, PrivilegedSchema(), nil)
	ctx := context.Background()

	admin := &User{Email: "ops@example.com", Role: RoleAdmin}
	require.NoError(t, s.AddUser(ctx, admin, "x"))
	require.NoError(t, s.DeleteUser(ctx, admin.ID))
	assert.Zero(t, countRows(t, s, "users"))
}

func TestStore_WritesScheduleOneFlushReadsNone(t *testing.T) {
	s, flushes := setupTenantStore(t)
	ctx := context.Background()

	u := &User{Email: "f@example.com"}
	require.NoError(t, s.AddUser(ctx, u, ""))
	assert.Equal(t, int64(1), flushes.Load())

	require.NoError(t, s.AddAddress(ctx, &Address{UserID: u.ID, Line1: "x", IsDefault: true}))
	assert.Equal(t, int64(2), flushes.Load())

	_, err := s.ListAddresses(ctx, u.ID)
	require.NoError(t, err)
	_, err = s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	_, err = s.ListActivityEvents(ctx, AuditFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), flushes.Load())

	// A rejected write schedules nothing.
	assert.Error(t, s.AddUser(ctx, &User{Email: "f@example.com"}, ""))
	assert.Equal(t, int64(2), flushes.Load())
}
