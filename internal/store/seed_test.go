package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/2389/shopdb/internal/engine"
	"github.com/2389/shopdb/internal/image"
)

func TestPrivilegedSeeder_Bootstrap(t *testing.T) {
	seeder := &PrivilegedSeeder{Cost: bcrypt.MinCost}
	s, _ := setupTestStore(t, PrivilegedSchema(), seeder)
	ctx := context.Background()

	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, RoleAdmin, users[0].Role)
	assert.Regexp(t, `^adm_`, users[0].ID)
	assert.Equal(t, DefaultAdminEmail, users[0].Email)

	products, err := s.ListProducts(ctx, "")
	require.NoError(t, err)
	assert.Len(t, products, len(starterCatalog))
	for _, p := range products {
		assert.NotEmpty(t, p.NameEN)
		assert.NotEmpty(t, p.NameAR)
		assert.NoError(t, p.Validate())
	}

	u, err := s.Login(ctx, DefaultAdminEmail, DefaultAdminPassword)
	require.NoError(t, err)
	assert.Equal(t, users[0].ID, u.ID)
}

func TestPrivilegedSeeder_ConfiguredCredentials(t *testing.T) {
	seeder := &PrivilegedSeeder{Email: "Owner@Shop.example", Password: "hunter22", Cost: bcrypt.MinCost}
	s, _ := setupTestStore(t, PrivilegedSchema(), seeder)

	_, err := s.Login(context.Background(), "owner@shop.example", "hunter22")
	require.NoError(t, err)
	_, err = s.Login(context.Background(), DefaultAdminEmail, DefaultAdminPassword)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestPrivilegedSeeder_SkipsWhenAdminExists(t *testing.T) {
	ctx := context.Background()
	db, err := image.NewEngine(ctx)
	require.NoError(t, err)
	defer db.Close()
	_, err = engine.Ensure(ctx, db, PrivilegedSchema(), nil)
	require.NoError(t, err)

	seeder := &PrivilegedSeeder{Cost: bcrypt.MinCost}
	need, err := seeder.NeedsSeed(ctx, db)
	require.NoError(t, err)
	assert.True(t, need)

	require.NoError(t, seeder.Seed(ctx, db))
	need, err = seeder.NeedsSeed(ctx, db)
	require.NoError(t, err)
	assert.False(t, need)

	// An admin-less store that already has products only gets the admin.
	_, err = db.ExecContext(ctx, `DELETE FROM users`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `DELETE FROM products WHERE id != 'prd_seed_01'`)
	require.NoError(t, err)
	require.NoError(t, seeder.Seed(ctx, db))

	var admins, products int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT count(*) FROM users WHERE role = 'admin'`).Scan(&admins))
	require.NoError(t, db.QueryRowContext(ctx, `SELECT count(*) FROM products`).Scan(&products))
	assert.Equal(t, 1, admins)
	assert.Equal(t, 1, products)
}
