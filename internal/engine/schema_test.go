// ABOUTME: Tests for schema descriptors and the schema ensurer
// ABOUTME: Covers idempotence, column backfill without data loss, rollback, and DDL rendering

package engine

import (
	"context"
	"database/sql"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/shopdb/internal/image"
)

var testSchema = SchemaDescriptor{Tables: []TableDef{
	{
		Name: "users",
		Columns: []ColumnDef{
			{Name: "id", Type: "TEXT", NotNull: true},
			{Name: "email", Type: "TEXT", NotNull: true},
			{Name: "role", Type: "TEXT", NotNull: true, Default: "'customer'"},
		},
		PrimaryKey: []string{"id"},
		Indexes: []IndexDef{
			{Name: "idx_users_email", Columns: []string{"email COLLATE NOCASE"}, Unique: true},
		},
	},
	{
		Name: "favorites",
		Columns: []ColumnDef{
			{Name: "user_id", Type: "TEXT", NotNull: true},
			{Name: "product_id", Type: "TEXT", NotNull: true},
		},
		PrimaryKey: []string{"user_id", "product_id"},
	},
}}

func newTestEngine(t *testing.T) *sql.DB {
	t.Helper()
	db, err := image.NewEngine(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func countRows(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow("SELECT count(*) FROM "+table).Scan(&n))
	return n
}

func TestEnsure_CreatesAllTables(t *testing.T) {
	db := newTestEngine(t)

	report, err := Ensure(context.Background(), db, testSchema, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"users", "favorites"}, report.CreatedTables)
	assert.Empty(t, report.AddedColumns)
}

func TestEnsure_IdempotentKeepsRows(t *testing.T) {
	ctx := context.Background()
	db := newTestEngine(t)

	_, err := Ensure(ctx, db, testSchema, nil)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO users (id, email) VALUES ('usr_1', 'a@example.com')`)
	require.NoError(t, err)

	report, err := Ensure(ctx, db, testSchema, nil)
	require.NoError(t, err)
	assert.False(t, report.Changed())
	assert.Equal(t, 1, countRows(t, db, "users"))
}

func TestEnsure_BackfillsMissingStructure(t *testing.T) {
	ctx := context.Background()
	db := newTestEngine(t)

	// An older image: users without role, no favorites table.
	_, err := db.Exec(`CREATE TABLE users (id TEXT PRIMARY KEY, email TEXT NOT NULL)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO users VALUES ('usr_1', 'a@example.com'), ('usr_2', 'b@example.com')`)
	require.NoError(t, err)

	report, err := Ensure(ctx, db, testSchema, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"favorites"}, report.CreatedTables)
	assert.Equal(t, []string{"users.role"}, report.AddedColumns)

	assert.Equal(t, 2, countRows(t, db, "users"))
	var role string
	require.NoError(t, db.QueryRow(`SELECT role FROM users WHERE id = 'usr_1'`).Scan(&role))
	assert.Equal(t, "customer", role)
}

func TestEnsure_FailureRollsBack(t *testing.T) {
	ctx := context.Background()
	db := newTestEngine(t)

	// Duplicate emails make the unique index impossible to build.
	_, err := db.Exec(`CREATE TABLE users (id TEXT PRIMARY KEY, email TEXT NOT NULL)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO users VALUES ('usr_1', 'a@example.com'), ('usr_2', 'A@example.com')`)
	require.NoError(t, err)

	_, err = Ensure(ctx, db, testSchema, nil)
	require.Error(t, err)

	var n int
	require.NoError(t, db.QueryRow(`SELECT count(*) FROM pragma_table_info('users') WHERE name = 'role'`).Scan(&n))
	assert.Zero(t, n, "role column must not survive a failed ensure")
	require.NoError(t, db.QueryRow(`SELECT count(*) FROM sqlite_master WHERE name = 'favorites'`).Scan(&n))
	assert.Zero(t, n)
}

func TestEnsure_MissingPrimaryKeyColumn(t *testing.T) {
	db := newTestEngine(t)

	_, err := db.Exec(`CREATE TABLE favorites (user_id TEXT NOT NULL)`)
	require.NoError(t, err)

	_, err = Ensure(context.Background(), db, testSchema, nil)
	assert.ErrorContains(t, err, "primary key column product_id")
}

func TestSchemaDescriptor_Table(t *testing.T) {
	tbl, ok := testSchema.Table("favorites")
	require.True(t, ok)
	assert.Equal(t, []string{"user_id", "product_id"}, tbl.PrimaryKey)

	_, ok = testSchema.Table("nope")
	assert.False(t, ok)
}

func TestSchemaDescriptor_DDL(t *testing.T) {
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, t.Name(), []byte(testSchema.DDL()))
}
