// ABOUTME: Tests for the query facade
// ABOUTME: Covers flush scheduling on writes only, typed errors, and atomic batches

package query

import (
	"context"
	"database/sql"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/shopdb/internal/image"
)

type testEngine struct {
	db *sql.DB
}

func (e *testEngine) Acquire() (*sql.DB, func(), error) {
	if e.db == nil {
		return nil, func() {}, errors.New("not ready")
	}
	return e.db, func() {}, nil
}

type countingScheduler struct {
	n atomic.Int64
}

func (s *countingScheduler) ScheduleFlush() { s.n.Add(1) }

func newTestFacade(t *testing.T) (*Facade, *countingScheduler) {
	t.Helper()
	db, err := image.NewEngine(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE products (id TEXT PRIMARY KEY, name TEXT NOT NULL, price REAL NOT NULL CHECK (price >= 0))`)
	require.NoError(t, err)

	sched := &countingScheduler{}
	return New(&testEngine{db: db}, sched, nil), sched
}

func TestExecute_WriteSchedulesOneFlush(t *testing.T) {
	f, sched := newTestFacade(t)
	ctx := context.Background()

	res, err := f.Execute(ctx, `INSERT INTO products (id, name, price) VALUES (?, ?, ?)`, "p1", "Black soap", 4.5)
	require.NoError(t, err)
	assert.Equal(t, KindWrite, res.Kind)
	assert.Equal(t, int64(1), res.RowsAffected)
	assert.Equal(t, int64(1), sched.n.Load())

	_, err = f.Execute(ctx, `UPDATE products SET price = ? WHERE id = ?`, 5.0, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), sched.n.Load())
}

func TestExecute_ReadSchedulesNothing(t *testing.T) {
	f, sched := newTestFacade(t)
	ctx := context.Background()

	_, err := f.Execute(ctx, `INSERT INTO products VALUES ('p1', 'Black soap', 4.5), ('p2', 'Shea butter', 9)`)
	require.NoError(t, err)
	before := sched.n.Load()

	res, err := f.Execute(ctx, `SELECT id, name, price FROM products ORDER BY id`)
	require.NoError(t, err)
	assert.Equal(t, KindRows, res.Kind)
	assert.Equal(t, []string{"id", "name", "price"}, res.Columns)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, "p1", res.Rows[0][0])
	assert.Equal(t, before, sched.n.Load())
}

func TestExecute_EmptyRowSet(t *testing.T) {
	f, _ := newTestFacade(t)

	res, err := f.Execute(context.Background(), `SELECT id FROM products`)
	require.NoError(t, err)
	assert.NotNil(t, res.Rows)
	assert.Empty(t, res.Rows)
}

func TestExecute_FailureIsTypedAndSchedulesNothing(t *testing.T) {
	f, sched := newTestFacade(t)

	_, err := f.Execute(context.Background(), `INSERT INTO products VALUES ('p1', 'Bad', -1)`)
	require.Error(t, err)

	var stmtErr *StatementError
	require.True(t, errors.As(err, &stmtErr))
	assert.Contains(t, stmtErr.Error(), "CHECK constraint failed")
	assert.Zero(t, sched.n.Load())

	_, err = f.Execute(context.Background(), `SELEC nonsense`)
	require.True(t, errors.As(err, &stmtErr))
	assert.Zero(t, sched.n.Load())
}

func TestExecute_EngineNotReady(t *testing.T) {
	sched := &countingScheduler{}
	f := New(&testEngine{}, sched, nil)

	_, err := f.Execute(context.Background(), `INSERT INTO products VALUES ('p1', 'x', 1)`)
	var stmtErr *StatementError
	assert.True(t, errors.As(err, &stmtErr))
	assert.Zero(t, sched.n.Load())
}

func TestBatch_AllOrNothing(t *testing.T) {
	f, sched := newTestFacade(t)
	ctx := context.Background()

	_, err := f.Batch(ctx,
		Stmt(`INSERT INTO products VALUES (?, ?, ?)`, "p1", "Black soap", 4.5),
		Stmt(`INSERT INTO products VALUES (?, ?, ?)`, "p1", "Duplicate", 1.0),
	)
	require.Error(t, err)
	assert.Zero(t, sched.n.Load())

	res, err := f.Execute(ctx, `SELECT count(*) FROM products`)
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.Rows[0][0])
}

func TestBatch_OneFlushForManyWrites(t *testing.T) {
	f, sched := newTestFacade(t)

	results, err := f.Batch(context.Background(),
		Stmt(`INSERT INTO products VALUES (?, ?, ?)`, "p1", "Black soap", 4.5),
		Stmt(`INSERT INTO products VALUES (?, ?, ?)`, "p2", "Shea butter", 9.0),
		Stmt(`SELECT count(*) FROM products`),
	)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, int64(2), results[2].Rows[0][0])
	assert.Equal(t, int64(1), sched.n.Load())
}

func TestBatch_GuardedStatementAborts(t *testing.T) {
	f, sched := newTestFacade(t)
	ctx := context.Background()

	_, err := f.Batch(ctx,
		Stmt(`INSERT INTO products VALUES (?, ?, ?)`, "p1", "Black soap", 4.5),
		Guarded(`UPDATE products SET price = 1 WHERE id = ?`, "missing"),
	)
	assert.ErrorIs(t, err, ErrNoRowsAffected)
	assert.Zero(t, sched.n.Load())

	res, err := f.Execute(ctx, `SELECT count(*) FROM products`)
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.Rows[0][0])
}

func TestRead(t *testing.T) {
	f, sched := newTestFacade(t)
	ctx := context.Background()
	_, err := f.Execute(ctx, `INSERT INTO products VALUES ('p1', 'Black soap', 4.5)`)
	require.NoError(t, err)

	var name string
	err = f.Read(ctx, func(q Querier) error {
		return q.QueryRowContext(ctx, `SELECT name FROM products WHERE id = ?`, "p1").Scan(&name)
	})
	require.NoError(t, err)
	assert.Equal(t, "Black soap", name)
	assert.Equal(t, int64(1), sched.n.Load())
}
