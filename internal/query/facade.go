// ABOUTME: Query facade executing statements against the live engine
// ABOUTME: Normalizes results into rows or write acknowledgements and schedules flushes on writes

package query

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
)

// ErrNoRowsAffected is returned by Batch when a statement marked
// MustAffect changes nothing.
var ErrNoRowsAffected = errors.New("statement affected no rows")

// Kind distinguishes row sets from write acknowledgements.
type Kind int

const (
	KindRows Kind = iota
	KindWrite
)

func (k Kind) String() string {
	if k == KindWrite {
		return "write"
	}
	return "rows"
}

// Result is the outcome of one statement.
type Result struct {
	Kind         Kind
	Columns      []string
	Rows         [][]any
	RowsAffected int64
	LastInsertID int64
}

// StatementError reports a statement the engine rejected.
type StatementError struct {
	Statement string
	Err       error
}

func (e *StatementError) Error() string {
	return fmt.Sprintf("statement failed: %v", e.Err)
}

func (e *StatementError) Unwrap() error { return e.Err }

// Statement is one parameterized statement of a batch.
type Statement struct {
	SQL  string
	Args []any

	// MustAffect aborts the batch when the statement changes no rows.
	MustAffect bool
}

// Stmt builds a Statement.
func Stmt(sql string, args ...any) Statement {
	return Statement{SQL: sql, Args: args}
}

// Guarded builds a Statement that must change at least one row.
func Guarded(sql string, args ...any) Statement {
	return Statement{SQL: sql, Args: args, MustAffect: true}
}

// Engine hands out the live engine for the duration of a call.
type Engine interface {
	Acquire() (*sql.DB, func(), error)
}

// Scheduler receives flush requests after successful writes.
type Scheduler interface {
	ScheduleFlush()
}

// Querier is the read surface handed to Read callbacks.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type execQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Facade executes statements for one store instance.
type Facade struct {
	engine Engine
	sched  Scheduler
	logger *slog.Logger
}

// New creates a facade. Pass nil logger for default.
func New(engine Engine, sched Scheduler, logger *slog.Logger) *Facade {
	if logger == nil {
		logger = slog.Default()
	}
	return &Facade{
		engine: engine,
		sched:  sched,
		logger: logger.With("component", "query"),
	}
}

// Execute runs one statement. A successful write schedules a flush before
// returning; a failure returns *StatementError and schedules nothing.
func (f *Facade) Execute(ctx context.Context, statement string, args ...any) (Result, error) {
	db, release, err := f.engine.Acquire()
	if err != nil {
		release()
		return Result{}, &StatementError{Statement: statement, Err: err}
	}
	res, err := run(ctx, db, Statement{SQL: statement, Args: args})
	release()

	if err != nil {
		f.logger.Debug("statement failed", "error", err)
		return Result{}, &StatementError{Statement: statement, Err: err}
	}
	if res.Kind == KindWrite {
		f.sched.ScheduleFlush()
	}
	return res, nil
}

// Batch runs statements in one transaction. Either all of them apply or
// none do. One flush is scheduled when the batch contains a write.
func (f *Facade) Batch(ctx context.Context, stmts ...Statement) ([]Result, error) {
	db, release, err := f.engine.Acquire()
	if err != nil {
		release()
		return nil, &StatementError{Err: err}
	}
	results, wrote, err := runBatch(ctx, db, stmts)
	release()

	if err != nil {
		f.logger.Debug("batch failed", "statements", len(stmts), "error", err)
		return nil, err
	}
	if wrote {
		f.sched.ScheduleFlush()
	}
	return results, nil
}

func runBatch(ctx context.Context, db *sql.DB, stmts []Statement) ([]Result, bool, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, &StatementError{Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	results := make([]Result, 0, len(stmts))
	wrote := false
	for _, st := range stmts {
		res, err := run(ctx, tx, st)
		if err != nil {
			return nil, false, &StatementError{Statement: st.SQL, Err: err}
		}
		if st.MustAffect && res.RowsAffected == 0 {
			return nil, false, &StatementError{Statement: st.SQL, Err: ErrNoRowsAffected}
		}
		if res.Kind == KindWrite {
			wrote = true
		}
		results = append(results, res)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, &StatementError{Err: err}
	}
	return results, wrote, nil
}

// Read runs fn against the live engine without scheduling a flush.
// Rows opened by fn must be closed before it returns.
func (f *Facade) Read(ctx context.Context, fn func(q Querier) error) error {
	db, release, err := f.engine.Acquire()
	defer release()
	if err != nil {
		return &StatementError{Err: err}
	}
	return fn(db)
}

func run(ctx context.Context, eq execQuerier, st Statement) (Result, error) {
	if IsWrite(st.SQL) {
		r, err := eq.ExecContext(ctx, st.SQL, st.Args...)
		if err != nil {
			return Result{}, err
		}
		res := Result{Kind: KindWrite}
		res.RowsAffected, _ = r.RowsAffected()
		res.LastInsertID, _ = r.LastInsertId()
		return res, nil
	}

	rows, err := eq.QueryContext(ctx, st.SQL, st.Args...)
	if err != nil {
		return Result{}, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return Result{}, err
	}
	res := Result{Kind: KindRows, Columns: cols, Rows: [][]any{}}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return Result{}, err
		}
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = append([]byte(nil), b...)
			}
		}
		res.Rows = append(res.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return Result{}, err
	}
	return res, nil
}
