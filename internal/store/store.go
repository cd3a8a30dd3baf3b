// ABOUTME: Domain access layer entry point: Store type, options, and shared errors
// ABOUTME: Typed operations run through the query facade of one store instance

package store

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/2389/shopdb/internal/engine"
	"github.com/2389/shopdb/internal/query"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrEmailExists is returned when an email is already registered in the store
var ErrEmailExists = errors.New("email already registered")

// ErrInvalidCredentials is returned when a login attempt fails
var ErrInvalidCredentials = errors.New("invalid email or password")

// ErrIDRoleMismatch is returned when a user ID prefix does not match its role
var ErrIDRoleMismatch = errors.New("user id prefix does not match role")

// ErrInvalidProduct is returned when a product fails validation
var ErrInvalidProduct = errors.New("invalid product")

// ErrInvalidOrder is returned when an order fails validation
var ErrInvalidOrder = errors.New("invalid order")

// ErrInvalidTransition is returned for a disallowed order status change
var ErrInvalidTransition = errors.New("invalid order status transition")

// ErrInvalidInput is returned when a record is missing required fields
var ErrInvalidInput = errors.New("invalid input")

// Executor is the query surface the domain layer is built on.
type Executor interface {
	Execute(ctx context.Context, statement string, args ...any) (query.Result, error)
	Batch(ctx context.Context, stmts ...query.Statement) ([]query.Result, error)
	Read(ctx context.Context, fn func(q query.Querier) error) error
}

// Store provides typed access to one store instance.
type Store struct {
	q          Executor
	tables     map[string]bool // nil means every table exists
	clock      func() time.Time
	bcryptCost int
	logger     *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithSchema restricts cascades to the tables present in schema.
func WithSchema(schema engine.SchemaDescriptor) Option {
	return func(s *Store) {
		s.tables = make(map[string]bool, len(schema.Tables))
		for _, t := range schema.Tables {
			s.tables[t.Name] = true
		}
	}
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) { s.clock = clock }
}

// WithBcryptCost overrides the password hashing cost.
func WithBcryptCost(cost int) Option {
	return func(s *Store) { s.bcryptCost = cost }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// New creates a Store on top of q.
func New(q Executor, opts ...Option) *Store {
	s := &Store{
		q:          q,
		clock:      time.Now,
		bcryptCost: bcrypt.DefaultCost,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "store")
	return s
}

func (s *Store) hasTable(name string) bool {
	return s.tables == nil || s.tables[name]
}

func (s *Store) now() time.Time {
	return s.clock().UTC()
}

// timeLayout is fixed-width so stored timestamps sort lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// newID returns a prefixed random identifier.
func newID(prefix string) string {
	return prefix + uuid.New().String()
}

type scanner interface {
	Scan(dest ...any) error
}

// collect runs stmt and scans every row. The rows are closed before it
// returns, so callers may issue further queries on the same connection.
func collect[T any](ctx context.Context, q query.Querier, scan func(scanner) (T, error), stmt string, args ...any) ([]T, error) {
	rows, err := q.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []T{}
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// isConstraintViolation checks if the error is a SQLite UNIQUE constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}
