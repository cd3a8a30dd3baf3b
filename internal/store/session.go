// ABOUTME: Active session slot persisted inside the store image
// ABOUTME: A reload restores the logged-in user of the instance

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/samber/mo"

	"github.com/2389/shopdb/internal/query"
)

const activeSlot = "active"

// ActiveSession is the logged-in user of a store instance.
type ActiveSession struct {
	UserID    string
	StartedAt time.Time
}

func (s *Store) setSessionStmt(userID string) query.Statement {
	return query.Stmt(`
		INSERT INTO sessions (slot, user_id, started_at) VALUES (?, ?, ?)
		ON CONFLICT(slot) DO UPDATE SET user_id = excluded.user_id, started_at = excluded.started_at`,
		activeSlot, userID, formatTime(s.now()))
}

// GetActiveSession returns the active session, if any.
func (s *Store) GetActiveSession(ctx context.Context) (mo.Option[ActiveSession], error) {
	var sess ActiveSession
	var startedAt string
	err := s.q.Read(ctx, func(q query.Querier) error {
		return q.QueryRowContext(ctx,
			`SELECT user_id, started_at FROM sessions WHERE slot = ?`, activeSlot,
		).Scan(&sess.UserID, &startedAt)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return mo.None[ActiveSession](), nil
	}
	if err != nil {
		return mo.None[ActiveSession](), fmt.Errorf("getting active session: %w", err)
	}
	if sess.StartedAt, err = parseTime(startedAt); err != nil {
		return mo.None[ActiveSession](), fmt.Errorf("parsing session start: %w", err)
	}
	return mo.Some(sess), nil
}

// SetActiveSession makes userID the logged-in user.
func (s *Store) SetActiveSession(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("%w: user id required", ErrInvalidInput)
	}
	if _, err := s.q.Batch(ctx, s.setSessionStmt(userID)); err != nil {
		return fmt.Errorf("setting active session: %w", err)
	}
	return nil
}

// ClearActiveSession removes the logged-in user.
func (s *Store) ClearActiveSession(ctx context.Context) error {
	if _, err := s.q.Execute(ctx, `DELETE FROM sessions WHERE slot = ?`, activeSlot); err != nil {
		return fmt.Errorf("clearing active session: %w", err)
	}
	return nil
}

// actor returns the logged-in user id, or "system" when nobody is.
func (s *Store) actor(ctx context.Context) string {
	sess, err := s.GetActiveSession(ctx)
	if err != nil {
		s.logger.Debug("no actor for audit record", "error", err)
		return "system"
	}
	return sess.OrElse(ActiveSession{UserID: "system"}).UserID
}
