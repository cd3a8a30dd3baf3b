// ABOUTME: Append-only audit trail: login, activity, and transaction events
// ABOUTME: Statement builders for domain batches plus filtered newest-first listing

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/2389/shopdb/internal/query"
)

// Activity actions recorded by the domain layer.
const (
	ActionUserCreated        = "user_created"
	ActionUserDeleted        = "user_deleted"
	ActionProfileUpdated     = "profile_updated"
	ActionSignup             = "signup"
	ActionLogout             = "logout"
	ActionProductSaved       = "product_saved"
	ActionProductDeleted     = "product_deleted"
	ActionOrderStatusUpdated = "order_status_updated"
	ActionAddressAdded       = "address_added"
	ActionAddressDeleted     = "address_deleted"
	ActionCardSaved          = "card_saved"
	ActionCardDeleted        = "card_deleted"
	ActionFavoriteAdded      = "favorite_added"
	ActionFavoriteRemoved    = "favorite_removed"
	ActionCartSaved          = "cart_saved"
	ActionCartDeleted        = "cart_deleted"
	ActionBulkRequested      = "bulk_requested"
	ActionBulkDeleted        = "bulk_request_deleted"
)

// LoginEvent records one authentication attempt.
type LoginEvent struct {
	ID        string
	UserID    string // empty when the email matched no user
	Email     string
	Success   bool
	CreatedAt time.Time
	Notes     string
}

// ActivityEvent records one business action.
type ActivityEvent struct {
	ID         string
	UserID     string // actor
	Action     string
	TargetType string
	TargetID   string
	Detail     map[string]any
	CreatedAt  time.Time
	Notes      string
}

// TransactionEvent records one money movement.
type TransactionEvent struct {
	ID            string
	UserID        string
	OrderID       string
	Amount        float64
	PaymentMethod string
	PaymentRef    string
	Status        string
	CreatedAt     time.Time
	Notes         string
}

// AuditFilter specifies filtering options for listing audit records.
type AuditFilter struct {
	Actor *string // filter by user id
	Limit int     // max results (default 100, max 1000)
}

// normalizeAuditLimit applies default (100) and cap (1000) to audit limit.
func normalizeAuditLimit(limit int) int {
	switch {
	case limit <= 0:
		return 100
	case limit > 1000:
		return 1000
	default:
		return limit
	}
}

func (s *Store) stampAudit(id *string, at *time.Time) {
	if *id == "" {
		*id = uuid.New().String()
	}
	if at.IsZero() {
		*at = s.now()
	}
}

func (s *Store) loginEventStmt(e *LoginEvent) query.Statement {
	s.stampAudit(&e.ID, &e.CreatedAt)
	return query.Stmt(`
		INSERT INTO login_events (id, user_id, email, success, created_at, notes)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.Email, e.Success, formatTime(e.CreatedAt), e.Notes)
}

func (s *Store) activityEventStmt(e *ActivityEvent) (query.Statement, error) {
	s.stampAudit(&e.ID, &e.CreatedAt)

	var detailJSON *string
	if e.Detail != nil {
		data, err := json.Marshal(e.Detail)
		if err != nil {
			return query.Statement{}, fmt.Errorf("marshaling activity detail: %w", err)
		}
		str := string(data)
		detailJSON = &str
	}
	return query.Stmt(`
		INSERT INTO activity_events (id, user_id, action, target_type, target_id, detail_json, created_at, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.Action, e.TargetType, e.TargetID, detailJSON, formatTime(e.CreatedAt), e.Notes), nil
}

func (s *Store) transactionEventStmt(e *TransactionEvent) query.Statement {
	s.stampAudit(&e.ID, &e.CreatedAt)
	return query.Stmt(`
		INSERT INTO transaction_events (id, user_id, order_id, amount, payment_method, payment_ref, status, created_at, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.OrderID, e.Amount, e.PaymentMethod, e.PaymentRef, e.Status, formatTime(e.CreatedAt), e.Notes)
}

// activity builds the activity statement for a domain batch.
func (s *Store) activity(actor, action, targetType, targetID string, detail map[string]any) (query.Statement, error) {
	return s.activityEventStmt(&ActivityEvent{
		UserID:     actor,
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		Detail:     detail,
	})
}

// AppendLoginEvent appends a login event. Generates ID and CreatedAt if not set.
func (s *Store) AppendLoginEvent(ctx context.Context, e *LoginEvent) error {
	if _, err := s.q.Batch(ctx, s.loginEventStmt(e)); err != nil {
		return fmt.Errorf("appending login event: %w", err)
	}
	return nil
}

// AppendActivityEvent appends an activity event. Generates ID and CreatedAt if not set.
func (s *Store) AppendActivityEvent(ctx context.Context, e *ActivityEvent) error {
	st, err := s.activityEventStmt(e)
	if err != nil {
		return err
	}
	if _, err := s.q.Batch(ctx, st); err != nil {
		return fmt.Errorf("appending activity event: %w", err)
	}
	s.logger.Debug("appended activity event", "id", e.ID, "actor", e.UserID, "action", e.Action)
	return nil
}

// AppendTransactionEvent appends a transaction event. Generates ID and CreatedAt if not set.
func (s *Store) AppendTransactionEvent(ctx context.Context, e *TransactionEvent) error {
	if _, err := s.q.Batch(ctx, s.transactionEventStmt(e)); err != nil {
		return fmt.Errorf("appending transaction event: %w", err)
	}
	return nil
}

const loginEventsQuery = `
	SELECT id, user_id, email, success, created_at, notes
	FROM login_events
	WHERE (? IS NULL OR user_id = ?)
	ORDER BY created_at DESC, rowid DESC
	LIMIT ?`

// ListLoginEvents returns login events newest first.
func (s *Store) ListLoginEvents(ctx context.Context, f AuditFilter) ([]LoginEvent, error) {
	var out []LoginEvent
	err := s.q.Read(ctx, func(q query.Querier) error {
		var err error
		out, err = collect(ctx, q, scanLoginEvent, loginEventsQuery, f.Actor, f.Actor, normalizeAuditLimit(f.Limit))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("listing login events: %w", err)
	}
	return out, nil
}

const activityEventsQuery = `
	SELECT id, user_id, action, target_type, target_id, detail_json, created_at, notes
	FROM activity_events
	WHERE (? IS NULL OR user_id = ?)
	ORDER BY created_at DESC, rowid DESC
	LIMIT ?`

// ListActivityEvents returns activity events newest first.
func (s *Store) ListActivityEvents(ctx context.Context, f AuditFilter) ([]ActivityEvent, error) {
	var out []ActivityEvent
	err := s.q.Read(ctx, func(q query.Querier) error {
		var err error
		out, err = collect(ctx, q, scanActivityEvent, activityEventsQuery, f.Actor, f.Actor, normalizeAuditLimit(f.Limit))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("listing activity events: %w", err)
	}
	return out, nil
}

const transactionEventsQuery = `
	SELECT id, user_id, order_id, amount, payment_method, payment_ref, status, created_at, notes
	FROM transaction_events
	WHERE (? IS NULL OR user_id = ?)
	ORDER BY created_at DESC, rowid DESC
	LIMIT ?`

// ListTransactionEvents returns transaction events newest first.
func (s *Store) ListTransactionEvents(ctx context.Context, f AuditFilter) ([]TransactionEvent, error) {
	var out []TransactionEvent
	err := s.q.Read(ctx, func(q query.Querier) error {
		var err error
		out, err = collect(ctx, q, scanTransactionEvent, transactionEventsQuery, f.Actor, f.Actor, normalizeAuditLimit(f.Limit))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("listing transaction events: %w", err)
	}
	return out, nil
}

func scanLoginEvent(sc scanner) (LoginEvent, error) {
	var e LoginEvent
	var createdAt string
	if err := sc.Scan(&e.ID, &e.UserID, &e.Email, &e.Success, &createdAt, &e.Notes); err != nil {
		return e, fmt.Errorf("scanning login event: %w", err)
	}
	var err error
	e.CreatedAt, err = parseTime(createdAt)
	return e, err
}

func scanActivityEvent(sc scanner) (ActivityEvent, error) {
	var e ActivityEvent
	var createdAt string
	var detailJSON sql.NullString
	if err := sc.Scan(&e.ID, &e.UserID, &e.Action, &e.TargetType, &e.TargetID, &detailJSON, &createdAt, &e.Notes); err != nil {
		return e, fmt.Errorf("scanning activity event: %w", err)
	}
	if detailJSON.Valid {
		if err := json.Unmarshal([]byte(detailJSON.String), &e.Detail); err != nil {
			return e, fmt.Errorf("unmarshaling detail: %w", err)
		}
	}
	var err error
	e.CreatedAt, err = parseTime(createdAt)
	return e, err
}

func scanTransactionEvent(sc scanner) (TransactionEvent, error) {
	var e TransactionEvent
	var createdAt string
	if err := sc.Scan(&e.ID, &e.UserID, &e.OrderID, &e.Amount, &e.PaymentMethod, &e.PaymentRef, &e.Status, &createdAt, &e.Notes); err != nil {
		return e, fmt.Errorf("scanning transaction event: %w", err)
	}
	var err error
	e.CreatedAt, err = parseTime(createdAt)
	return e, err
}
