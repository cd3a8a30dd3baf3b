// ABOUTME: User accounts: provisioning, lookup, profile edits, cascading removal
// ABOUTME: Signup, login with bcrypt verification, and logout with audit records

package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/samber/mo"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/cases"

	"github.com/2389/shopdb/internal/query"
)

// Role is the role of a user account.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleCustomer Role = "customer"
)

// Prefix is the id prefix every user of the role carries.
func (r Role) Prefix() string {
	if r == RoleAdmin {
		return "adm_"
	}
	return "usr_"
}

// User is an account of one store instance.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         Role
	Phone        string
	JoinedAt     time.Time
	LastLoginAt  *time.Time
}

// dependentTables hold rows owned by a user and removed with the account.
var dependentTables = []string{"addresses", "saved_cards", "saved_carts", "favorites"}

// NormalizeEmail trims and case-folds an email address.
func NormalizeEmail(email string) string {
	return cases.Fold().String(strings.TrimSpace(email))
}

const userColumns = `id, name, email, password_hash, role, phone, joined_at, last_login_at`

func scanUser(sc scanner) (*User, error) {
	var u User
	var role, joinedAt string
	var lastLogin *string
	if err := sc.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &role, &u.Phone, &joinedAt, &lastLogin); err != nil {
		return nil, err
	}
	u.Role = Role(role)
	if joinedAt != "" {
		t, err := parseTime(joinedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing joined_at: %w", err)
		}
		u.JoinedAt = t
	}
	if lastLogin != nil && *lastLogin != "" {
		t, err := parseTime(*lastLogin)
		if err != nil {
			return nil, fmt.Errorf("parsing last_login_at: %w", err)
		}
		u.LastLoginAt = &t
	}
	return &u, nil
}

// prepareUser validates u, assigns its id and hashes password.
func (s *Store) prepareUser(u *User, password string) error {
	u.Email = NormalizeEmail(u.Email)
	if u.Email == "" {
		return fmt.Errorf("%w: email required", ErrInvalidInput)
	}
	if u.Role == "" {
		u.Role = RoleCustomer
	}
	if u.Role != RoleAdmin && u.Role != RoleCustomer {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidInput, u.Role)
	}
	if u.ID == "" {
		u.ID = newID(u.Role.Prefix())
	} else if !strings.HasPrefix(u.ID, u.Role.Prefix()) {
		return fmt.Errorf("%w: %s for role %s", ErrIDRoleMismatch, u.ID, u.Role)
	}
	if password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
		if err != nil {
			return fmt.Errorf("hashing password: %w", err)
		}
		u.PasswordHash = string(hash)
	}
	if u.JoinedAt.IsZero() {
		u.JoinedAt = s.now()
	}
	return nil
}

func insertUserStmt(u *User) query.Statement {
	return query.Stmt(`
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, NULL)`,
		u.ID, u.Name, u.Email, u.PasswordHash, string(u.Role), u.Phone, formatTime(u.JoinedAt))
}

// createUser inserts u together with extra statements of the same batch.
func (s *Store) createUser(ctx context.Context, u *User, password string, extra ...query.Statement) error {
	if err := s.prepareUser(u, password); err != nil {
		return err
	}
	existing, err := s.FindUserByEmail(ctx, u.Email)
	if err != nil {
		return err
	}
	if existing.IsPresent() {
		return ErrEmailExists
	}

	stmts := append([]query.Statement{insertUserStmt(u)}, extra...)
	if _, err := s.q.Batch(ctx, stmts...); err != nil {
		if isConstraintViolation(err) && strings.Contains(err.Error(), "users.email") {
			return ErrEmailExists
		}
		return fmt.Errorf("creating user: %w", err)
	}
	s.logger.Info("user created", "id", u.ID, "role", u.Role)
	return nil
}

// AddUser provisions an account. An empty ID is generated from the role;
// a supplied ID must carry the role's prefix.
func (s *Store) AddUser(ctx context.Context, u *User, password string) error {
	if err := s.prepareUser(u, password); err != nil {
		return err
	}
	act, err := s.activity(s.actor(ctx), ActionUserCreated, "user", u.ID, map[string]any{"role": string(u.Role)})
	if err != nil {
		return err
	}
	return s.createUser(ctx, u, "", act)
}

// GetUser retrieves a user by id.
func (s *Store) GetUser(ctx context.Context, id string) (*User, error) {
	var u *User
	err := s.q.Read(ctx, func(q query.Querier) error {
		users, err := collect(ctx, q, scanUser, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
		if err != nil {
			return err
		}
		if len(users) == 0 {
			return ErrNotFound
		}
		u = users[0]
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return u, nil
}

// ListUsers returns all users, oldest first.
func (s *Store) ListUsers(ctx context.Context) ([]*User, error) {
	var out []*User
	err := s.q.Read(ctx, func(q query.Querier) error {
		var err error
		out, err = collect(ctx, q, scanUser, `SELECT `+userColumns+` FROM users ORDER BY joined_at, rowid`)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	return out, nil
}

// FindUserByEmail looks up a user ignoring case. Absence is not an error.
func (s *Store) FindUserByEmail(ctx context.Context, email string) (mo.Option[*User], error) {
	var users []*User
	err := s.q.Read(ctx, func(q query.Querier) error {
		var err error
		users, err = collect(ctx, q, scanUser,
			`SELECT `+userColumns+` FROM users WHERE email = ? COLLATE NOCASE`, NormalizeEmail(email))
		return err
	})
	if err != nil {
		return mo.None[*User](), fmt.Errorf("finding user by email: %w", err)
	}
	return mo.TupleToOption(lo.First(users)), nil
}

// UpdateUserProfile changes the display name and phone of a user.
func (s *Store) UpdateUserProfile(ctx context.Context, id, name, phone string) error {
	act, err := s.activity(id, ActionProfileUpdated, "user", id, nil)
	if err != nil {
		return err
	}
	_, err = s.q.Batch(ctx,
		query.Guarded(`UPDATE users SET name = ?, phone = ? WHERE id = ?`, name, phone, id),
		act,
	)
	if errors.Is(err, query.ErrNoRowsAffected) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("updating user profile: %w", err)
	}
	return nil
}

// DeleteUser removes an account and the addresses, saved cards, saved
// carts, and favorites it owns. Audit records are kept.
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	act, err := s.activity(s.actor(ctx), ActionUserDeleted, "user", id, nil)
	if err != nil {
		return err
	}

	stmts := []query.Statement{query.Guarded(`DELETE FROM users WHERE id = ?`, id)}
	for _, table := range lo.Filter(dependentTables, func(t string, _ int) bool { return s.hasTable(t) }) {
		stmts = append(stmts, query.Stmt(`DELETE FROM `+table+` WHERE user_id = ?`, id))
	}
	stmts = append(stmts,
		query.Stmt(`DELETE FROM sessions WHERE user_id = ?`, id),
		act,
	)

	if _, err := s.q.Batch(ctx, stmts...); err != nil {
		if errors.Is(err, query.ErrNoRowsAffected) {
			return ErrNotFound
		}
		return fmt.Errorf("deleting user: %w", err)
	}
	s.logger.Info("user deleted", "id", id)
	return nil
}

// Signup registers a customer and logs them in.
func (s *Store) Signup(ctx context.Context, name, email, password, phone string) (*User, error) {
	if password == "" {
		return nil, fmt.Errorf("%w: password required", ErrInvalidInput)
	}
	u := &User{Name: name, Email: email, Phone: phone, Role: RoleCustomer}
	if err := s.prepareUser(u, password); err != nil {
		return nil, err
	}
	act, err := s.activity(u.ID, ActionSignup, "user", u.ID, nil)
	if err != nil {
		return nil, err
	}
	if err := s.createUser(ctx, u, "", act, s.setSessionStmt(u.ID)); err != nil {
		return nil, err
	}
	return u, nil
}

// Login verifies credentials. Every attempt appends one login event; a
// successful one updates the last login time and sets the active session.
func (s *Store) Login(ctx context.Context, email, password string) (*User, error) {
	email = NormalizeEmail(email)
	found, err := s.FindUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	u, ok := found.Get()
	if !ok || bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		ev := &LoginEvent{Email: email, Notes: "invalid credentials"}
		if ok {
			ev.UserID = u.ID
		}
		if err := s.AppendLoginEvent(ctx, ev); err != nil {
			return nil, err
		}
		s.logger.Info("login failed", "email", email)
		return nil, ErrInvalidCredentials
	}

	now := s.now()
	_, err = s.q.Batch(ctx,
		query.Stmt(`UPDATE users SET last_login_at = ? WHERE id = ?`, formatTime(now), u.ID),
		s.loginEventStmt(&LoginEvent{UserID: u.ID, Email: u.Email, Success: true, CreatedAt: now}),
		s.setSessionStmt(u.ID),
	)
	if err != nil {
		return nil, fmt.Errorf("recording login: %w", err)
	}
	u.LastLoginAt = &now
	return u, nil
}

// Logout clears the active session and records it for the user who held it.
func (s *Store) Logout(ctx context.Context) error {
	sess, err := s.GetActiveSession(ctx)
	if err != nil {
		return err
	}
	active, ok := sess.Get()
	if !ok {
		return nil
	}
	act, err := s.activity(active.UserID, ActionLogout, "user", active.UserID, nil)
	if err != nil {
		return err
	}
	if _, err := s.q.Batch(ctx, query.Stmt(`DELETE FROM sessions WHERE slot = ?`, activeSlot), act); err != nil {
		return fmt.Errorf("logging out: %w", err)
	}
	return nil
}
