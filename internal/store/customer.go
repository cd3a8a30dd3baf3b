// ABOUTME: Customer-owned records: addresses, saved cards, favorites, saved carts, bulk requests
// ABOUTME: Every add, toggle, or save appends one activity event in the same batch

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/2389/shopdb/internal/query"
)

// Address is a saved delivery address.
type Address struct {
	ID         string
	UserID     string
	Label      string
	Recipient  string
	Phone      string
	Line1      string
	Line2      string
	City       string
	Region     string
	PostalCode string
	Country    string
	IsDefault  bool
	CreatedAt  time.Time
}

// SavedCard is a payment card reference. The full number is never stored.
type SavedCard struct {
	ID        string
	UserID    string
	Brand     string
	Last4     string
	Holder    string
	ExpMonth  int
	ExpYear   int
	CreatedAt time.Time
}

// Favorite marks a product a user likes.
type Favorite struct {
	UserID    string
	ProductID string
	CreatedAt time.Time
}

// SavedCart is a named cart kept for later.
type SavedCart struct {
	ID        string
	UserID    string
	Name      string
	Items     []OrderItem
	CreatedAt time.Time
}

// BulkRequest is a wholesale quote request.
type BulkRequest struct {
	ID          string
	UserID      string
	Company     string
	ContactName string
	Email       string
	Phone       string
	ProductID   string
	Quantity    int
	Notes       string
	Status      string
	CreatedAt   time.Time
}

// batchWithActivity runs stmts followed by one activity event.
func (s *Store) batchWithActivity(ctx context.Context, actor, action, targetType, targetID string, stmts ...query.Statement) error {
	act, err := s.activity(actor, action, targetType, targetID, nil)
	if err != nil {
		return err
	}
	_, err = s.q.Batch(ctx, append(stmts, act)...)
	return err
}

// deleteOwned removes one row owned by userID.
func (s *Store) deleteOwned(ctx context.Context, table, action, targetType, userID, id string) error {
	err := s.batchWithActivity(ctx, userID, action, targetType, id,
		query.Guarded(`DELETE FROM `+table+` WHERE id = ? AND user_id = ?`, id, userID))
	if errors.Is(err, query.ErrNoRowsAffected) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("deleting from %s: %w", table, err)
	}
	return nil
}

func parseCreatedAt(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return parseTime(s)
}

// Addresses

func scanAddress(sc scanner) (Address, error) {
	var a Address
	var createdAt string
	if err := sc.Scan(&a.ID, &a.UserID, &a.Label, &a.Recipient, &a.Phone, &a.Line1, &a.Line2,
		&a.City, &a.Region, &a.PostalCode, &a.Country, &a.IsDefault, &createdAt); err != nil {
		return a, err
	}
	var err error
	a.CreatedAt, err = parseCreatedAt(createdAt)
	return a, err
}

// ListAddresses returns a user's addresses, default first.
func (s *Store) ListAddresses(ctx context.Context, userID string) ([]Address, error) {
	var out []Address
	err := s.q.Read(ctx, func(q query.Querier) error {
		var err error
		out, err = collect(ctx, q, scanAddress, `
			SELECT id, user_id, label, recipient, phone, line1, line2, city, region, postal_code, country, is_default, created_at
			FROM addresses WHERE user_id = ?
			ORDER BY is_default DESC, created_at, rowid`, userID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("listing addresses: %w", err)
	}
	return out, nil
}

// AddAddress saves an address. A default address clears the user's
// previous default.
func (s *Store) AddAddress(ctx context.Context, a *Address) error {
	if a.UserID == "" || a.Line1 == "" {
		return fmt.Errorf("%w: user id and line1 required", ErrInvalidInput)
	}
	if a.ID == "" {
		a.ID = newID("adr_")
	}
	a.CreatedAt = s.now()

	var stmts []query.Statement
	if a.IsDefault {
		stmts = append(stmts, query.Stmt(`UPDATE addresses SET is_default = 0 WHERE user_id = ?`, a.UserID))
	}
	stmts = append(stmts, query.Stmt(`
		INSERT INTO addresses (id, user_id, label, recipient, phone, line1, line2, city, region, postal_code, country, is_default, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserID, a.Label, a.Recipient, a.Phone, a.Line1, a.Line2, a.City, a.Region,
		a.PostalCode, a.Country, a.IsDefault, formatTime(a.CreatedAt)))

	if err := s.batchWithActivity(ctx, a.UserID, ActionAddressAdded, "address", a.ID, stmts...); err != nil {
		return fmt.Errorf("adding address: %w", err)
	}
	return nil
}

// DeleteAddress removes one of a user's addresses.
func (s *Store) DeleteAddress(ctx context.Context, userID, id string) error {
	return s.deleteOwned(ctx, "addresses", ActionAddressDeleted, "address", userID, id)
}

// Saved cards

// CardFromNumber builds a SavedCard from a full card number, keeping only
// the brand and last four digits.
func CardFromNumber(userID, number, holder string, expMonth, expYear int) (*SavedCard, error) {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, number)
	if len(digits) < 12 || len(digits) > 19 {
		return nil, fmt.Errorf("%w: card number length", ErrInvalidInput)
	}
	return &SavedCard{
		UserID:   userID,
		Brand:    cardBrand(digits),
		Last4:    digits[len(digits)-4:],
		Holder:   holder,
		ExpMonth: expMonth,
		ExpYear:  expYear,
	}, nil
}

func cardBrand(digits string) string {
	switch {
	case strings.HasPrefix(digits, "4"):
		return "visa"
	case strings.HasPrefix(digits, "34"), strings.HasPrefix(digits, "37"):
		return "amex"
	case digits[0] == '5' && digits[1] >= '1' && digits[1] <= '5':
		return "mastercard"
	case inRange(digits[:4], 2221, 2720):
		return "mastercard"
	default:
		return "card"
	}
}

// inRange reports whether the numeric prefix lies in [lo, hi].
func inRange(prefix string, lo, hi int) bool {
	n, err := strconv.Atoi(prefix)
	return err == nil && n >= lo && n <= hi
}

func scanSavedCard(sc scanner) (SavedCard, error) {
	var c SavedCard
	var createdAt string
	if err := sc.Scan(&c.ID, &c.UserID, &c.Brand, &c.Last4, &c.Holder, &c.ExpMonth, &c.ExpYear, &createdAt); err != nil {
		return c, err
	}
	var err error
	c.CreatedAt, err = parseCreatedAt(createdAt)
	return c, err
}

// ListSavedCards returns a user's saved cards, oldest first.
func (s *Store) ListSavedCards(ctx context.Context, userID string) ([]SavedCard, error) {
	var out []SavedCard
	err := s.q.Read(ctx, func(q query.Querier) error {
		var err error
		out, err = collect(ctx, q, scanSavedCard, `
			SELECT id, user_id, brand, last4, holder, exp_month, exp_year, created_at
			FROM saved_cards WHERE user_id = ? ORDER BY created_at, rowid`, userID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("listing saved cards: %w", err)
	}
	return out, nil
}

// AddSavedCard stores a card reference.
func (s *Store) AddSavedCard(ctx context.Context, c *SavedCard) error {
	if c.UserID == "" {
		return fmt.Errorf("%w: user id required", ErrInvalidInput)
	}
	if len(c.Last4) != 4 || strings.IndexFunc(c.Last4, func(r rune) bool { return r < '0' || r > '9' }) >= 0 {
		return fmt.Errorf("%w: last4 must be four digits", ErrInvalidInput)
	}
	if c.ID == "" {
		c.ID = newID("crd_")
	}
	c.CreatedAt = s.now()

	err := s.batchWithActivity(ctx, c.UserID, ActionCardSaved, "card", c.ID, query.Stmt(`
		INSERT INTO saved_cards (id, user_id, brand, last4, holder, exp_month, exp_year, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.Brand, c.Last4, c.Holder, c.ExpMonth, c.ExpYear, formatTime(c.CreatedAt)))
	if err != nil {
		return fmt.Errorf("adding saved card: %w", err)
	}
	return nil
}

// DeleteSavedCard removes one of a user's saved cards.
func (s *Store) DeleteSavedCard(ctx context.Context, userID, id string) error {
	return s.deleteOwned(ctx, "saved_cards", ActionCardDeleted, "card", userID, id)
}

// Favorites

func scanFavorite(sc scanner) (Favorite, error) {
	var f Favorite
	var createdAt string
	if err := sc.Scan(&f.UserID, &f.ProductID, &createdAt); err != nil {
		return f, err
	}
	var err error
	f.CreatedAt, err = parseCreatedAt(createdAt)
	return f, err
}

// ListFavorites returns a user's favorites, newest first.
func (s *Store) ListFavorites(ctx context.Context, userID string) ([]Favorite, error) {
	var out []Favorite
	err := s.q.Read(ctx, func(q query.Querier) error {
		var err error
		out, err = collect(ctx, q, scanFavorite, `SELECT user_id, product_id, created_at FROM favorites WHERE user_id = ? ORDER BY created_at DESC, rowid DESC`, userID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("listing favorites: %w", err)
	}
	return out, nil
}

// AddFavorite marks productID as a favorite of userID.
func (s *Store) AddFavorite(ctx context.Context, userID, productID string) error {
	err := s.batchWithActivity(ctx, userID, ActionFavoriteAdded, "product", productID, query.Stmt(`
		INSERT INTO favorites (user_id, product_id, created_at) VALUES (?, ?, ?)
		ON CONFLICT(user_id, product_id) DO NOTHING`,
		userID, productID, formatTime(s.now())))
	if err != nil {
		return fmt.Errorf("adding favorite: %w", err)
	}
	return nil
}

// DeleteFavorite removes productID from the favorites of userID.
func (s *Store) DeleteFavorite(ctx context.Context, userID, productID string) error {
	err := s.batchWithActivity(ctx, userID, ActionFavoriteRemoved, "product", productID,
		query.Guarded(`DELETE FROM favorites WHERE user_id = ? AND product_id = ?`, userID, productID))
	if errors.Is(err, query.ErrNoRowsAffected) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("deleting favorite: %w", err)
	}
	return nil
}

// ToggleFavorite adds or removes a favorite and reports whether the
// product is now a favorite.
func (s *Store) ToggleFavorite(ctx context.Context, userID, productID string) (bool, error) {
	if userID == "" || productID == "" {
		return false, fmt.Errorf("%w: user id and product id required", ErrInvalidInput)
	}
	favs, err := s.ListFavorites(ctx, userID)
	if err != nil {
		return false, err
	}
	if lo.ContainsBy(favs, func(f Favorite) bool { return f.ProductID == productID }) {
		return false, s.DeleteFavorite(ctx, userID, productID)
	}
	return true, s.AddFavorite(ctx, userID, productID)
}

// Saved carts

func scanSavedCart(sc scanner) (SavedCart, error) {
	var c SavedCart
	var items, createdAt string
	if err := sc.Scan(&c.ID, &c.UserID, &c.Name, &items, &createdAt); err != nil {
		return c, err
	}
	if err := json.Unmarshal([]byte(items), &c.Items); err != nil {
		return c, fmt.Errorf("unmarshaling cart items: %w", err)
	}
	var err error
	c.CreatedAt, err = parseCreatedAt(createdAt)
	return c, err
}

// ListSavedCarts returns a user's saved carts, newest first.
func (s *Store) ListSavedCarts(ctx context.Context, userID string) ([]SavedCart, error) {
	var out []SavedCart
	err := s.q.Read(ctx, func(q query.Querier) error {
		var err error
		out, err = collect(ctx, q, scanSavedCart, `
			SELECT id, user_id, name, items, created_at
			FROM saved_carts WHERE user_id = ? ORDER BY created_at DESC, rowid DESC`, userID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("listing saved carts: %w", err)
	}
	return out, nil
}

// SaveCart stores a cart, replacing an existing cart with the same id.
func (s *Store) SaveCart(ctx context.Context, c *SavedCart) error {
	if c.UserID == "" || len(c.Items) == 0 {
		return fmt.Errorf("%w: user id and items required", ErrInvalidInput)
	}
	if c.ID == "" {
		c.ID = newID("crt_")
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	items, err := json.Marshal(c.Items)
	if err != nil {
		return fmt.Errorf("marshaling cart items: %w", err)
	}

	err = s.batchWithActivity(ctx, c.UserID, ActionCartSaved, "cart", c.ID, query.Stmt(`
		INSERT INTO saved_carts (id, user_id, name, items, created_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, items = excluded.items`,
		c.ID, c.UserID, c.Name, string(items), formatTime(c.CreatedAt)))
	if err != nil {
		return fmt.Errorf("saving cart: %w", err)
	}
	return nil
}

// DeleteSavedCart removes one of a user's saved carts.
func (s *Store) DeleteSavedCart(ctx context.Context, userID, id string) error {
	return s.deleteOwned(ctx, "saved_carts", ActionCartDeleted, "cart", userID, id)
}

// Bulk requests

func scanBulkRequest(sc scanner) (BulkRequest, error) {
	var b BulkRequest
	var createdAt string
	if err := sc.Scan(&b.ID, &b.UserID, &b.Company, &b.ContactName, &b.Email, &b.Phone,
		&b.ProductID, &b.Quantity, &b.Notes, &b.Status, &createdAt); err != nil {
		return b, err
	}
	var err error
	b.CreatedAt, err = parseCreatedAt(createdAt)
	return b, err
}

// ListBulkRequests returns bulk requests newest first. An empty userID
// lists every request.
func (s *Store) ListBulkRequests(ctx context.Context, userID string) ([]BulkRequest, error) {
	var out []BulkRequest
	err := s.q.Read(ctx, func(q query.Querier) error {
		var err error
		out, err = collect(ctx, q, scanBulkRequest, `
			SELECT id, user_id, company, contact_name, email, phone, product_id, quantity, notes, status, created_at
			FROM bulk_requests WHERE (? = '' OR user_id = ?)
			ORDER BY created_at DESC, rowid DESC`, userID, userID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("listing bulk requests: %w", err)
	}
	return out, nil
}

// AddBulkRequest records a wholesale quote request.
func (s *Store) AddBulkRequest(ctx context.Context, b *BulkRequest) error {
	if b.Quantity <= 0 || (b.Email == "" && b.UserID == "") {
		return fmt.Errorf("%w: quantity and contact required", ErrInvalidInput)
	}
	if b.ID == "" {
		b.ID = newID("blk_")
	}
	if b.Status == "" {
		b.Status = "new"
	}
	b.Email = NormalizeEmail(b.Email)
	b.CreatedAt = s.now()

	err := s.batchWithActivity(ctx, b.UserID, ActionBulkRequested, "bulk_request", b.ID, query.Stmt(`
		INSERT INTO bulk_requests (id, user_id, company, contact_name, email, phone, product_id, quantity, notes, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.UserID, b.Company, b.ContactName, b.Email, b.Phone, b.ProductID, b.Quantity, b.Notes, b.Status,
		formatTime(b.CreatedAt)))
	if err != nil {
		return fmt.Errorf("adding bulk request: %w", err)
	}
	return nil
}

// DeleteBulkRequest removes a bulk request.
func (s *Store) DeleteBulkRequest(ctx context.Context, id string) error {
	err := s.batchWithActivity(ctx, s.actor(ctx), ActionBulkDeleted, "bulk_request", id,
		query.Guarded(`DELETE FROM bulk_requests WHERE id = ?`, id))
	if errors.Is(err, query.ErrNoRowsAffected) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("deleting bulk request: %w", err)
	}
	return nil
}
