// ABOUTME: Orders with snapshotted line items and an append-only tracking history
// ABOUTME: Placement, lookup, and the status state machine driving tracking events

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/samber/lo"

	"github.com/2389/shopdb/internal/query"
)

// OrderStatus is a state of the order lifecycle.
type OrderStatus string

const (
	StatusPending        OrderStatus = "pending"
	StatusProcessing     OrderStatus = "processing"
	StatusShipped        OrderStatus = "shipped"
	StatusOutForDelivery OrderStatus = "out-for-delivery"
	StatusDelivered      OrderStatus = "delivered"
	StatusCancelled      OrderStatus = "cancelled"
)

// statusRank orders the forward path of the lifecycle.
var statusRank = map[OrderStatus]int{
	StatusPending:        0,
	StatusProcessing:     1,
	StatusShipped:        2,
	StatusOutForDelivery: 3,
	StatusDelivered:      4,
}

// SurchargeRate is applied to the order subtotal and rounded to a whole unit.
const SurchargeRate = 0.05

// Terminal reports whether no transition leaves s.
func (s OrderStatus) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// CanTransition reports whether an order may move from one status to
// another. Forward moves may skip steps; cancellation is allowed from any
// non-terminal status.
func CanTransition(from, to OrderStatus) bool {
	if from.Terminal() {
		return false
	}
	if to == StatusCancelled {
		return true
	}
	fromRank, ok := statusRank[from]
	if !ok {
		return false
	}
	toRank, ok := statusRank[to]
	return ok && toRank > fromRank
}

// OrderItem is a product snapshot captured when the order was placed.
type OrderItem struct {
	ProductID string  `json:"productId"`
	NameEN    string  `json:"nameEn"`
	NameAR    string  `json:"nameAr"`
	UnitPrice float64 `json:"unitPrice"`
	Image     string  `json:"image,omitempty"`
	Quantity  int     `json:"quantity"`
}

// ItemFromProduct snapshots p for an order line.
func ItemFromProduct(p *Product, quantity int) OrderItem {
	return OrderItem{
		ProductID: p.ID,
		NameEN:    p.NameEN,
		NameAR:    p.NameAR,
		UnitPrice: p.Price,
		Image:     p.Image,
		Quantity:  quantity,
	}
}

// TrackingEvent is one entry of an order's status history.
type TrackingEvent struct {
	Status   OrderStatus
	At       time.Time
	Location string
	Note     string
}

// ShippingAddress is the destination snapshot of an order.
type ShippingAddress struct {
	Recipient  string `json:"recipient"`
	Phone      string `json:"phone,omitempty"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	Region     string `json:"region,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
	Country    string `json:"country"`
}

// Order is a placed order.
type Order struct {
	ID              string
	UserID          string
	Email           string
	Items           []OrderItem
	Subtotal        float64
	Surcharge       float64
	Total           float64
	Status          OrderStatus
	ShippingAddress ShippingAddress
	PaymentMethod   string
	PaymentRef      string
	CarrierRef      string
	Tracking        []TrackingEvent
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Totals computes subtotal, surcharge, and total for items.
func Totals(items []OrderItem) (subtotal, surcharge, total float64) {
	subtotal = lo.SumBy(items, func(it OrderItem) float64 { return it.UnitPrice * float64(it.Quantity) })
	surcharge = math.Round(subtotal * SurchargeRate)
	return subtotal, surcharge, subtotal + surcharge
}

const orderColumns = `id, user_id, email, subtotal, surcharge, total, status, shipping_address,
	payment_method, payment_ref, carrier_ref, created_at, updated_at`

func scanOrder(sc scanner) (*Order, error) {
	var o Order
	var status, shipping, createdAt, updatedAt string
	if err := sc.Scan(&o.ID, &o.UserID, &o.Email, &o.Subtotal, &o.Surcharge, &o.Total, &status, &shipping,
		&o.PaymentMethod, &o.PaymentRef, &o.CarrierRef, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	o.Status = OrderStatus(status)
	if shipping != "" {
		if err := json.Unmarshal([]byte(shipping), &o.ShippingAddress); err != nil {
			return nil, fmt.Errorf("unmarshaling shipping address: %w", err)
		}
	}
	var err error
	if createdAt != "" {
		if o.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
	}
	if updatedAt != "" {
		if o.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
	}
	return &o, nil
}

func scanOrderItem(sc scanner) (OrderItem, error) {
	var it OrderItem
	err := sc.Scan(&it.ProductID, &it.NameEN, &it.NameAR, &it.UnitPrice, &it.Image, &it.Quantity)
	return it, err
}

func scanTrackingEvent(sc scanner) (TrackingEvent, error) {
	var ev TrackingEvent
	var status, at string
	if err := sc.Scan(&status, &at, &ev.Location, &ev.Note); err != nil {
		return ev, err
	}
	ev.Status = OrderStatus(status)
	var err error
	ev.At, err = parseTime(at)
	return ev, err
}

// loadOrders runs stmt and attaches items and tracking to every order.
func loadOrders(ctx context.Context, q query.Querier, stmt string, args ...any) ([]*Order, error) {
	orders, err := collect(ctx, q, scanOrder, stmt, args...)
	if err != nil {
		return nil, err
	}
	for _, o := range orders {
		o.Items, err = collect(ctx, q, scanOrderItem, `
			SELECT product_id, name_en, name_ar, unit_price, image, quantity
			FROM order_items WHERE order_id = ? ORDER BY line`, o.ID)
		if err != nil {
			return nil, err
		}
		o.Tracking, err = collect(ctx, q, scanTrackingEvent, `
			SELECT status, at, location, note
			FROM order_tracking WHERE order_id = ? ORDER BY seq`, o.ID)
		if err != nil {
			return nil, err
		}
	}
	return orders, nil
}

// AddOrder places an order. Items are stored as given, so later catalog
// edits do not change them. The order starts pending with one tracking
// event and one transaction event, written in a single batch.
func (s *Store) AddOrder(ctx context.Context, o *Order) error {
	if len(o.Items) == 0 {
		return fmt.Errorf("%w: no items", ErrInvalidOrder)
	}
	for _, it := range o.Items {
		if it.Quantity <= 0 || it.UnitPrice < 0 {
			return fmt.Errorf("%w: bad line item %q", ErrInvalidOrder, it.ProductID)
		}
	}
	if o.UserID == "" && o.Email == "" {
		return fmt.Errorf("%w: user id or email required", ErrInvalidOrder)
	}
	o.Email = NormalizeEmail(o.Email)

	if o.ID == "" {
		o.ID = newID("ord_")
	}
	o.Subtotal, o.Surcharge, o.Total = Totals(o.Items)
	o.Status = StatusPending
	now := s.now()
	o.CreatedAt, o.UpdatedAt = now, now
	o.Tracking = []TrackingEvent{{Status: StatusPending, At: now, Note: "Order placed"}}

	shipping, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return fmt.Errorf("marshaling shipping address: %w", err)
	}

	stmts := []query.Statement{query.Stmt(`
		INSERT INTO orders (`+orderColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.UserID, o.Email, o.Subtotal, o.Surcharge, o.Total, string(o.Status), string(shipping),
		o.PaymentMethod, o.PaymentRef, o.CarrierRef, formatTime(now), formatTime(now))}
	for i, it := range o.Items {
		stmts = append(stmts, query.Stmt(`
			INSERT INTO order_items (order_id, line, product_id, name_en, name_ar, unit_price, image, quantity)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			o.ID, i+1, it.ProductID, it.NameEN, it.NameAR, it.UnitPrice, it.Image, it.Quantity))
	}
	stmts = append(stmts,
		trackingStmt(o.ID, 1, o.Tracking[0]),
		s.transactionEventStmt(&TransactionEvent{
			UserID:        o.UserID,
			OrderID:       o.ID,
			Amount:        o.Total,
			PaymentMethod: o.PaymentMethod,
			PaymentRef:    o.PaymentRef,
			Status:        "placed",
			CreatedAt:     now,
		}),
	)

	if _, err := s.q.Batch(ctx, stmts...); err != nil {
		return fmt.Errorf("adding order: %w", err)
	}
	s.logger.Info("order placed", "id", o.ID, "total", o.Total, "items", len(o.Items))
	return nil
}

func trackingStmt(orderID string, seq int, ev TrackingEvent) query.Statement {
	return query.Stmt(`
		INSERT INTO order_tracking (order_id, seq, status, at, location, note)
		VALUES (?, ?, ?, ?, ?, ?)`,
		orderID, seq, string(ev.Status), formatTime(ev.At), ev.Location, ev.Note)
}

// GetOrder retrieves an order with its items and tracking history.
func (s *Store) GetOrder(ctx context.Context, id string) (*Order, error) {
	var orders []*Order
	err := s.q.Read(ctx, func(q query.Querier) error {
		var err error
		orders, err = loadOrders(ctx, q, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("getting order: %w", err)
	}
	o, ok := lo.First(orders)
	if !ok {
		return nil, ErrNotFound
	}
	return o, nil
}

// ListOrders returns a user's orders newest first. Orders stored without a
// user id are matched by email.
func (s *Store) ListOrders(ctx context.Context, userID, email string) ([]*Order, error) {
	var out []*Order
	err := s.q.Read(ctx, func(q query.Querier) error {
		var err error
		out, err = loadOrders(ctx, q, `
			SELECT `+orderColumns+` FROM orders
			WHERE (? != '' AND user_id = ?)
			   OR (user_id = '' AND ? != '' AND email = ? COLLATE NOCASE)
			ORDER BY created_at DESC, rowid DESC`,
			userID, userID, NormalizeEmail(email), NormalizeEmail(email))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	return out, nil
}

// ListAllOrders returns every order newest first.
func (s *Store) ListAllOrders(ctx context.Context) ([]*Order, error) {
	var out []*Order
	err := s.q.Read(ctx, func(q query.Querier) error {
		var err error
		out, err = loadOrders(ctx, q, `SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC, rowid DESC`)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	return out, nil
}

// UpdateOrderStatus moves an order to status and appends a tracking event
// in the same batch. An empty carrierRef keeps the current one.
func (s *Store) UpdateOrderStatus(ctx context.Context, id string, status OrderStatus, carrierRef, location, note string) (*Order, error) {
	o, err := s.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(o.Status, status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, status)
	}

	ev := TrackingEvent{Status: status, At: s.now(), Location: location, Note: note}
	if n := len(o.Tracking); n > 0 && !ev.At.After(o.Tracking[n-1].At) {
		ev.At = o.Tracking[n-1].At.Add(time.Microsecond)
	}

	act, err := s.activity(s.actor(ctx), ActionOrderStatusUpdated, "order", id, map[string]any{
		"from": string(o.Status),
		"to":   string(status),
	})
	if err != nil {
		return nil, err
	}
	_, err = s.q.Batch(ctx,
		query.Guarded(`
			UPDATE orders SET status = ?, carrier_ref = COALESCE(NULLIF(?, ''), carrier_ref), updated_at = ?
			WHERE id = ? AND status = ?`,
			string(status), carrierRef, formatTime(ev.At), id, string(o.Status)),
		trackingStmt(id, len(o.Tracking)+1, ev),
		act,
	)
	if errors.Is(err, query.ErrNoRowsAffected) {
		return nil, fmt.Errorf("%w: order %s changed concurrently", ErrInvalidTransition, id)
	}
	if err != nil {
		return nil, fmt.Errorf("updating order status: %w", err)
	}

	o.Status = status
	if carrierRef != "" {
		o.CarrierRef = carrierRef
	}
	o.UpdatedAt = ev.At
	o.Tracking = append(o.Tracking, ev)
	s.logger.Info("order status updated", "id", id, "status", status)
	return o, nil
}
