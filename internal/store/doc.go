// Package store provides typed access to one shopdb store instance.
//
// # Architecture
//
// A Store sits on top of a query.Facade bound to a single engine session.
// It never touches another instance: the privileged and tenant stores each
// get their own Store value built by the instance package.
//
// Every mutating operation that represents a business event issues its
// statements as one facade batch, with the matching audit record as the
// last statement of that batch. Either the whole batch applies or none of
// it does, and a committed batch schedules exactly one flush.
//
// # Data Models
//
// Business entities:
//
//   - User: account with a role-prefixed id (adm_ or usr_) and a case-folded email
//   - Product: bilingual catalog entry (privileged store only)
//   - Order: placed order with snapshotted OrderItems and TrackingEvents
//   - Address, SavedCard, Favorite, SavedCart, BulkRequest: customer-owned rows
//   - ActiveSession: the logged-in user, persisted in the image
//
// Audit records:
//
//   - LoginEvent: one per login attempt, successful or not
//   - ActivityEvent: one per business action
//   - TransactionEvent: one per money movement
//
// Audit tables are append-only through this package. Deleting a user
// removes the rows it owns and keeps every audit record that names it.
//
// # Order lifecycle
//
//	pending -> processing -> shipped -> out-for-delivery -> delivered
//	   \___________\______________\____________\________-> cancelled
//
// Forward moves may skip steps. delivered and cancelled are terminal.
// Each accepted move appends one TrackingEvent in the same batch as the
// status change, so the last tracking status always equals the order status.
//
// # Timestamps
//
// Times are stored as fixed-width UTC RFC 3339 strings with nanoseconds so
// that lexical order matches chronological order.
package store
