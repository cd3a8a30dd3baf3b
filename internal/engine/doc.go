// Package engine owns the live embedded SQL engine of one store instance.
//
// # Lifecycle
//
// A Session moves Uninitialized -> Loading -> Ready on its first Open:
//
//  1. read the persisted image from the block store
//  2. deserialize it, or start an empty engine when absent or unreadable
//  3. apply the schema with Ensure
//  4. seed default rows when the primary seed table is empty
//
// Opening a Ready session returns the same handle.
//
// # Schema
//
// Ensure is idempotent. Missing tables are created, missing columns are
// added with ALTER TABLE, and indexes use IF NOT EXISTS. It runs at
// session start and again after every image import.
package engine
