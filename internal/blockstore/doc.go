// Package blockstore provides key-addressed durable storage for byte buffers.
//
// It is the host storage boundary for persisted store images: a fixed
// primary key per store instance plus an open-ended set of backup keys.
//
//   - SQLiteBlocks: durable blobs in a host-local SQLite file (mattn/go-sqlite3)
//   - Memory: map-backed store for tests
//
// Get reports absent keys with ok=false rather than an error.
package blockstore
