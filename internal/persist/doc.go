// Package persist decides when a store instance's engine is written to
// host block storage.
//
// # Flushes
//
// ScheduleFlush never blocks: it records the request and wakes a single
// worker goroutine. Requests that arrive while a flush is pending collapse
// into one, so rapid writes produce fewer full-image writes and the last
// write durably wins. After each successful flush a store.changed event is
// published for the instance.
//
// # Backups
//
// The first scheduled flush also starts a backup ticker (default every 10
// minutes). Each tick stores a snapshot under
//
//	<primary key>_backup_<UTC timestamp>
//
// Timestamps are strictly increasing, so backups are only ever added.
//
// Storage failures are logged and counted, never returned to writers.
package persist
