// Package query is the single entry point for running SQL against a store
// instance's live engine.
//
// A statement is a write when its first keyword is one of insert, update,
// delete, replace, create, alter, drop, truncate, or pragma (case-insensitive,
// ignoring leading whitespace and comments). Every successful write schedules
// exactly one persistence flush before Execute returns; reads and failed
// statements schedule none.
//
// Failures come back as *StatementError carrying the engine's message.
// Values are always bound as arguments, never interpolated.
package query
