// Package storage provides the optional run journal.
//
// Each finished task run is appended as one RunRecord. The journal is
// write-mostly operational history; the loop never reads it back.
//
// Drivers:
//   - "file": JSON Lines appended to a single file
//   - "sqlite": SQLite database file (build with -tags sqlite)
package storage
