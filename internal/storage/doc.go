// Package storage is the persistence layer for the alert pipeline.
//
// It holds:
//   - The shop directory (tenant shops; written by the management app,
//     read-only here)
//   - Per-shop alert settings overrides (optional row, nullable fields)
//   - Per-shop inventory snapshots (written by the management app)
//   - Subscriber records (the only rows this process mutates)
package storage
