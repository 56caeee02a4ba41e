// Package store provides a SQLite-backed persistent workspace registry.
//
// The store implements registry.Registry with:
//   - Workspaces: one row per live name (logs and spectra as JSON TEXT)
//   - Registry events: an append-only log of add/rename/delete mutations
//
// # Critical Patterns
//
// Logical time:
//   - Events are ordered by seq INTEGER from a logical clock, never timestamps
//   - The clock resumes from MAX(seq) when an existing database is reopened
//
// Sessions:
//   - Every event carries the session token of the process that wrote it
//   - Tokens are UUIDv7 by default, so sessions sort by start time
//
// Deterministic queries:
//   - Names ORDER BY name COLLATE BINARY
//   - Events ORDER BY seq ASC
//
// Atomic mutations:
//   - Each mutation and its event row are written in one transaction, so the
//     event log never disagrees with the workspaces table
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//
// Schema changes after the base schema are numbered migrations tracked in
// PRAGMA user_version.
//
// Logs are serialized with meta.MarshalCanonical so equal workspaces are
// stored as identical bytes.
package store
