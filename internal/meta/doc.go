// Package meta provides the constrained value types used for workspace logs.
//
// This package contains value types only and imports nothing internal, so
// every other package may depend on it.
//
// Key constraints:
//   - NO float types: numeric logs are int64
//   - NO null: a missing log is an absent key
//   - Canonical JSON (sorted keys, NFC strings) is the only serialization used
//     for persisted logs
package meta
