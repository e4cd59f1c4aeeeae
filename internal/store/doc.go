// Package store is the SQLite registry ledger.
//
// A generation pass only sees the declaration it was given. The ledger
// records every pass so a later combine can span namespaces generated by
// separate runs:
//   - runs: one row per pass, UUIDv7 id, logical seq, declaration hash
//   - namespaces: the namespaces a run rendered and whether they were collected
//   - commands: the commands of each rendered namespace
//
// The latest run that rendered a namespace owns it. RegistryState folds
// those latest records back into the union and pending sets a
// registry.Registry restores from.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Namespace hashes come from ir.NamespaceHash (canonical JSON, SHA-256 with
// domain separation), so an unchanged namespace keeps its hash across runs.
package store
