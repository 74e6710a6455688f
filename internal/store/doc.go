// Package store provides SQLite-backed persistence for published modules
// and the compile log.
//
// The store holds three append-only tables:
//   - modules: published module sources keyed by reference
//   - compilations: one record per block compiled on a cache miss
//   - link_edges: parent -> child substitutions performed by the resolver
//
// *Store implements module.Host, so a compiler can publish straight into
// SQLite and a later process can load the same references, and
// engine.Recorder, so the engine can log every compilation.
//
// # Critical Patterns
//
// Logical ordering:
//   - Records carry seq numbers from the engine's logical clock, never
//     timestamps
//   - All list queries ORDER BY seq ASC
//
// Idempotent writes:
//   - Compile and link records use ON CONFLICT DO NOTHING
//   - Release is idempotent; a released reference is never reissued
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - ":memory:" opens a private in-memory database
package store
