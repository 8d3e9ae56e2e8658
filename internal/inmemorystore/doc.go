// Package inmemorystore provides an ephemeral, thread-safe, in-memory
// backend for both the provenance store and the run ledger.
//
// # Characteristics
//
//   - **Ephemeral:** Nothing survives the process. Every session starts with
//     no prior provenance and no reusable runs.
//   - **Thread-Safe:** Uses sync.Map, one map per record family.
//   - **Isolated:** Values are deep-copied on the way in and out, so callers
//     can never mutate stored state through a returned pointer.
//
// # Concurrency Model
//
// sync.Map fits the access pattern: keys are independent, each artifact or
// run is written a handful of times and read many times. Serialising writers
// of the same key is the job of provenance.Store and ledger.Ledger, not of
// this package.
//
// Use internal/sqlstore or internal/redisstore when results have to survive
// across sessions.
package inmemorystore
