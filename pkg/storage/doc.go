// Package storage provides persistence backends for constraints and their
// analytics records.
//
// # Backends
//
//   - File: two JSON documents (constraints.json and constraint_analytics.json)
//     in a directory, written atomically with 0600 permissions
//   - SQLite: a single database with one table per collection, using either
//     the pure Go modernc.org/sqlite driver or the cgo mattn/go-sqlite3 driver
//   - Memory: in-memory storage for tests and embedding
//
// # Basic Usage
//
//	backend, err := storage.New(&storage.Config{
//	    Backend: storage.BackendFile,
//	    Dir:     "~/.grokflow",
//	}, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer backend.Close()
//
//	constraints, err := backend.LoadConstraints(ctx)
//
// # Concurrent Writers
//
// UpdateConstraints and UpdateAnalytics re-read, modify and save a collection
// under an exclusive lock. The file backend holds an advisory flock on
// ".lock" in its directory; the SQLite backend runs the cycle in a
// BEGIN IMMEDIATE transaction. Writers in other processes wait for the lock,
// so concurrent updates never drop each other's changes.
//
// # Corruption
//
// A collection that cannot be decoded is reported as a
// *constraint.StorageError wrapping constraint.ErrCorrupt. The file backend
// also moves the unreadable document aside to "<name>.corrupt" so that the
// next save does not overwrite it. Callers typically log the error and
// continue with an empty collection. An update treats a corrupt collection
// the same way and replaces it.
package storage
