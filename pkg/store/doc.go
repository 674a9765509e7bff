// Package store owns the set of constraint definitions.
//
// The Store is the only writer of constraints: add, remove, enable, disable
// and trigger-count updates all go through it. Each one re-reads the
// collection inside storage.Backend.UpdateConstraints, applies its change to
// that fresh copy and saves it before returning, so several processes can
// share one constraint directory or database. A failed save leaves the
// in-memory set unchanged.
//
// Persisted constraints that fail validation, usually after a hand edit, are
// kept and can be listed and removed, but they are left out of the index and
// never match.
//
// # Identifiers
//
// Constraints get an 8 character hex id. Commands accept any prefix of at
// least four characters; a prefix matching several ids fails with
// *constraint.AmbiguousIDError and changes nothing.
//
// # Keyword Index
//
// After every load and mutation the store rebuilds an Index mapping literal
// terms to enabled constraints. Terms come from keywords and from the
// literal prefix every match of a regex must start with:
//
//	keyword "mock"          -> "mock"
//	pattern `\bTODO:\s*fix` -> "todo:"
//	pattern `(foo|bar)`     -> none, constraint goes to the linear-scan set
//
// Index.Candidates folds the query, splits it on whitespace and looks up
// every substring of every token, so a keyword embedded in a longer word is
// still found. Constraints whose firing cannot be predicted from terms (NOT
// logic, or OR logic with a pattern lacking a literal prefix) are returned for
// every query.
//
// # Watching
//
// Watcher reloads the store when its files change on disk, so that several
// processes sharing a constraint directory see each other's edits.
package store
