// Package match evaluates free-text queries against the constraint set.
//
// # Evaluation
//
// For each query the engine asks its CandidateSource (normally the
// store.Store keyword index) for the constraints that could fire, then for
// each candidate:
//
//  1. checks context filters: every filter key must be present in the
//     evaluation context with an allowed value
//  2. matches keywords as case-insensitive substrings and patterns as
//     case-insensitive regular expressions
//  3. combines the matches with the constraint's logic: OR fires on any
//     match, AND on all, NOT on none
//
// Version 1 constraints are keyword-only and always use OR.
//
// A pattern that does not compile is matched as a literal substring instead.
// A constraint whose evaluation panics is logged and excluded; Evaluate
// itself never fails.
//
// # Side Effects
//
// Evaluate increments the trigger count of every fired constraint and sends
// an unlabeled event per fired constraint to the Recorder (the supervisor).
// Match performs the same evaluation without side effects.
//
// # Example
//
//	engine, _ := match.NewEngine(st, match.WithRecorder(sup))
//	result := engine.Evaluate(ctx, "Create a mock API", map[string]string{"language": "go"})
//	if result.Blocked {
//	    // do not generate
//	}
package match
