// Package constraint defines the data model shared by the constraint engine:
// constraints, trigger events, analytics records, and the error taxonomy.
//
// # Constraints
//
// A Constraint pairs a trigger condition with an enforcement action:
//
//	c := &constraint.Constraint{
//	    Description:       "Never use mock data",
//	    TriggerKeywords:   []string{"mock", "demo"},
//	    EnforcementAction: constraint.ActionBlock,
//	}
//	c.Normalize()
//	if err := constraint.Validate(c); err != nil {
//	    return err
//	}
//
// Trigger logic combines the keyword and pattern matches:
//
//   - OR fires when any keyword or pattern matches
//   - AND fires only when all of them match
//   - NOT fires only when none of them match
//
// Version 1 constraints are the legacy keyword-only form and are always
// evaluated with OR logic.
//
// # Errors
//
// Callers distinguish failures with errors.Is against ErrInvalid, ErrNotFound,
// ErrAmbiguousID and ErrCorrupt, or with errors.As against the concrete
// ValidationError, NotFoundError, AmbiguousIDError and StorageError types.
package constraint
