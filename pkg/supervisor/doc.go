// Package supervisor turns trigger events and user feedback into quality
// signals for each constraint.
//
// # Analytics
//
// Every fired constraint produces an unlabeled TriggerEvent. Users later
// label events as true or false positives with Feedback. Per constraint the
// supervisor keeps cumulative counters and the last 50 events, and derives:
//
//   - precision: TP/(TP+FP), undefined without labels
//   - false positive rate: FP/(TP+FP)
//   - effectiveness: precision * n/(n+k), n the number of triggers
//   - drift: 0.7*max(0, p_older - p_recent) + 0.3*variance of chunk
//     precision, over the most recent labeled events, clamped to [0,1]
//
// Drift is a heuristic for "this rule used to be right and now is not", not a
// statistical test.
//
// # Health
//
// HealthPolicy classifies metrics into healthy, acceptable, needs_review or
// unhealthy. Unhealthy requires a minimum number of labeled samples so that a
// single false positive does not condemn a new constraint.
//
// # Suggestions
//
// SuggestImprovements proposes edits to an existing constraint and
// SuggestNewConstraints mines frequent uncovered tokens from query history.
//
// # Scheduling
//
// Scheduler runs Sweep on a cron schedule, pruning analytics of removed
// constraints and publishing the dashboard to a HealthObserver such as the
// Prometheus collector.
package supervisor
