package storage

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

// Schema contains the SQL statements to create the constraint database schema.
const Schema = `
-- Constraint definitions
CREATE TABLE IF NOT EXISTS constraints (
    id TEXT PRIMARY KEY,
    position INTEGER NOT NULL,
    description TEXT NOT NULL,
    trigger_keywords TEXT NOT NULL,
    trigger_patterns TEXT NOT NULL,
    trigger_logic TEXT NOT NULL,
    context_filters TEXT NOT NULL,
    enforcement_action TEXT NOT NULL,
    enforcement_message TEXT NOT NULL,
    enabled INTEGER NOT NULL,
    version INTEGER NOT NULL,
    trigger_count INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL,
    last_triggered_at TEXT
);

-- Supervisor analytics, one row per constraint
CREATE TABLE IF NOT EXISTS constraint_analytics (
    constraint_id TEXT PRIMARY KEY,
    true_positive_count INTEGER NOT NULL DEFAULT 0,
    false_positive_count INTEGER NOT NULL DEFAULT 0,
    unlabeled_count INTEGER NOT NULL DEFAULT 0,
    total_triggers INTEGER NOT NULL DEFAULT 0,
    precision REAL,
    effectiveness_score REAL NOT NULL DEFAULT 0,
    drift_score REAL NOT NULL DEFAULT 0,
    trigger_history TEXT NOT NULL,
    last_updated TEXT NOT NULL
);

-- Schema version table
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_constraints_position ON constraints(position);
`

// InsertSchemaVersion inserts the schema version into the schema_version table.
const InsertSchemaVersion = `
INSERT INTO schema_version (version, applied_at)
VALUES (?, datetime('now'))
ON CONFLICT(version) DO NOTHING;
`

// GetSchemaVersion retrieves the current schema version from the database.
const GetSchemaVersion = `
SELECT version FROM schema_version ORDER BY version DESC LIMIT 1;
`

const selectConstraints = `
SELECT id, description, trigger_keywords, trigger_patterns, trigger_logic,
       context_filters, enforcement_action, enforcement_message, enabled,
       version, trigger_count, created_at, last_triggered_at
FROM constraints
ORDER BY position ASC;
`

const insertConstraint = `
INSERT INTO constraints (
    id, position, description, trigger_keywords, trigger_patterns, trigger_logic,
    context_filters, enforcement_action, enforcement_message, enabled,
    version, trigger_count, created_at, last_triggered_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`

const selectAnalytics = `
SELECT constraint_id, true_positive_count, false_positive_count, unlabeled_count,
       total_triggers, precision, effectiveness_score, drift_score,
       trigger_history, last_updated
FROM constraint_analytics
ORDER BY constraint_id ASC;
`

const insertAnalytics = `
INSERT INTO constraint_analytics (
    constraint_id, true_positive_count, false_positive_count, unlabeled_count,
    total_triggers, precision, effectiveness_score, drift_score,
    trigger_history, last_updated
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`
