// Package template shares constraints between users and projects.
//
// A Bundle is a named list of constraint entries with the runtime metadata
// stripped: ids, trigger counts, timestamps and analytics never leave the
// store. Importing a bundle assigns fresh ids, so importing the same bundle
// twice yields two independent copies.
//
// Bundles are stored as JSON or YAML, chosen by file extension:
//
//	template_name: no-mock-data
//	template_version: 1.0.0
//	constraints:
//	  - description: Never use mock data
//	    trigger_patterns: ["mock.*", "fake.*"]
//	    enforcement_action: block
//
// An entry without patterns, trigger logic or context filters is imported as
// a keyword-only version 1 constraint.
//
// The Manager installs a set of built-in templates into the templates
// directory on first use. Files in the directory override built-ins of the
// same name.
package template
