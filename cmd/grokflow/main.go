// Grokflow guardrails is the command line front end of the constraint
// engine.
//
// It lets developers codify rules once ("never use mock data", "always ask
// before running migrations") and checks every query against them:
//   - Keyword and regex triggers with OR, AND and NOT logic
//   - Context filters by file type, language or any other key
//   - Warn, block and require_action enforcement
//   - Precision, drift and health analytics from true/false positive feedback
//   - Shareable constraint templates
//
// Usage:
//
//	# Add a constraint
//	grokflow constraint add "Never use mock data" -k mock,fake -a block
//
//	# Check a query (exits 2 when blocked)
//	grokflow check "generate mock users for the demo"
//
//	# Label the last trigger as a false positive
//	grokflow feedback 1a2b3c4d fp
//
//	# Show the health dashboard
//	grokflow constraint dashboard
//
//	# Serve metrics and run the periodic health sweep
//	grokflow monitor
package main

import "os"

func main() {
	os.Exit(Execute())
}
