// Package logging builds the slog logger used across grokflow guardrails.
//
// # Usage
//
//	logger, err := logging.New(logging.FromConfig(cfg.Telemetry.Logging))
//	if err != nil {
//	    return err
//	}
//	logger.Info("constraint triggered", "query", query) // secrets in query are redacted
//
// # Redaction
//
// With RedactPII enabled the handler is wrapped in a RedactingHandler that
// scans the message and every attribute, including groups and attributes
// added with Logger.With:
//
//   - API keys: sk-abc123xyz456 → ***
//   - Bearer tokens: Bearer eyJhbGci... → Bearer ***
//   - Assignments: password="hunter22" → password=***
//   - Emails: user@example.com → [email]
//
// Attributes whose key names a credential (token, secret, api_key, ...) are
// masked regardless of their value.
package logging
