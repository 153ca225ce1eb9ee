// Package logging provides structured logging for the BluOS tools.
//
// This package wraps a zap logger with convenience functions. Every long-lived
// component (discovery, status polling, sync-status fetching, state
// reconciliation) takes a child logger from Named so output can be filtered by
// component.
//
// # Log Levels
//
//   - Debug: packet dumps, request/response lines, every poll
//   - Info: endpoint resolved, session start/stop
//   - Warn: failed polls and fetches that will be retried
//   - Error: discovery failures surfaced to callers
//
// # Configuration
//
// Logging is silent unless a level is given, either explicitly or through
// the BLUOS_LOG_LEVEL environment variable:
//
//	if err := logging.Initialize("debug"); err != nil {
//	    log.Fatal(err)
//	}
//	defer logging.Sync()
//
// Output goes to stderr so that JSON written to stdout by the CLI stays
// machine readable.
package logging
