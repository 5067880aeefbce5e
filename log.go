package authflow

import "log"

// logf reports best-effort failures that must not fail the operation, like a
// stale attempt-counter clear. Never called with secrets or codes.
func logf(format string, args ...any) {
	log.Printf("authflow: "+format, args...)
}
