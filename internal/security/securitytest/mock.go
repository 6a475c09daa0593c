// Package securitytest provides test doubles for the security package,
// following the providertest pattern established in the codebase.
package securitytest

import (
	"github.com/warden-run/warden/internal/security"
)

// NewTestRedactor creates a Redactor with no patterns for testing. This
// avoids false positives in tests that use strings matching production
// secret patterns. Direct instantiation is safe because the zero value of
// sync.RWMutex is valid and nil slices work with range/append.
func NewTestRedactor() *security.Redactor {
	return &security.Redactor{}
}

// NewTestAuditLogger creates an AuditLogger that records events in memory.
// Returns the logger and a function to retrieve logged events.
func NewTestAuditLogger() (*security.AuditLogger, func() []security.AuditEvent) {
	var events []security.AuditEvent
	logger := security.NewAuditLogger(security.AuditLoggerConfig{
		OnEvent: func(e security.AuditEvent) {
			events = append(events, e)
		},
	})
	return logger, func() []security.AuditEvent { return events }
}
