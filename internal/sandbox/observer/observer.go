// Package observer defines the audit hooks notified of sandbox activity.
package observer

import (
	"context"

	"github.com/wioota/devloop/internal/sandbox/result"
)

// AuditRecorder receives every blocked command, timeout and completed
// execution, tagged with the backend identity. The sandbox core is
// agnostic to how the recorder stores what it is told.
type AuditRecorder interface {
	RecordBlocked(ctx context.Context, backend string, cmd []string, cwd string, reason string)
	RecordTimeout(ctx context.Context, backend string, cmd []string, cwd string, elapsedMs int64)
	RecordCompletion(ctx context.Context, backend string, cmd []string, cwd string, res result.SandboxResult)
}

// NoopAuditRecorder discards all audit events.
type NoopAuditRecorder struct{}

func (NoopAuditRecorder) RecordBlocked(ctx context.Context, backend string, cmd []string, cwd string, reason string) {
}

func (NoopAuditRecorder) RecordTimeout(ctx context.Context, backend string, cmd []string, cwd string, elapsedMs int64) {
}

func (NoopAuditRecorder) RecordCompletion(ctx context.Context, backend string, cmd []string, cwd string, res result.SandboxResult) {
}
