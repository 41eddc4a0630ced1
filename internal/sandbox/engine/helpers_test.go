package engine

import (
	"context"
	"sync"

	"github.com/wioota/devloop/internal/sandbox/result"
	"github.com/wioota/devloop/internal/sandbox/spec"
)

// recordingAudit captures audit events for assertions.
type recordingAudit struct {
	mu          sync.Mutex
	blocked     []string
	timeouts    []string
	completions []result.SandboxResult
}

func (r *recordingAudit) RecordBlocked(ctx context.Context, backend string, cmd []string, cwd string, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blocked = append(r.blocked, backend+": "+reason)
}

func (r *recordingAudit) RecordTimeout(ctx context.Context, backend string, cmd []string, cwd string, elapsedMs int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timeouts = append(r.timeouts, backend)
}

func (r *recordingAudit) RecordCompletion(ctx context.Context, backend string, cmd []string, cwd string, res result.SandboxResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completions = append(r.completions, res)
}

func (r *recordingAudit) blockedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.blocked)
}

func (r *recordingAudit) timeoutCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.timeouts)
}

func (r *recordingAudit) completionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.completions)
}

func testConfig(tools ...string) spec.SandboxConfig {
	return spec.SandboxConfig{
		Mode:           spec.ModeAuto,
		MaxMemoryMB:    256,
		MaxCPUPercent:  50,
		TimeoutSeconds: 5,
		AllowedTools:   tools,
	}
}
