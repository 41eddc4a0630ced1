package engine

import (
	"context"
	"os/exec"

	"github.com/wioota/devloop/internal/sandbox/observer"
	"github.com/wioota/devloop/internal/sandbox/result"
	"github.com/wioota/devloop/internal/sandbox/spec"
	appErr "github.com/wioota/devloop/pkg/errors"
	"github.com/wioota/devloop/pkg/utils/logger"

	"go.uber.org/zap"
)

const noneBackendName = "none"

// NoIsolationExecutor runs commands directly on the host.
//
// It provides NO isolation whatsoever: no namespaces, no filesystem
// restrictions, no resource ceilings. Only the tool whitelist and the
// timeout apply. Unlike every other backend, the caller's environment is
// forwarded UNFILTERED -- the default-deny passthrough policy does not
// apply here. This backend exists as an explicit escape hatch for trusted
// development environments; its audit reporting is kept intact so blocked
// commands, timeouts and completions remain visible even with isolation
// off.
type NoIsolationExecutor struct {
	cfg   spec.SandboxConfig
	audit observer.AuditRecorder
}

// NewNoIsolation creates the no-isolation backend. A nil audit recorder
// falls back to the noop recorder.
func NewNoIsolation(cfg spec.SandboxConfig, audit observer.AuditRecorder) *NoIsolationExecutor {
	if audit == nil {
		audit = observer.NoopAuditRecorder{}
	}
	return &NoIsolationExecutor{cfg: cfg, audit: audit}
}

func (e *NoIsolationExecutor) Name() string { return noneBackendName }

// IsAvailable always returns true: direct execution needs nothing from
// the host.
func (e *NoIsolationExecutor) IsAvailable() bool { return true }

// ValidateCommand checks only the whitelist. There are no path checks.
func (e *NoIsolationExecutor) ValidateCommand(cmd []string) bool {
	return len(cmd) > 0 && e.cfg.IsToolAllowed(cmd[0])
}

func (e *NoIsolationExecutor) Execute(ctx context.Context, cmd []string, cwd string, env map[string]string) (*result.SandboxResult, error) {
	if !e.ValidateCommand(cmd) {
		tool := "(empty)"
		if len(cmd) > 0 {
			tool = cmd[0]
		}
		return nil, reportBlocked(ctx, e.audit, noneBackendName, cmd, cwd,
			"tool "+tool+" is not whitelisted", appErr.CommandNotAllowed)
	}

	proc := exec.Command(cmd[0], cmd[1:]...)
	proc.Dir = cwd
	if env != nil {
		// Deliberately unfiltered, see the type comment.
		proc.Env = flattenEnv(env)
	}

	outcome, err := runCommand(ctx, proc, e.cfg.Timeout(), nil)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.ExecutionFailed, "spawn %s", cmd[0]).
			WithDetail("backend", noneBackendName)
	}
	if outcome.timedOut {
		return nil, reportTimeout(ctx, e.audit, noneBackendName, cmd, cwd, outcome.elapsed.Milliseconds())
	}

	res := &result.SandboxResult{
		Stdout:       outcome.stdout,
		Stderr:       outcome.stderr,
		ExitCode:     outcome.exitCode,
		DurationMs:   outcome.elapsed.Milliseconds(),
		PeakMemoryMB: rusagePeakMB(outcome.state),
	}
	logger.Debug(ctx, "execution finished",
		zap.String("backend", noneBackendName),
		zap.Strings("cmd", cmd),
		zap.Int("exit_code", res.ExitCode),
		zap.Int64("duration_ms", res.DurationMs))
	e.audit.RecordCompletion(ctx, noneBackendName, cmd, cwd, *res)
	return res, nil
}
