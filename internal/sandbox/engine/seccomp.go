package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"runtime"
	"sync"

	"github.com/wioota/devloop/internal/sandbox/cgroup"
	"github.com/wioota/devloop/internal/sandbox/observer"
	"github.com/wioota/devloop/internal/sandbox/result"
	"github.com/wioota/devloop/internal/sandbox/spec"
	appErr "github.com/wioota/devloop/pkg/errors"
	"github.com/wioota/devloop/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	seccompBackendName  = "seccomp"
	defaultHelperBinary = "sandbox-init"
)

// SeccompExecutor confines commands with a syscall deny-list instead of
// namespaces. It spawns the sandbox-init helper, which applies rlimits and
// the libseccomp filter before exec'ing the target. Weaker than namespace
// isolation (the filesystem stays visible) but available on hosts without
// user-namespace support.
type SeccompExecutor struct {
	cfg   spec.SandboxConfig
	audit observer.AuditRecorder
	res   *cgroup.Manager

	helper   string
	lookPath func(string) (string, error)

	availOnce sync.Once
	avail     bool
}

// NewSeccomp creates the syscall-filter backend. helper overrides the
// sandbox-init binary name; empty means the default.
func NewSeccomp(cfg spec.SandboxConfig, audit observer.AuditRecorder, res *cgroup.Manager, helper string) *SeccompExecutor {
	if audit == nil {
		audit = observer.NoopAuditRecorder{}
	}
	if helper == "" {
		helper = defaultHelperBinary
	}
	return &SeccompExecutor{
		cfg:      cfg,
		audit:    audit,
		res:      res,
		helper:   helper,
		lookPath: exec.LookPath,
	}
}

func (e *SeccompExecutor) Name() string { return seccompBackendName }

// IsAvailable requires Linux and a resolvable sandbox-init helper.
func (e *SeccompExecutor) IsAvailable() bool {
	e.availOnce.Do(func() {
		if runtime.GOOS != "linux" {
			return
		}
		_, err := e.lookPath(e.helper)
		e.avail = err == nil
	})
	return e.avail
}

// ValidateCommand checks the whitelist and the trusted-path requirement,
// same as the namespace backend.
func (e *SeccompExecutor) ValidateCommand(cmd []string) bool {
	_, _, err := e.validate(cmd)
	return err == nil
}

func (e *SeccompExecutor) validate(cmd []string) (resolved string, reason string, err error) {
	if len(cmd) == 0 {
		return "", "empty command", appErr.New(appErr.CommandNotAllowed)
	}
	if !e.cfg.IsToolAllowed(cmd[0]) {
		return "", "tool " + cmd[0] + " is not whitelisted", appErr.New(appErr.CommandNotAllowed)
	}
	resolved, ok := resolveTrustedPath(e.lookPath, cmd[0])
	if !ok {
		return "", "executable for " + cmd[0] + " resolves outside trusted directories",
			appErr.New(appErr.UntrustedExecutablePath)
	}
	return resolved, "", nil
}

func (e *SeccompExecutor) Execute(ctx context.Context, cmd []string, cwd string, env map[string]string) (*result.SandboxResult, error) {
	resolved, reason, verr := e.validate(cmd)
	if verr != nil {
		return nil, reportBlocked(ctx, e.audit, seccompBackendName, cmd, cwd, reason, appErr.GetCode(verr))
	}
	if !e.IsAvailable() {
		return nil, appErr.New(appErr.BackendUnavailable).
			WithMessage("sandbox-init helper is not installed; build and install cmd/sandbox-init").
			WithDetail("backend", seccompBackendName)
	}

	argv := append([]string{resolved}, cmd[1:]...)
	request := InitRequest{
		Argv:           argv,
		Dir:            cwd,
		Env:            filterEnv(e.cfg, env),
		MaxMemoryMB:    e.cfg.MaxMemoryMB,
		CPUTimeSeconds: int64(e.cfg.TimeoutSeconds),
		DeniedSyscalls: DefaultDeniedSyscalls,
	}
	payload, err := json.Marshal(request)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.ExecutionFailed, "encode init request")
	}

	proc := exec.Command(e.helper)
	proc.Stdin = bytes.NewReader(payload)

	onStart, snapshot := attachResources(ctx, e.res, e.cfg, seccompBackendName)
	outcome, err := runCommand(ctx, proc, e.cfg.Timeout(), onStart)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.ExecutionFailed, "spawn sandbox-init for %s", cmd[0]).
			WithDetail("backend", seccompBackendName)
	}
	if outcome.timedOut {
		return nil, reportTimeout(ctx, e.audit, seccompBackendName, cmd, cwd, outcome.elapsed.Milliseconds())
	}

	usage := snapshot()
	peak := usage.PeakMemoryMB
	if peak == 0 {
		peak = rusagePeakMB(outcome.state)
	}
	res := &result.SandboxResult{
		Stdout:       outcome.stdout,
		Stderr:       outcome.stderr,
		ExitCode:     outcome.exitCode,
		DurationMs:   outcome.elapsed.Milliseconds(),
		PeakMemoryMB: peak,
		CPUPercent:   usage.CPUPercent,
	}
	logger.Debug(ctx, "execution finished",
		zap.String("backend", seccompBackendName),
		zap.Strings("cmd", cmd),
		zap.Int("exit_code", res.ExitCode),
		zap.Int64("duration_ms", res.DurationMs))
	e.audit.RecordCompletion(ctx, seccompBackendName, cmd, cwd, *res)
	return res, nil
}
