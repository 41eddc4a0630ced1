package engine

import (
	"context"
	"os"
	"os/exec"
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
	bubblewrapBackendName = "bubblewrap"
	defaultBwrapBinary    = "bwrap"
)

// roBindDirs are the base system directories bound read-only into the
// sandbox. /lib64 is appended only when the host has one.
var roBindDirs = []string{"/usr", "/bin", "/lib", "/etc"}

// BubblewrapExecutor isolates commands with bubblewrap: read-only binds of
// the base system directories, a read-write bind of the working directory
// only, a private /tmp, and unshared network, PID, IPC and UTS namespaces.
// The child dies with its parent. Nothing from the caller's environment is
// inherited implicitly; only allow-listed variables are injected.
type BubblewrapExecutor struct {
	cfg   spec.SandboxConfig
	audit observer.AuditRecorder
	res   *cgroup.Manager

	binary     string
	lookPath   func(string) (string, error)
	fileExists func(string) bool

	availOnce sync.Once
	avail     bool
}

// NewBubblewrap creates the namespace-isolation backend. binary overrides
// the bwrap executable name; empty means the default. A nil res disables
// resource-ceiling delegation.
func NewBubblewrap(cfg spec.SandboxConfig, audit observer.AuditRecorder, res *cgroup.Manager, binary string) *BubblewrapExecutor {
	if audit == nil {
		audit = observer.NoopAuditRecorder{}
	}
	if binary == "" {
		binary = defaultBwrapBinary
	}
	return &BubblewrapExecutor{
		cfg:      cfg,
		audit:    audit,
		res:      res,
		binary:   binary,
		lookPath: exec.LookPath,
		fileExists: func(path string) bool {
			_, err := os.Stat(path)
			return err == nil
		},
	}
}

func (e *BubblewrapExecutor) Name() string { return bubblewrapBackendName }

// IsAvailable reports whether the bwrap utility resolves on this host.
// The probe runs once; the result is cached.
func (e *BubblewrapExecutor) IsAvailable() bool {
	e.availOnce.Do(func() {
		_, err := e.lookPath(e.binary)
		e.avail = err == nil
	})
	return e.avail
}

// ValidateCommand checks the whitelist and that the executable resolves
// into a trusted system directory.
func (e *BubblewrapExecutor) ValidateCommand(cmd []string) bool {
	_, _, err := e.validate(cmd)
	return err == nil
}

// validate returns the resolved executable path alongside the rejection
// reason, letting Execute distinguish the two policy violations.
func (e *BubblewrapExecutor) validate(cmd []string) (resolved string, reason string, err error) {
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

// buildArgs assembles the bwrap command line for one execution.
func (e *BubblewrapExecutor) buildArgs(resolved string, cmd []string, cwd string, env []string) []string {
	args := make([]string, 0, 64)
	for _, dir := range roBindDirs {
		args = append(args, "--ro-bind", dir, dir)
	}
	if e.fileExists("/lib64") {
		args = append(args, "--ro-bind", "/lib64", "/lib64")
	}
	args = append(args,
		"--bind", cwd, cwd,
		"--tmpfs", "/tmp",
		"--proc", "/proc",
		"--dev", "/dev",
		"--unshare-net",
		"--unshare-pid",
		"--unshare-ipc",
		"--unshare-uts",
		"--die-with-parent",
		"--clearenv",
	)
	for _, kv := range env {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				args = append(args, "--setenv", kv[:i], kv[i+1:])
				break
			}
		}
	}
	args = append(args, "--chdir", cwd, "--", resolved)
	args = append(args, cmd[1:]...)
	return args
}

func (e *BubblewrapExecutor) Execute(ctx context.Context, cmd []string, cwd string, env map[string]string) (*result.SandboxResult, error) {
	resolved, reason, verr := e.validate(cmd)
	if verr != nil {
		return nil, reportBlocked(ctx, e.audit, bubblewrapBackendName, cmd, cwd, reason, appErr.GetCode(verr))
	}
	if !e.IsAvailable() {
		return nil, appErr.New(appErr.BackendUnavailable).
			WithMessage("bubblewrap is not installed; install the bwrap package").
			WithDetail("backend", bubblewrapBackendName)
	}

	args := e.buildArgs(resolved, cmd, cwd, filterEnv(e.cfg, env))
	proc := exec.Command(e.binary, args...)

	onStart, snapshot := attachResources(ctx, e.res, e.cfg, bubblewrapBackendName)
	outcome, err := runCommand(ctx, proc, e.cfg.Timeout(), onStart)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.ExecutionFailed, "spawn bwrap for %s", cmd[0]).
			WithDetail("backend", bubblewrapBackendName)
	}
	if outcome.timedOut {
		return nil, reportTimeout(ctx, e.audit, bubblewrapBackendName, cmd, cwd, outcome.elapsed.Milliseconds())
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
		zap.String("backend", bubblewrapBackendName),
		zap.Strings("cmd", cmd),
		zap.Int("exit_code", res.ExitCode),
		zap.Int64("duration_ms", res.DurationMs))
	e.audit.RecordCompletion(ctx, bubblewrapBackendName, cmd, cwd, *res)
	return res, nil
}
