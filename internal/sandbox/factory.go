package sandbox

import (
	"context"

	"github.com/wioota/devloop/internal/sandbox/cgroup"
	"github.com/wioota/devloop/internal/sandbox/engine"
	"github.com/wioota/devloop/internal/sandbox/observer"
	"github.com/wioota/devloop/internal/sandbox/spec"
	appErr "github.com/wioota/devloop/pkg/errors"
	"github.com/wioota/devloop/pkg/utils/logger"

	"go.uber.org/zap"
)

// options holds the factory's injectable collaborators.
type options struct {
	audit        observer.AuditRecorder
	resources    *cgroup.Manager
	haveRes      bool
	bwrapBinary  string
	wasmRuntime  string
	wasmRunner   string
	helperBinary string
}

// Option customizes executor construction.
type Option func(*options)

// WithAuditRecorder routes blocked commands, timeouts and completions to
// the given audit collaborator.
func WithAuditRecorder(audit observer.AuditRecorder) Option {
	return func(o *options) { o.audit = audit }
}

// WithResourceManager overrides the process-wide cgroup manager. Passing
// nil disables resource-ceiling delegation entirely.
func WithResourceManager(res *cgroup.Manager) Option {
	return func(o *options) { o.resources = res; o.haveRes = true }
}

// WithBubblewrapBinary overrides the bwrap executable name.
func WithBubblewrapBinary(binary string) Option {
	return func(o *options) { o.bwrapBinary = binary }
}

// WithWASMRuntime overrides the host runtime binary and runner script of
// the WASM backend.
func WithWASMRuntime(runtimeBin, runnerScript string) Option {
	return func(o *options) { o.wasmRuntime = runtimeBin; o.wasmRunner = runnerScript }
}

// WithHelperBinary overrides the sandbox-init helper name of the seccomp
// backend.
func WithHelperBinary(helper string) Option {
	return func(o *options) { o.helperBinary = helper }
}

// NewExecutor returns an executor for the config and workload kind.
//
// In explicit mode exactly the requested backend is constructed; if it is
// unavailable on this host a BackendUnavailable error with a remediation
// hint is returned and no other backend is attempted. In auto mode the
// strongest backend compatible with the workload is picked, falling back
// down a fixed chain that always terminates in the no-isolation backend.
func NewExecutor(ctx context.Context, cfg spec.SandboxConfig, kind spec.WorkloadKind, opts ...Option) (Executor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if !o.haveRes {
		o.resources = cgroup.Default()
	}

	switch cfg.Mode {
	case spec.ModeNone:
		return engine.NewNoIsolation(cfg, o.audit), nil
	case spec.ModeBubblewrap:
		exec := engine.NewBubblewrap(cfg, o.audit, o.resources, o.bwrapBinary)
		if !exec.IsAvailable() {
			return nil, unavailable(exec.Name(), "install the bubblewrap package (bwrap)")
		}
		return exec, nil
	case spec.ModeWASM:
		exec := engine.NewWASM(cfg, o.audit, o.wasmRuntime, o.wasmRunner)
		if !exec.IsAvailable() {
			return nil, unavailable(exec.Name(), "install python3 and the bundled wasm runner")
		}
		return exec, nil
	case spec.ModeSeccomp:
		exec := engine.NewSeccomp(cfg, o.audit, o.resources, o.helperBinary)
		if !exec.IsAvailable() {
			return nil, unavailable(exec.Name(), "build and install the sandbox-init helper")
		}
		return exec, nil
	case spec.ModeAuto:
		return autoSelect(ctx, autoCandidates(cfg, kind, o)), nil
	default:
		return nil, appErr.Newf(appErr.UnknownBackend, "unknown sandbox mode %q", cfg.Mode)
	}
}

func unavailable(backend, hint string) error {
	return appErr.Newf(appErr.BackendUnavailable, "%s backend is unavailable on this host; %s", backend, hint).
		WithDetail("backend", backend)
}

// autoCandidates builds the fallback chain for a workload kind, strongest
// first. The WASM backend only enters the chain for pure interpretable
// workloads; namespace isolation and the syscall filter work for any
// workload; the no-isolation backend terminates the chain.
func autoCandidates(cfg spec.SandboxConfig, kind spec.WorkloadKind, o options) []Executor {
	candidates := make([]Executor, 0, 4)
	if kind == spec.WorkloadInterpretable {
		candidates = append(candidates, engine.NewWASM(cfg, o.audit, o.wasmRuntime, o.wasmRunner))
	}
	candidates = append(candidates,
		engine.NewBubblewrap(cfg, o.audit, o.resources, o.bwrapBinary),
		engine.NewSeccomp(cfg, o.audit, o.resources, o.helperBinary),
		engine.NewNoIsolation(cfg, o.audit),
	)
	return candidates
}

// autoSelect walks the chain and returns the first available executor.
// Unavailable optional backends are skipped with a log line, not an error.
// The last candidate must always be available, so the chain never returns
// nothing.
func autoSelect(ctx context.Context, candidates []Executor) Executor {
	for i, candidate := range candidates {
		if !candidate.IsAvailable() {
			logger.Debug(ctx, "sandbox backend unavailable, trying next",
				zap.String("backend", candidate.Name()))
			continue
		}
		if i == len(candidates)-1 {
			logger.Warn(ctx, "falling back to no isolation; security guarantees are degraded",
				zap.String("backend", candidate.Name()))
		} else {
			logger.Info(ctx, "sandbox backend selected",
				zap.String("backend", candidate.Name()))
		}
		return candidate
	}
	// Unreachable while the chain ends in the no-isolation backend.
	return candidates[len(candidates)-1]
}
