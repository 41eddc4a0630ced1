package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/wioota/devloop/internal/sandbox/observer"
	"github.com/wioota/devloop/internal/sandbox/result"
	"github.com/wioota/devloop/internal/sandbox/spec"
	appErr "github.com/wioota/devloop/pkg/errors"
	"github.com/wioota/devloop/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	wasmBackendName       = "wasm"
	defaultWASMRuntime    = "python3"
	syntaxCheckTimeout    = 10 * time.Second
	malformedReplyMessage = "wasm runner returned a malformed reply"
)

// wasmInterpreters are the interpreter names whose invocation forms the
// backend accepts. Anything else is rejected even if whitelisted.
var wasmInterpreters = []string{"python3", "python"}

// wasmRequest is the execution request written to the runner's stdin.
type wasmRequest struct {
	Args           []string          `json:"args"`
	Cwd            string            `json:"cwd"`
	TimeoutSeconds int               `json:"timeout_seconds"`
	MaxMemoryMB    int64             `json:"max_memory_mb"`
	Env            map[string]string `json:"env"`
}

// wasmReply is the single structured message the runner must produce on
// stdout. ExitCode is a pointer so a missing field is distinguishable
// from exit code zero.
type wasmReply struct {
	Stdout       string `json:"stdout"`
	Stderr       string `json:"stderr"`
	ExitCode     *int   `json:"exit_code"`
	PeakMemoryMB int64  `json:"peak_memory_mb"`
	FuelUsed     int64  `json:"fuel_used"`
}

// WASMExecutor runs pure interpreter scripts inside a WASM runtime hosted
// by a side process, trading native-extension support for portability. It
// is the auto-selection's first choice for interpretable workloads when
// namespace isolation is not required or not present.
type WASMExecutor struct {
	cfg   spec.SandboxConfig
	audit observer.AuditRecorder

	runtimeBin   string
	runnerScript string
	lookPath     func(string) (string, error)
	syntaxCheck  func(ctx context.Context) error

	availOnce sync.Once
	avail     bool
}

// NewWASM creates the WASM backend. runtimeBin and runnerScript override
// the host interpreter and the bundled runner; empty values pick the
// defaults.
func NewWASM(cfg spec.SandboxConfig, audit observer.AuditRecorder, runtimeBin, runnerScript string) *WASMExecutor {
	if audit == nil {
		audit = observer.NoopAuditRecorder{}
	}
	if runtimeBin == "" {
		runtimeBin = defaultWASMRuntime
	}
	if runnerScript == "" {
		runnerScript = defaultRunnerPath()
	}
	e := &WASMExecutor{
		cfg:          cfg,
		audit:        audit,
		runtimeBin:   runtimeBin,
		runnerScript: runnerScript,
		lookPath:     exec.LookPath,
	}
	e.syntaxCheck = e.compileRunner
	return e
}

// defaultRunnerPath looks for the bundled runner next to the executable,
// overridable through the environment.
func defaultRunnerPath() string {
	if path := os.Getenv("DEVLOOP_WASM_RUNNER"); path != "" {
		return path
	}
	return "scripts/wasm/runner.py"
}

func (e *WASMExecutor) Name() string { return wasmBackendName }

// IsAvailable requires the host runtime binary and the runner script. The
// health check syntax-validates the runner once and caches the outcome.
func (e *WASMExecutor) IsAvailable() bool {
	e.availOnce.Do(func() {
		if _, err := e.lookPath(e.runtimeBin); err != nil {
			return
		}
		if _, err := os.Stat(e.runnerScript); err != nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), syntaxCheckTimeout)
		defer cancel()
		if err := e.syntaxCheck(ctx); err != nil {
			logger.Warn(ctx, "wasm runner failed syntax validation",
				zap.String("runner", e.runnerScript), zap.Error(err))
			return
		}
		e.avail = true
	})
	return e.avail
}

func (e *WASMExecutor) compileRunner(ctx context.Context) error {
	return exec.CommandContext(ctx, e.runtimeBin, "-m", "py_compile", e.runnerScript).Run()
}

// ValidateCommand accepts only the interpreter's own invocation forms:
// direct script execution (python3 script.py ...) and inline code
// execution (python3 -c code ...).
func (e *WASMExecutor) ValidateCommand(cmd []string) bool {
	if len(cmd) < 2 {
		return false
	}
	interpreter := false
	for _, name := range wasmInterpreters {
		if cmd[0] == name {
			interpreter = true
			break
		}
	}
	if !interpreter || !e.cfg.IsToolAllowed(cmd[0]) {
		return false
	}
	if cmd[1] == "-c" {
		return len(cmd) >= 3
	}
	return strings.HasSuffix(cmd[1], ".py")
}

func (e *WASMExecutor) Execute(ctx context.Context, cmd []string, cwd string, env map[string]string) (*result.SandboxResult, error) {
	if !e.ValidateCommand(cmd) {
		return nil, reportBlocked(ctx, e.audit, wasmBackendName, cmd, cwd,
			"command is not an accepted interpreter invocation", appErr.CommandNotAllowed)
	}
	if !e.IsAvailable() {
		return nil, appErr.New(appErr.BackendUnavailable).
			WithMessage("wasm runtime is not available; install " + e.runtimeBin + " and the bundled runner").
			WithDetail("backend", wasmBackendName)
	}

	request := wasmRequest{
		Args:           cmd,
		Cwd:            cwd,
		TimeoutSeconds: e.cfg.TimeoutSeconds,
		MaxMemoryMB:    e.cfg.MaxMemoryMB,
		Env:            filterEnvMap(e.cfg, env),
	}
	payload, err := json.Marshal(request)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.ExecutionFailed, "encode wasm request")
	}

	proc := exec.Command(e.runtimeBin, e.runnerScript)
	proc.Stdin = bytes.NewReader(payload)

	outcome, err := runCommand(ctx, proc, e.cfg.Timeout(), nil)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.ExecutionFailed, "spawn wasm runner").
			WithDetail("backend", wasmBackendName)
	}
	if outcome.timedOut {
		return nil, reportTimeout(ctx, e.audit, wasmBackendName, cmd, cwd, outcome.elapsed.Milliseconds())
	}

	res := decodeWASMReply(ctx, outcome)
	logger.Debug(ctx, "execution finished",
		zap.String("backend", wasmBackendName),
		zap.Strings("cmd", cmd),
		zap.Int("exit_code", res.ExitCode),
		zap.Int64("duration_ms", res.DurationMs))
	e.audit.RecordCompletion(ctx, wasmBackendName, cmd, cwd, *res)
	return res, nil
}

// decodeWASMReply turns the runner's stdout into a result. A reply that
// cannot be parsed in the expected shape becomes a synthetic failed
// result rather than a transport error, keeping the caller-facing
// contract uniform.
func decodeWASMReply(ctx context.Context, outcome execOutcome) *result.SandboxResult {
	var reply wasmReply
	if err := json.Unmarshal([]byte(outcome.stdout), &reply); err != nil || reply.ExitCode == nil {
		logger.Warn(ctx, "wasm runner reply could not be parsed",
			zap.String("backend", wasmBackendName),
			zap.Int("runner_exit_code", outcome.exitCode),
			zap.String("runner_stderr", outcome.stderr))
		return &result.SandboxResult{
			ExitCode:   -1,
			Stderr:     malformedReplyMessage + ": " + firstLine(outcome.stderr),
			DurationMs: outcome.elapsed.Milliseconds(),
		}
	}
	return &result.SandboxResult{
		Stdout:       reply.Stdout,
		Stderr:       reply.Stderr,
		ExitCode:     *reply.ExitCode,
		DurationMs:   outcome.elapsed.Milliseconds(),
		PeakMemoryMB: reply.PeakMemoryMB,
		FuelUsed:     reply.FuelUsed,
	}
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}

// filterEnvMap is the map form of filterEnv, used by the wasm protocol.
func filterEnvMap(cfg spec.SandboxConfig, env map[string]string) map[string]string {
	filtered := make(map[string]string)
	for name, value := range env {
		if cfg.IsEnvAllowed(name) {
			filtered[name] = value
		}
	}
	return filtered
}
