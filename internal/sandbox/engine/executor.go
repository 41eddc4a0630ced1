package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/wioota/devloop/internal/sandbox/result"
	"github.com/wioota/devloop/internal/sandbox/spec"
)

// Executor runs whitelisted commands inside an isolation backend.
type Executor interface {
	// Execute runs one command in cwd with the given environment and
	// returns its result. It fails with CommandNotAllowed before any
	// process is spawned when validation fails, and with ExecutionTimeout
	// after killing a process that outlives the configured timeout.
	Execute(ctx context.Context, cmd []string, cwd string, env map[string]string) (*result.SandboxResult, error)

	// IsAvailable reports whether the backend can run on this host.
	// The probe result is cached; repeated calls are cheap.
	IsAvailable() bool

	// ValidateCommand reports whether the command passes this backend's
	// policy. It is side-effect free.
	ValidateCommand(cmd []string) bool

	// Name identifies the backend in audit records and logs.
	Name() string
}

// stopwatch measures one execution. A value is created inside each
// Execute call; it is never stored on the executor, so concurrent calls
// on one instance cannot corrupt each other's timing.
type stopwatch struct {
	start time.Time
}

func startStopwatch() stopwatch {
	return stopwatch{start: time.Now()}
}

func (s stopwatch) elapsed() time.Duration {
	return time.Since(s.start)
}

func (s stopwatch) elapsedMs() int64 {
	return s.elapsed().Milliseconds()
}

// filterEnv applies the default-deny passthrough policy: only variables
// named in allowedEnvVars survive. An empty allow-list drops everything.
// The result is sorted KEY=VALUE pairs for deterministic spawns.
func filterEnv(cfg spec.SandboxConfig, env map[string]string) []string {
	filtered := make([]string, 0, len(env))
	for name, value := range env {
		if cfg.IsEnvAllowed(name) {
			filtered = append(filtered, fmt.Sprintf("%s=%s", name, value))
		}
	}
	sort.Strings(filtered)
	return filtered
}

// flattenEnv converts an environment map to KEY=VALUE pairs without any
// filtering. Only the no-isolation backend uses it.
func flattenEnv(env map[string]string) []string {
	flat := make([]string, 0, len(env))
	for name, value := range env {
		flat = append(flat, fmt.Sprintf("%s=%s", name, value))
	}
	sort.Strings(flat)
	return flat
}
