// Package sandbox is the public entrypoint of the command-execution
// framework: it selects a backend for a workload and hands back a
// ready-to-use executor.
package sandbox

import (
	"context"

	"github.com/wioota/devloop/internal/sandbox/engine"
	"github.com/wioota/devloop/internal/sandbox/result"
	"github.com/wioota/devloop/internal/sandbox/spec"
)

// Executor is the contract every backend implements. See engine.Executor.
type Executor = engine.Executor

// ExecuteString parses a shell-style command line and runs it through the
// executor. Parsing happens on the caller's side of the boundary; the
// sandbox only ever sees argument vectors.
func ExecuteString(ctx context.Context, exec Executor, cmdline, cwd string, env map[string]string) (*result.SandboxResult, error) {
	argv, err := spec.ParseCommand(cmdline)
	if err != nil {
		return nil, err
	}
	return exec.Execute(ctx, argv, cwd, env)
}
