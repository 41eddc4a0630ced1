package engine

import (
	"context"

	"github.com/wioota/devloop/internal/sandbox/cgroup"
	"github.com/wioota/devloop/internal/sandbox/spec"
	"github.com/wioota/devloop/pkg/utils/logger"

	"go.uber.org/zap"
)

// attachResources wires the resource-limit manager into one execution.
// It returns an onStart hook that attaches the spawned PID to the control
// group and a snapshot function for reading usage after the wait. When the
// manager is absent or the hierarchy is unavailable both are inert; the
// degradation is logged, never silent.
func attachResources(ctx context.Context, res *cgroup.Manager, cfg spec.SandboxConfig, backend string) (func(pid int), func() cgroup.UsageSnapshot) {
	noSnapshot := func() cgroup.UsageSnapshot { return cgroup.UsageSnapshot{} }
	if res == nil {
		return nil, noSnapshot
	}
	if !res.Available() {
		logger.Debug(ctx, "resource limits disabled, cgroup v2 unavailable",
			zap.String("backend", backend))
		return nil, noSnapshot
	}
	if err := res.Ensure(ctx, cfg.MaxMemoryMB, cfg.MaxCPUPercent); err != nil {
		logger.Warn(ctx, "resource limit setup failed, continuing without ceilings",
			zap.String("backend", backend), zap.Error(err))
		return nil, noSnapshot
	}

	onStart := func(pid int) {
		if err := res.AddProcess(ctx, pid); err != nil {
			logger.Warn(ctx, "attach process to cgroup failed",
				zap.String("backend", backend), zap.Int("pid", pid), zap.Error(err))
		}
	}
	snapshot := func() cgroup.UsageSnapshot {
		snap, err := res.Usage(ctx)
		if err != nil {
			logger.Warn(ctx, "read resource usage failed",
				zap.String("backend", backend), zap.Error(err))
		}
		return snap
	}
	return onStart, snapshot
}
