package engine

import (
	"context"

	"github.com/wioota/devloop/internal/sandbox/observer"
	appErr "github.com/wioota/devloop/pkg/errors"
	"github.com/wioota/devloop/pkg/utils/logger"

	"go.uber.org/zap"
)

// reportBlocked logs and audits a rejected command, then builds the policy
// violation error. No process has been spawned at this point.
func reportBlocked(ctx context.Context, audit observer.AuditRecorder, backend string, cmd []string, cwd, reason string, code appErr.ErrorCode) error {
	logger.Warn(ctx, "command blocked by sandbox policy",
		zap.String("backend", backend),
		zap.Strings("cmd", cmd),
		zap.String("cwd", cwd),
		zap.String("reason", reason))
	audit.RecordBlocked(ctx, backend, cmd, cwd, reason)
	return appErr.Newf(code, "command blocked: %s", reason).
		WithDetail("backend", backend).
		WithDetail("cwd", cwd)
}

// reportTimeout logs and audits a killed execution and builds the timeout
// error. Partial output is discarded; a timeout yields no usable result.
func reportTimeout(ctx context.Context, audit observer.AuditRecorder, backend string, cmd []string, cwd string, elapsedMs int64) error {
	logger.Warn(ctx, "sandboxed execution timed out",
		zap.String("backend", backend),
		zap.Strings("cmd", cmd),
		zap.String("cwd", cwd),
		zap.Int64("elapsed_ms", elapsedMs))
	audit.RecordTimeout(ctx, backend, cmd, cwd, elapsedMs)
	return appErr.Newf(appErr.ExecutionTimeout, "command %s exceeded the timeout", cmd[0]).
		WithDetail("backend", backend).
		WithDetail("cwd", cwd).
		WithDetail("elapsed_ms", elapsedMs)
}
