package engine

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"sync/atomic"
	"time"

	"github.com/wioota/devloop/pkg/utils/logger"

	"go.uber.org/zap"
)

// execOutcome holds the raw data of one spawned process run.
type execOutcome struct {
	exitCode int
	stdout   string
	stderr   string
	elapsed  time.Duration
	timedOut bool
	state    *os.ProcessState
}

// runCommand starts cmd and waits for it, bounded by timeout. On expiry the
// whole process group is killed and timedOut is set; a kill racing a process
// that already exited is swallowed. onStart, if non-nil, runs right after the
// process starts and receives its PID.
func runCommand(ctx context.Context, cmd *exec.Cmd, timeout time.Duration, onStart func(pid int)) (execOutcome, error) {
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.SysProcAttr = sysProcAttr()

	clock := startStopwatch()
	if err := cmd.Start(); err != nil {
		return execOutcome{}, err
	}
	pid := cmd.Process.Pid
	if onStart != nil {
		onStart(pid)
	}

	var timedOut atomic.Bool
	done := make(chan struct{})
	go func() {
		var deadline <-chan time.Time
		if timeout > 0 {
			deadline = time.After(timeout)
		}
		select {
		case <-ctx.Done():
			killProcessGroup(pid)
		case <-deadline:
			timedOut.Store(true)
			killProcessGroup(pid)
		case <-done:
		}
	}()

	waitErr := cmd.Wait()
	close(done)

	outcome := execOutcome{
		exitCode: exitCodeFromErr(waitErr, cmd.ProcessState),
		stdout:   stdout.String(),
		stderr:   stderr.String(),
		elapsed:  clock.elapsed(),
		timedOut: timedOut.Load(),
		state:    cmd.ProcessState,
	}

	if waitErr != nil && !outcome.timedOut && stderr.Len() > 0 {
		logger.Debug(ctx, "sandboxed process stderr", zap.String("stderr", stderr.String()))
	}
	return outcome, nil
}

func exitCodeFromErr(err error, state *os.ProcessState) int {
	if state != nil {
		return state.ExitCode()
	}
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
