//go:build linux && cgo

// sandbox-init is the helper the seccomp backend spawns for each
// execution. It reads an InitRequest from stdin, applies resource limits
// and the syscall deny-list, then execs the target command. Running the
// setup in a separate process keeps filter installation out of the calling
// runtime: the filter applies only to the exec'd child.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/wioota/devloop/internal/sandbox/engine"

	seccomp "github.com/seccomp/libseccomp-golang"
	"golang.org/x/sys/unix"
)

func main() {
	if err := run(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func run() error {
	req, err := decodeRequest(os.Stdin)
	if err != nil {
		return err
	}
	if err := validateRequest(req); err != nil {
		return err
	}

	if err := os.Chdir(req.Dir); err != nil {
		return fmt.Errorf("chdir workdir: %w", err)
	}

	if err := applyRlimits(req); err != nil {
		return err
	}

	env := req.Env
	os.Clearenv()
	for _, kv := range env {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			continue
		}
		if err := os.Setenv(parts[0], parts[1]); err != nil {
			return fmt.Errorf("set env: %w", err)
		}
	}

	if err := applySeccomp(req.DeniedSyscalls); err != nil {
		return err
	}

	return unix.Exec(req.Argv[0], req.Argv, env)
}

func decodeRequest(r io.Reader) (engine.InitRequest, error) {
	dec := json.NewDecoder(r)
	var req engine.InitRequest
	if err := dec.Decode(&req); err != nil {
		return engine.InitRequest{}, fmt.Errorf("decode request: %w", err)
	}
	return req, nil
}

func validateRequest(req engine.InitRequest) error {
	if len(req.Argv) == 0 {
		return fmt.Errorf("argv is required")
	}
	if !strings.HasPrefix(req.Argv[0], "/") {
		return fmt.Errorf("argv[0] must be an absolute path")
	}
	if req.Dir == "" {
		return fmt.Errorf("work dir is required")
	}
	return nil
}

func applyRlimits(req engine.InitRequest) error {
	if req.MaxMemoryMB > 0 {
		bytes := uint64(req.MaxMemoryMB * 1024 * 1024)
		if err := unix.Setrlimit(unix.RLIMIT_AS, &unix.Rlimit{Cur: bytes, Max: bytes}); err != nil {
			return fmt.Errorf("set rlimit as: %w", err)
		}
	}
	if req.CPUTimeSeconds > 0 {
		seconds := uint64(req.CPUTimeSeconds)
		if err := unix.Setrlimit(unix.RLIMIT_CPU, &unix.Rlimit{Cur: seconds, Max: seconds}); err != nil {
			return fmt.Errorf("set rlimit cpu: %w", err)
		}
	}
	return nil
}

// applySeccomp installs a default-allow filter that fails the denied
// syscalls with EPERM. Names unknown to the running kernel are skipped:
// the deny-list spans kernel versions.
func applySeccomp(denied []string) error {
	if len(denied) == 0 {
		return nil
	}
	filter, err := seccomp.NewFilter(seccomp.ActAllow)
	if err != nil {
		return fmt.Errorf("create seccomp filter: %w", err)
	}
	denyAction := seccomp.ActErrno.SetReturnCode(int16(unix.EPERM))
	for _, name := range denied {
		call, err := seccomp.GetSyscallFromName(name)
		if err != nil {
			continue
		}
		if err := filter.AddRule(call, denyAction); err != nil {
			return fmt.Errorf("add seccomp rule for %s: %w", name, err)
		}
	}
	if err := filter.Load(); err != nil {
		return fmt.Errorf("load seccomp filter: %w", err)
	}
	return nil
}
