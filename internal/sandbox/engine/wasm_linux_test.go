//go:build linux

package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

// The fake runner inspects the request it receives on stdin and encodes
// what it saw in the reply's exit code, so the test can assert the whole
// filtered environment crosses the process boundary intact.
const envProbeRunner = `req=$(cat)
code=1
case "$req" in
*'"WASM_A":"1"'*)
	case "$req" in
	*'"WASM_B":"2"'*) code=0 ;;
	esac
	;;
esac
case "$req" in
*SECRET*) code=2 ;;
esac
printf '{"stdout":"","stderr":"","exit_code":%d}' "$code"
`

func TestWASMForwardsAllAllowedEnvVars(t *testing.T) {
	script := filepath.Join(t.TempDir(), "runner.sh")
	if err := os.WriteFile(script, []byte(envProbeRunner), 0o755); err != nil {
		t.Fatalf("write fake runner: %v", err)
	}

	cfg := testConfig("python3")
	cfg.AllowedEnvVars = []string{"WASM_A", "WASM_B"}
	exec := NewWASM(cfg, nil, "sh", script)
	exec.syntaxCheck = func(context.Context) error { return nil }

	res, err := exec.Execute(context.Background(), []string{"python3", "check.py"}, t.TempDir(),
		map[string]string{"WASM_A": "1", "WASM_B": "2", "SECRET": "x"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	switch res.ExitCode {
	case 0:
	case 2:
		t.Fatalf("disallowed variable leaked into the request")
	default:
		t.Fatalf("request was missing allowed env vars, exit code %d", res.ExitCode)
	}
}
