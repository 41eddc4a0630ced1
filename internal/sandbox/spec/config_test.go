package spec

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	appErr "github.com/wioota/devloop/pkg/errors"
)

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name     string
		mutate   func(cfg *SandboxConfig)
		wantCode appErr.ErrorCode
	}{
		{
			name:     "valid",
			mutate:   func(cfg *SandboxConfig) {},
			wantCode: appErr.Success,
		},
		{
			name:     "zero memory",
			mutate:   func(cfg *SandboxConfig) { cfg.MaxMemoryMB = -1 },
			wantCode: appErr.InvalidConfig,
		},
		{
			name:     "cpu too low",
			mutate:   func(cfg *SandboxConfig) { cfg.MaxCPUPercent = 0; cfg.MaxCPUPercent = -5 },
			wantCode: appErr.InvalidConfig,
		},
		{
			name:     "cpu too high",
			mutate:   func(cfg *SandboxConfig) { cfg.MaxCPUPercent = 101 },
			wantCode: appErr.InvalidConfig,
		},
		{
			name:     "negative timeout",
			mutate:   func(cfg *SandboxConfig) { cfg.TimeoutSeconds = -1 },
			wantCode: appErr.InvalidConfig,
		},
		{
			name:     "unknown mode",
			mutate:   func(cfg *SandboxConfig) { cfg.Mode = "chroot" },
			wantCode: appErr.UnknownBackend,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := SandboxConfig{
				Mode:           ModeAuto,
				MaxMemoryMB:    256,
				MaxCPUPercent:  50,
				TimeoutSeconds: 10,
			}
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantCode == appErr.Success {
				if err != nil {
					t.Fatalf("expected valid config, got %v", err)
				}
				return
			}
			if !appErr.Is(err, tc.wantCode) {
				t.Fatalf("expected code %d, got %v", tc.wantCode, err)
			}
		})
	}
}

func TestNewConfigDefaults(t *testing.T) {
	cfg, err := NewConfig(ModeAuto, []string{"go", "npm"})
	if err != nil {
		t.Fatalf("new config: %v", err)
	}
	if cfg.MaxMemoryMB != defaultMaxMemoryMB {
		t.Fatalf("unexpected memory default: %d", cfg.MaxMemoryMB)
	}
	if cfg.MaxCPUPercent != defaultMaxCPUPercent {
		t.Fatalf("unexpected cpu default: %d", cfg.MaxCPUPercent)
	}
	if cfg.Timeout() != time.Duration(defaultTimeoutSeconds)*time.Second {
		t.Fatalf("unexpected timeout: %v", cfg.Timeout())
	}
	if !cfg.IsToolAllowed("go") || cfg.IsToolAllowed("rm") {
		t.Fatalf("whitelist mismatch")
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sandbox.yaml")
	data := `
mode: bubblewrap
maxMemoryMB: 128
timeoutSeconds: 5
allowedTools:
  - go
  - pytest
allowedEnvVars:
  - PATH
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Mode != ModeBubblewrap {
		t.Fatalf("unexpected mode: %q", cfg.Mode)
	}
	if cfg.MaxMemoryMB != 128 {
		t.Fatalf("unexpected memory: %d", cfg.MaxMemoryMB)
	}
	// Unset fields pick up defaults.
	if cfg.MaxCPUPercent != defaultMaxCPUPercent {
		t.Fatalf("unexpected cpu: %d", cfg.MaxCPUPercent)
	}
	if !cfg.IsEnvAllowed("PATH") || cfg.IsEnvAllowed("HOME") {
		t.Fatalf("env allow-list mismatch")
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if !appErr.Is(err, appErr.ConfigLoadFailed) {
		t.Fatalf("expected ConfigLoadFailed, got %v", err)
	}
}

func TestParseCommand(t *testing.T) {
	cases := []struct {
		name    string
		line    string
		want    []string
		wantErr bool
	}{
		{name: "simple", line: "go test ./...", want: []string{"go", "test", "./..."}},
		{name: "quoted", line: `python3 -c "print('hi there')"`, want: []string{"python3", "-c", "print('hi there')"}},
		{name: "empty", line: "   ", wantErr: true},
		{name: "unterminated quote", line: `echo "oops`, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseCommand(tc.line)
			if tc.wantErr {
				if !appErr.Is(err, appErr.InvalidCommandLine) {
					t.Fatalf("expected InvalidCommandLine, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestClassification(t *testing.T) {
	class := Classification{
		Interpretable: []string{"formatter", "linter"},
		ToolDependent: []string{"builder"},
	}
	if err := class.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if class.Kind("formatter") != WorkloadInterpretable {
		t.Fatalf("formatter should be interpretable")
	}
	if class.Kind("builder") != WorkloadToolDependent {
		t.Fatalf("builder should be tool-dependent")
	}
	// Unclassified agents land on the safe side.
	if class.Kind("unknown-agent") != WorkloadToolDependent {
		t.Fatalf("unknown agents should be tool-dependent")
	}

	overlapping := Classification{
		Interpretable: []string{"formatter"},
		ToolDependent: []string{"formatter"},
	}
	if err := overlapping.Validate(); !appErr.Is(err, appErr.InvalidConfig) {
		t.Fatalf("expected InvalidConfig for overlapping sets, got %v", err)
	}
}

func TestLoadClassification(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agents.yaml")
	data := `
interpretable:
  - formatter
toolDependent:
  - builder
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write classification: %v", err)
	}

	class, err := LoadClassification(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if class.Kind("formatter") != WorkloadInterpretable {
		t.Fatalf("formatter should be interpretable")
	}
	if class.Kind("builder") != WorkloadToolDependent {
		t.Fatalf("builder should be tool-dependent")
	}
}

func TestLoadClassificationRejectsOverlap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agents.yaml")
	data := `
interpretable: [formatter]
toolDependent: [formatter]
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write classification: %v", err)
	}
	if _, err := LoadClassification(path); !appErr.Is(err, appErr.InvalidConfig) {
		t.Fatalf("expected InvalidConfig, got %v", err)
	}
}
