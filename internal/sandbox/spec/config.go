// Package spec defines the sandbox configuration and workload classification.
package spec

import (
	"os"
	"time"

	appErr "github.com/wioota/devloop/pkg/errors"

	"gopkg.in/yaml.v3"
)

// BackendMode identifies a sandbox backend implementation.
type BackendMode string

// The set of backend modes is closed; the selection factory enumerates it.
const (
	ModeNone       BackendMode = "none"
	ModeBubblewrap BackendMode = "bubblewrap"
	ModeWASM       BackendMode = "wasm"
	ModeSeccomp    BackendMode = "seccomp"
	ModeAuto       BackendMode = "auto"
)

// Valid reports whether the mode names a known backend or auto selection.
func (m BackendMode) Valid() bool {
	switch m {
	case ModeNone, ModeBubblewrap, ModeWASM, ModeSeccomp, ModeAuto:
		return true
	}
	return false
}

const (
	defaultMode           = ModeAuto
	defaultMaxMemoryMB    = 512
	defaultMaxCPUPercent  = 50
	defaultTimeoutSeconds = 30
)

// SandboxConfig controls sandbox backend selection and execution policy.
// The zero value is not usable; build one with NewConfig or Load.
type SandboxConfig struct {
	// Mode selects a backend explicitly, or "auto" for policy-driven selection.
	Mode BackendMode `yaml:"mode"`

	// MaxMemoryMB is the hard memory ceiling for a sandboxed process tree.
	MaxMemoryMB int64 `yaml:"maxMemoryMB"`

	// MaxCPUPercent is the CPU ceiling, 1-100.
	MaxCPUPercent int `yaml:"maxCPUPercent"`

	// TimeoutSeconds bounds the wall time of one execution.
	TimeoutSeconds int `yaml:"timeoutSeconds"`

	// AllowedTools is the exact set of executable names permitted to run.
	AllowedTools []string `yaml:"allowedTools"`

	// AllowedNetworkDomains is reserved; no current backend enforces it.
	AllowedNetworkDomains []string `yaml:"allowedNetworkDomains"`

	// AllowedEnvVars lists environment variables forwarded into the sandbox.
	// Everything not listed is dropped (default-deny).
	AllowedEnvVars []string `yaml:"allowedEnvVars"`
}

// NewConfig builds a validated config with defaults applied.
func NewConfig(mode BackendMode, allowedTools []string) (SandboxConfig, error) {
	cfg := SandboxConfig{
		Mode:         mode,
		AllowedTools: allowedTools,
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return SandboxConfig{}, err
	}
	return cfg, nil
}

// Load reads a YAML sandbox config from path, applies defaults and validates.
func Load(path string) (SandboxConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SandboxConfig{}, appErr.Wrapf(err, appErr.ConfigLoadFailed, "read sandbox config %s", path)
	}
	var cfg SandboxConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return SandboxConfig{}, appErr.Wrapf(err, appErr.ConfigLoadFailed, "parse sandbox config %s", path)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return SandboxConfig{}, err
	}
	return cfg, nil
}

func (c *SandboxConfig) applyDefaults() {
	if c.Mode == "" {
		c.Mode = defaultMode
	}
	if c.MaxMemoryMB == 0 {
		c.MaxMemoryMB = defaultMaxMemoryMB
	}
	if c.MaxCPUPercent == 0 {
		c.MaxCPUPercent = defaultMaxCPUPercent
	}
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = defaultTimeoutSeconds
	}
}

// Validate enforces the construction invariants.
func (c SandboxConfig) Validate() error {
	if !c.Mode.Valid() {
		return appErr.Newf(appErr.UnknownBackend, "unknown sandbox mode %q", c.Mode)
	}
	if c.MaxMemoryMB <= 0 {
		return appErr.Newf(appErr.InvalidConfig, "maxMemoryMB must be positive, got %d", c.MaxMemoryMB)
	}
	if c.MaxCPUPercent < 1 || c.MaxCPUPercent > 100 {
		return appErr.Newf(appErr.InvalidConfig, "maxCPUPercent must be in [1,100], got %d", c.MaxCPUPercent)
	}
	if c.TimeoutSeconds <= 0 {
		return appErr.Newf(appErr.InvalidConfig, "timeoutSeconds must be positive, got %d", c.TimeoutSeconds)
	}
	return nil
}

// Timeout returns the execution timeout as a duration.
func (c SandboxConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// IsToolAllowed reports whether an executable name is whitelisted.
// Matching is exact; paths and shell fragments never match.
func (c SandboxConfig) IsToolAllowed(tool string) bool {
	for _, allowed := range c.AllowedTools {
		if tool == allowed {
			return true
		}
	}
	return false
}

// IsEnvAllowed reports whether an environment variable may be forwarded.
func (c SandboxConfig) IsEnvAllowed(name string) bool {
	for _, allowed := range c.AllowedEnvVars {
		if name == allowed {
			return true
		}
	}
	return false
}
