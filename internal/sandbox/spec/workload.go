package spec

import (
	"os"

	appErr "github.com/wioota/devloop/pkg/errors"

	"gopkg.in/yaml.v3"
)

// WorkloadKind categorizes what an agent needs from the sandbox.
type WorkloadKind string

const (
	// WorkloadInterpretable marks agents whose commands are pure
	// interpreter scripts, eligible for the WASM backend.
	WorkloadInterpretable WorkloadKind = "interpretable"

	// WorkloadToolDependent marks agents that invoke native tooling.
	WorkloadToolDependent WorkloadKind = "tool-dependent"
)

// Classification holds the caller-supplied agent workload sets.
// The two sets must be disjoint. It is consulted only by auto selection
// and is never persisted.
type Classification struct {
	Interpretable []string `yaml:"interpretable"`
	ToolDependent []string `yaml:"toolDependent"`
}

// Kind returns the workload kind for an agent name.
// Agents in neither set are treated as tool-dependent: that is the safe
// direction, it only rules out the narrower WASM backend.
func (c Classification) Kind(agent string) WorkloadKind {
	for _, name := range c.Interpretable {
		if name == agent {
			return WorkloadInterpretable
		}
	}
	return WorkloadToolDependent
}

// Validate checks that the two sets are disjoint.
func (c Classification) Validate() error {
	seen := make(map[string]struct{}, len(c.Interpretable))
	for _, name := range c.Interpretable {
		seen[name] = struct{}{}
	}
	for _, name := range c.ToolDependent {
		if _, ok := seen[name]; ok {
			return appErr.Newf(appErr.InvalidConfig, "agent %q appears in both workload sets", name)
		}
	}
	return nil
}

// LoadClassification reads a YAML workload classification from path.
func LoadClassification(path string) (Classification, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Classification{}, appErr.Wrapf(err, appErr.ConfigLoadFailed, "read classification %s", path)
	}
	var class Classification
	if err := yaml.Unmarshal(data, &class); err != nil {
		return Classification{}, appErr.Wrapf(err, appErr.ConfigLoadFailed, "parse classification %s", path)
	}
	if err := class.Validate(); err != nil {
		return Classification{}, err
	}
	return class, nil
}
