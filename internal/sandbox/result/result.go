// Package result defines sandbox execution results.
package result

// SandboxResult captures the outcome of one sandboxed execution.
// It is produced exactly once per call and never mutated afterwards.
type SandboxResult struct {
	Stdout   string
	Stderr   string
	ExitCode int

	// DurationMs is the wall time of the execution.
	DurationMs int64

	// PeakMemoryMB is the peak memory of the process tree, 0 if unmeasured.
	PeakMemoryMB int64

	// CPUPercent is the observed CPU usage, 0 if unmeasured.
	CPUPercent float64

	// FuelUsed is the WASM instruction metric, 0 for other backends.
	FuelUsed int64
}
