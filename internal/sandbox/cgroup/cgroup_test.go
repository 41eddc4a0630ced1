package cgroup

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	appErr "github.com/wioota/devloop/pkg/errors"
)

// fakeRoot builds a directory standing in for the unified hierarchy.
func fakeRoot(t *testing.T, controllers string) string {
	t.Helper()
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "cgroup.controllers"), []byte(controllers), 0o640); err != nil {
		t.Fatalf("write cgroup.controllers: %v", err)
	}
	return root
}

func writeGroupFile(t *testing.T, m *Manager, name, value string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(m.GroupPath(), name), []byte(value), 0o640); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestAvailable(t *testing.T) {
	cases := []struct {
		name        string
		controllers string
		want        bool
	}{
		{name: "both controllers", controllers: "cpuset cpu io memory pids\n", want: true},
		{name: "memory only", controllers: "memory pids\n", want: false},
		{name: "cpu only", controllers: "cpu io\n", want: false},
		{name: "empty", controllers: "", want: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := NewManager(fakeRoot(t, tc.controllers))
			if got := m.Available(); got != tc.want {
				t.Fatalf("Available() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestAvailableMissingHierarchy(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "not-mounted"))
	if m.Available() {
		t.Fatalf("expected unavailable without cgroup.controllers")
	}
}

func TestEnsureWritesLimits(t *testing.T) {
	root := fakeRoot(t, "cpu memory\n")
	m := NewManager(root)

	if err := m.Ensure(context.Background(), 256, 50); err != nil {
		t.Fatalf("Ensure: %v", err)
	}

	subtree, err := os.ReadFile(filepath.Join(root, "cgroup.subtree_control"))
	if err != nil {
		t.Fatalf("read subtree_control: %v", err)
	}
	if string(subtree) != "+memory +cpu" {
		t.Fatalf("subtree_control = %q", subtree)
	}

	memMax, err := os.ReadFile(filepath.Join(m.GroupPath(), "memory.max"))
	if err != nil {
		t.Fatalf("read memory.max: %v", err)
	}
	if string(memMax) != "268435456" {
		t.Fatalf("memory.max = %q, want 268435456", memMax)
	}

	cpuMax, err := os.ReadFile(filepath.Join(m.GroupPath(), "cpu.max"))
	if err != nil {
		t.Fatalf("read cpu.max: %v", err)
	}
	if string(cpuMax) != "50000 100000" {
		t.Fatalf("cpu.max = %q, want \"50000 100000\"", cpuMax)
	}
}

func TestEnsureUnavailable(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "not-mounted"))
	err := m.Ensure(context.Background(), 256, 50)
	if !appErr.Is(err, appErr.ResourceSetupFailed) {
		t.Fatalf("expected ResourceSetupFailed, got %v", err)
	}
}

func TestAddProcess(t *testing.T) {
	m := NewManager(fakeRoot(t, "cpu memory\n"))
	if err := m.Ensure(context.Background(), 0, 0); err != nil {
		t.Fatalf("Ensure: %v", err)
	}

	if err := m.AddProcess(context.Background(), 4242); err != nil {
		t.Fatalf("AddProcess: %v", err)
	}
	procs, err := os.ReadFile(filepath.Join(m.GroupPath(), "cgroup.procs"))
	if err != nil {
		t.Fatalf("read cgroup.procs: %v", err)
	}
	if strings.TrimSpace(string(procs)) != "4242" {
		t.Fatalf("cgroup.procs = %q", procs)
	}

	if err := m.AddProcess(context.Background(), 0); !appErr.Is(err, appErr.InvalidParams) {
		t.Fatalf("expected InvalidParams for pid 0, got %v", err)
	}
}

func TestAddProcessBeforeEnsure(t *testing.T) {
	m := NewManager(fakeRoot(t, "cpu memory\n"))
	if err := m.AddProcess(context.Background(), 4242); !appErr.Is(err, appErr.ResourceSetupFailed) {
		t.Fatalf("expected ResourceSetupFailed before Ensure, got %v", err)
	}
}

func TestUsageMemoryPeak(t *testing.T) {
	m := NewManager(fakeRoot(t, "cpu memory\n"))
	if err := m.Ensure(context.Background(), 0, 0); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	writeGroupFile(t, m, "memory.peak", "134217728\n")

	snap, err := m.Usage(context.Background())
	if err != nil {
		t.Fatalf("Usage: %v", err)
	}
	if snap.PeakMemoryMB != 128 {
		t.Fatalf("PeakMemoryMB = %d, want 128", snap.PeakMemoryMB)
	}
}

func TestUsageMemoryCurrentFallback(t *testing.T) {
	m := NewManager(fakeRoot(t, "cpu memory\n"))
	if err := m.Ensure(context.Background(), 0, 0); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	writeGroupFile(t, m, "memory.current", "67108864\n")

	snap, err := m.Usage(context.Background())
	if err != nil {
		t.Fatalf("Usage: %v", err)
	}
	if snap.PeakMemoryMB != 64 {
		t.Fatalf("PeakMemoryMB = %d, want 64", snap.PeakMemoryMB)
	}
}

func TestUsageCPUDelta(t *testing.T) {
	m := NewManager(fakeRoot(t, "cpu memory\n"))
	if err := m.Ensure(context.Background(), 0, 0); err != nil {
		t.Fatalf("Ensure: %v", err)
	}

	// First read only establishes the baseline.
	writeGroupFile(t, m, "cpu.stat", "usage_usec 1000\nuser_usec 800\nsystem_usec 200\n")
	snap, err := m.Usage(context.Background())
	if err != nil {
		t.Fatalf("Usage: %v", err)
	}
	if snap.CPUPercent != 0 {
		t.Fatalf("first read CPUPercent = %v, want 0", snap.CPUPercent)
	}

	time.Sleep(20 * time.Millisecond)
	writeGroupFile(t, m, "cpu.stat", "usage_usec 11000\nuser_usec 9000\nsystem_usec 2000\n")
	snap, err = m.Usage(context.Background())
	if err != nil {
		t.Fatalf("Usage: %v", err)
	}
	if snap.CPUPercent <= 0 {
		t.Fatalf("second read CPUPercent = %v, want > 0", snap.CPUPercent)
	}
}

func TestUsageCounterWrapClampsToZero(t *testing.T) {
	m := NewManager(fakeRoot(t, "cpu memory\n"))
	if err := m.Ensure(context.Background(), 0, 0); err != nil {
		t.Fatalf("Ensure: %v", err)
	}

	writeGroupFile(t, m, "cpu.stat", "usage_usec 50000\n")
	if _, err := m.Usage(context.Background()); err != nil {
		t.Fatalf("Usage: %v", err)
	}

	time.Sleep(5 * time.Millisecond)
	writeGroupFile(t, m, "cpu.stat", "usage_usec 1000\n")
	snap, err := m.Usage(context.Background())
	if err != nil {
		t.Fatalf("Usage: %v", err)
	}
	if snap.CPUPercent != 0 {
		t.Fatalf("CPUPercent = %v, want 0 after counter reset", snap.CPUPercent)
	}
}

func TestCleanupRemovesEmptyGroup(t *testing.T) {
	m := NewManager(fakeRoot(t, "cpu memory\n"))
	if err := m.Ensure(context.Background(), 0, 0); err != nil {
		t.Fatalf("Ensure: %v", err)
	}

	if err := m.Cleanup(context.Background()); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if _, err := os.Stat(m.GroupPath()); !os.IsNotExist(err) {
		t.Fatalf("group directory should be gone, stat err %v", err)
	}

	// Cleanup is idempotent.
	if err := m.Cleanup(context.Background()); err != nil {
		t.Fatalf("second Cleanup: %v", err)
	}
}

func TestCleanupSkipsWhenProcessesAttached(t *testing.T) {
	m := NewManager(fakeRoot(t, "cpu memory\n"))
	if err := m.Ensure(context.Background(), 0, 0); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	writeGroupFile(t, m, "cgroup.procs", "4242\n")

	if err := m.Cleanup(context.Background()); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if _, err := os.Stat(m.GroupPath()); err != nil {
		t.Fatalf("group directory must survive while processes are attached: %v", err)
	}
}

func TestGroupNamesAreUnique(t *testing.T) {
	root := t.TempDir()
	a := NewManager(root)
	b := NewManager(root)
	if a.GroupPath() == b.GroupPath() {
		t.Fatalf("two managers share group path %s", a.GroupPath())
	}
}
