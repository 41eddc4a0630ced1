// Package cgroup wraps the cgroup v2 unified hierarchy to impose hard
// memory and CPU ceilings on sandboxed process trees.
package cgroup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	appErr "github.com/wioota/devloop/pkg/errors"
	"github.com/wioota/devloop/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// DefaultRoot is where the kernel mounts the unified hierarchy.
	DefaultRoot = "/sys/fs/cgroup"

	// cpuPeriodUsec is the fixed CPU quota period. The percentage knob
	// maps onto the kernel mechanism as quota = percent * period / 100.
	cpuPeriodUsec = 100000
)

// UsageSnapshot is a point-in-time read of the group's resource counters.
type UsageSnapshot struct {
	PeakMemoryMB int64
	CPUPercent   float64
}

// cpuSample is one reading of the monotonic usage_usec counter.
type cpuSample struct {
	usec int64
	at   time.Time
}

// Manager owns one named control group under the hierarchy root. The
// group is created lazily on first Ensure and torn down best-effort by
// Cleanup. Several cooperating processes may be attached over time.
type Manager struct {
	root  string
	group string

	availOnce sync.Once
	avail     bool

	mu      sync.Mutex
	created bool
	last    cpuSample
}

var (
	defaultManager *Manager
	defaultOnce    sync.Once
)

// Default returns the process-wide manager over the host hierarchy.
func Default() *Manager {
	defaultOnce.Do(func() {
		defaultManager = NewManager(DefaultRoot)
	})
	return defaultManager
}

// NewManager creates a manager rooted at root. Tests point root at a
// temporary directory standing in for the cgroup filesystem.
func NewManager(root string) *Manager {
	return &Manager{
		root:  root,
		group: "devloop-" + uuid.NewString()[:8],
	}
}

// GroupPath returns the directory of the managed control group.
func (m *Manager) GroupPath() string {
	return filepath.Join(m.root, m.group)
}

// Available reports whether the hierarchy is mounted and exposes both the
// memory and cpu controllers. The probe runs once and is cached.
func (m *Manager) Available() bool {
	m.availOnce.Do(func() {
		data, err := os.ReadFile(filepath.Join(m.root, "cgroup.controllers"))
		if err != nil {
			return
		}
		controllers := strings.Fields(string(data))
		var hasMemory, hasCPU bool
		for _, c := range controllers {
			switch c {
			case "memory":
				hasMemory = true
			case "cpu":
				hasCPU = true
			}
		}
		m.avail = hasMemory && hasCPU
	})
	return m.avail
}

// Ensure creates the control group if needed and applies the ceilings.
// Memory is written as an absolute byte count; CPU as a quota over the
// fixed 100ms period.
func (m *Manager) Ensure(ctx context.Context, maxMemoryMB int64, maxCPUPercent int) error {
	if !m.Available() {
		return appErr.New(appErr.ResourceSetupFailed).
			WithMessage("cgroup v2 hierarchy with memory and cpu controllers is not available")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.created {
		// Delegate the controllers to children before creating the group.
		if err := writeValue(m.root, "cgroup.subtree_control", "+memory +cpu"); err != nil {
			return appErr.Wrapf(err, appErr.ResourceSetupFailed, "enable controllers under %s", m.root)
		}
		if err := os.MkdirAll(m.GroupPath(), 0o750); err != nil {
			return appErr.Wrapf(err, appErr.ResourceSetupFailed, "create cgroup %s", m.GroupPath())
		}
		m.created = true
	}

	if maxMemoryMB > 0 {
		bytes := strconv.FormatInt(maxMemoryMB*1024*1024, 10)
		if err := writeValue(m.GroupPath(), "memory.max", bytes); err != nil {
			return appErr.Wrapf(err, appErr.ResourceSetupFailed, "set memory.max")
		}
	}
	if maxCPUPercent > 0 {
		quota := int64(maxCPUPercent) * cpuPeriodUsec / 100
		value := fmt.Sprintf("%d %d", quota, cpuPeriodUsec)
		if err := writeValue(m.GroupPath(), "cpu.max", value); err != nil {
			return appErr.Wrapf(err, appErr.ResourceSetupFailed, "set cpu.max")
		}
	}
	return nil
}

// AddProcess attaches a PID to the group. The first attach establishes
// the CPU sampling baseline.
func (m *Manager) AddProcess(ctx context.Context, pid int) error {
	if pid <= 0 {
		return appErr.Newf(appErr.InvalidParams, "invalid pid %d", pid)
	}
	m.mu.Lock()
	created := m.created
	m.mu.Unlock()
	if !created {
		return appErr.New(appErr.ResourceSetupFailed).WithMessage("control group has not been created")
	}
	if err := writeValue(m.GroupPath(), "cgroup.procs", strconv.Itoa(pid)); err != nil {
		return appErr.Wrapf(err, appErr.ResourceSetupFailed, "attach pid %d", pid)
	}

	m.mu.Lock()
	if m.last.at.IsZero() {
		if usec, err := m.readUsageUsec(); err == nil {
			m.last = cpuSample{usec: usec, at: time.Now()}
		}
	}
	m.mu.Unlock()
	return nil
}

// Usage reads the peak memory counter and derives CPU usage by
// differencing the monotonic usage_usec counter against the previous
// sample. The first read after attach reports zero CPU; it only
// establishes the baseline.
func (m *Manager) Usage(ctx context.Context) (UsageSnapshot, error) {
	var snap UsageSnapshot

	if peak, err := readInt(m.GroupPath(), "memory.peak"); err == nil {
		snap.PeakMemoryMB = peak / (1024 * 1024)
	} else if current, err := readInt(m.GroupPath(), "memory.current"); err == nil {
		// Older kernels lack memory.peak.
		snap.PeakMemoryMB = current / (1024 * 1024)
	}

	usec, err := m.readUsageUsec()
	if err != nil {
		return snap, nil
	}
	now := time.Now()

	m.mu.Lock()
	prev := m.last
	m.last = cpuSample{usec: usec, at: now}
	m.mu.Unlock()

	if prev.at.IsZero() {
		return snap, nil
	}
	wallUsec := now.Sub(prev.at).Microseconds()
	if wallUsec <= 0 {
		return snap, nil
	}
	snap.CPUPercent = float64(usec-prev.usec) / float64(wallUsec) * 100
	if snap.CPUPercent < 0 {
		snap.CPUPercent = 0
	}
	return snap, nil
}

// Cleanup removes the group directory. If processes are still attached
// the removal is skipped with a warning rather than failing the caller.
func (m *Manager) Cleanup(ctx context.Context) error {
	m.mu.Lock()
	created := m.created
	m.mu.Unlock()
	if !created {
		return nil
	}

	procs, err := os.ReadFile(filepath.Join(m.GroupPath(), "cgroup.procs"))
	if err == nil && len(strings.TrimSpace(string(procs))) > 0 {
		logger.Warn(ctx, "skipping cgroup removal, processes still attached",
			zap.String("cgroup", m.GroupPath()),
			zap.String("procs", strings.TrimSpace(string(procs))))
		return nil
	}

	if err := os.Remove(m.GroupPath()); err != nil && !os.IsNotExist(err) {
		return appErr.Wrapf(err, appErr.ResourceSetupFailed, "remove cgroup %s", m.GroupPath())
	}
	m.mu.Lock()
	m.created = false
	m.last = cpuSample{}
	m.mu.Unlock()
	return nil
}

// readUsageUsec parses the usage_usec line from cpu.stat.
func (m *Manager) readUsageUsec() (int64, error) {
	data, err := os.ReadFile(filepath.Join(m.GroupPath(), "cpu.stat"))
	if err != nil {
		return 0, err
	}
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) == 2 && fields[0] == "usage_usec" {
			return strconv.ParseInt(fields[1], 10, 64)
		}
	}
	return 0, fmt.Errorf("usage_usec not found in cpu.stat")
}

func readInt(dir, name string) (int64, error) {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
}

func writeValue(dir, name, value string) error {
	return os.WriteFile(filepath.Join(dir, name), []byte(value), 0o640)
}
