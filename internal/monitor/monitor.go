// Package monitor samples process resource usage and enforces configured
// budgets. Exceeding a limit never fails an operation; the orchestrator
// throttles instead.
package monitor

import (
	"fmt"
	"os"
	"sync"
	"time"

	"codesmith/internal/logging"

	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/process"
)

// Usage is one resource sample.
type Usage struct {
	MemoryMB      float64  `json:"memory_mb"`
	PeakMemoryMB  float64  `json:"peak_memory_mb"`
	CPUPercent    float64  `json:"cpu_percent"`
	DiskMB        *float64 `json:"disk_mb,omitempty"`
	UptimeSeconds uint64   `json:"uptime_seconds"`
	Critical      bool     `json:"critical"`
}

// Limits holds the configured maxima. A zero MaxDiskMB disables the disk
// check.
type Limits struct {
	MaxMemoryMB   float64
	MaxCPUPercent float64
	MaxDiskMB     float64
}

// Monitor samples this process. Safe for concurrent use.
type Monitor struct {
	mu       sync.Mutex
	proc     *process.Process
	start    time.Time
	peakMB   float64
	diskPath string

	stopCh chan struct{}
	doneCh chan struct{}
}

// New creates a monitor for the current process. diskPath selects the mount
// sampled for disk usage; empty disables disk sampling.
func New(diskPath string) (*Monitor, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("failed to attach to own process: %w", err)
	}
	return &Monitor{
		proc:     proc,
		start:    time.Now(),
		diskPath: diskPath,
	}, nil
}

// Sample reads current usage and updates the peak.
func (m *Monitor) Sample() (Usage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mem, err := m.proc.MemoryInfo()
	if err != nil {
		return Usage{}, fmt.Errorf("failed to read memory info: %w", err)
	}
	memMB := float64(mem.RSS) / 1024.0 / 1024.0
	// Compare against the peak seen before this sample; updating first
	// would make the 1.5x check unsatisfiable.
	oldPeak := m.peakMB
	if memMB > m.peakMB {
		m.peakMB = memMB
	}

	cpu, err := m.proc.CPUPercent()
	if err != nil {
		return Usage{}, fmt.Errorf("failed to read cpu usage: %w", err)
	}

	var diskMB *float64
	if m.diskPath != "" {
		if du, err := disk.Usage(m.diskPath); err == nil {
			used := float64(du.Used) / 1024.0 / 1024.0
			diskMB = &used
		} else {
			logging.MonitorDebug("disk usage unavailable for %s: %v", m.diskPath, err)
		}
	}

	critical := isCritical(memMB, oldPeak, cpu)
	if critical {
		logging.Monitor("critical resource usage: memory=%.2fMB cpu=%.2f%%", memMB, cpu)
	}

	return Usage{
		MemoryMB:      memMB,
		PeakMemoryMB:  m.peakMB,
		CPUPercent:    cpu,
		DiskMB:        diskMB,
		UptimeSeconds: uint64(time.Since(m.start).Seconds()),
		Critical:      critical,
	}, nil
}

// isCritical reports a sudden memory jump past 1.5x the previously seen
// peak, or CPU saturation. A zero peak (first sample) cannot trip the
// memory half.
func isCritical(memMB, oldPeakMB, cpu float64) bool {
	return (oldPeakMB > 0 && memMB > oldPeakMB*1.5) || cpu > 95.0
}

// WithinLimits samples and compares against the configured maxima. A
// critical sample fails the check even when the raw numbers are inside the
// limits.
func (m *Monitor) WithinLimits(limits Limits) (bool, error) {
	usage, err := m.Sample()
	if err != nil {
		return false, err
	}
	if usage.Critical {
		return false, nil
	}
	return usage.Within(limits), nil
}

// Within compares a sample against the maxima. Missing disk info passes the
// disk check.
func (u Usage) Within(limits Limits) bool {
	if limits.MaxMemoryMB > 0 && u.MemoryMB > limits.MaxMemoryMB {
		logging.Monitor("memory limit exceeded: %.2f/%.2fMB", u.MemoryMB, limits.MaxMemoryMB)
		return false
	}
	if limits.MaxCPUPercent > 0 && u.CPUPercent > limits.MaxCPUPercent {
		logging.Monitor("cpu limit exceeded: %.2f/%.2f%%", u.CPUPercent, limits.MaxCPUPercent)
		return false
	}
	if limits.MaxDiskMB > 0 && u.DiskMB != nil && *u.DiskMB > limits.MaxDiskMB {
		logging.Monitor("disk limit exceeded: %.2f/%.2fMB", *u.DiskMB, limits.MaxDiskMB)
		return false
	}
	return true
}

// Start launches periodic background sampling. A second Start is a no-op
// until Stop is called.
func (m *Monitor) Start(interval time.Duration) {
	m.mu.Lock()
	if m.stopCh != nil {
		m.mu.Unlock()
		return
	}
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	stop, done := m.stopCh, m.doneCh
	m.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if _, err := m.Sample(); err != nil {
					logging.MonitorDebug("background sample failed: %v", err)
				}
			}
		}
	}()
}

// Stop halts background sampling and waits for the sampler to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	stop, done := m.stopCh, m.doneCh
	m.stopCh, m.doneCh = nil, nil
	m.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}
