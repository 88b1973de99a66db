package sysstat

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/process"
)

// Mode reports which CPU sampling strategy a Monitor ended up using.
type Mode int

const (
	ModeCgroup Mode = iota
	ModeHost
)

func (m Mode) String() string {
	if m == ModeCgroup {
		return "cgroup"
	}
	return "host"
}

// Sample is one resource snapshot: CPU percentage normalized to the
// container's (or host's) allocation, and process RSS in bytes.
type Sample struct {
	CPUPercent float64
	MemRSS     uint64
	Mode       Mode
	Throttled  bool
}

// Monitor samples CPU and memory for the current process, preferring a
// cgroup-aware reading and falling back to gopsutil's host-wide CPU
// percent when no cgroup is detected (bare-metal or non-Linux dev
// environments).
type Monitor struct {
	cgroup *cgroupReader
	mode   Mode
	proc   *process.Process
}

// NewMonitor builds a Monitor, auto-detecting cgroup availability.
func NewMonitor() (*Monitor, error) {
	m := &Monitor{mode: ModeHost}
	if cg, err := newCgroupReader(); err == nil {
		m.cgroup = cg
		m.mode = ModeCgroup
	}
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("sysstat: process handle: %w", err)
	}
	m.proc = proc
	return m, nil
}

// Mode reports which CPU sampling strategy is active.
func (m *Monitor) Mode() Mode { return m.mode }

// Sample takes one resource snapshot. ctx bounds the gopsutil host-mode
// CPU sampling call, which blocks for a short interval to measure a
// delta.
func (m *Monitor) Sample(ctx context.Context) (Sample, error) {
	var cpuPct float64
	var err error
	mode := m.mode

	if m.cgroup != nil {
		cpuPct, err = m.cgroup.percent()
		if err != nil {
			mode = ModeHost
		}
	}
	if mode == ModeHost {
		percents, perr := cpu.PercentWithContext(ctx, 200*time.Millisecond, false)
		if perr != nil {
			return Sample{}, fmt.Errorf("sysstat: host cpu sample: %w", perr)
		}
		if len(percents) > 0 {
			cpuPct = percents[0]
		}
	}

	memInfo, err := m.proc.MemInfoWithContext(ctx)
	if err != nil {
		return Sample{}, fmt.Errorf("sysstat: process memory sample: %w", err)
	}

	return Sample{CPUPercent: cpuPct, MemRSS: memInfo.RSS, Mode: mode}, nil
}
