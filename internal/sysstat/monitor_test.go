package sysstat

import (
	"context"
	"testing"
	"time"
)

func TestNewMonitorAndSample(t *testing.T) {
	m, err := NewMonitor()
	if err != nil {
		t.Fatalf("NewMonitor: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	s, err := m.Sample(ctx)
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if s.CPUPercent < 0 {
		t.Fatalf("CPUPercent = %v, want >= 0", s.CPUPercent)
	}
}

func TestModeString(t *testing.T) {
	if ModeCgroup.String() != "cgroup" {
		t.Fatalf("ModeCgroup.String() = %q", ModeCgroup.String())
	}
	if ModeHost.String() != "host" {
		t.Fatalf("ModeHost.String() = %q", ModeHost.String())
	}
}
