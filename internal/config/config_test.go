package config

import "testing"

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse(nil): %v", err)
	}
	if cfg.TickRate != 1000 || cfg.UpdateRate != 100000 {
		t.Fatalf("unexpected defaults: tickRate=%d updateRate=%d", cfg.TickRate, cfg.UpdateRate)
	}
	if len(cfg.Threads) != 1 || cfg.Threads[0] != -1 {
		t.Fatalf("Threads = %v, want [-1]", cfg.Threads)
	}
}

func TestParseThreadsCSV(t *testing.T) {
	cfg, err := Parse([]string{"-threads", "0,1,2"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(cfg.Threads) != 3 {
		t.Fatalf("Threads = %v, want 3 entries", cfg.Threads)
	}
}

func TestParseLatencyRateAll(t *testing.T) {
	cfg, err := Parse([]string{"-latencyUpdateRate", "all"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.LatencyUpdateRate != AlwaysLatency {
		t.Fatalf("LatencyUpdateRate = %d, want AlwaysLatency", cfg.LatencyUpdateRate)
	}
}

func TestValidateRejectsSubTickRate(t *testing.T) {
	c := &Config{TickRate: 1000, UpdateRate: 10, RefreshBurstSize: 1, Port: 1}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error for updateRate < tickRate")
	}
}

func TestValidateRequiresHostInNonInteractiveMode(t *testing.T) {
	c := &Config{TickRate: 1000, RefreshBurstSize: 1, NonInteractive: true}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error for missing -host in non-interactive mode")
	}
}

func TestParseNonInteractiveRequiresHost(t *testing.T) {
	_, err := Parse([]string{"-h"})
	if err == nil {
		t.Fatalf("expected error: non-interactive mode requires -host")
	}
}
