// Package burst implements the deterministic per-tick message-count
// scheduler: it spreads a configured per-second rate over the tick
// grid, tracks the fractional remainder so the exact configured rate is
// reached every second, and decides which messages in a tick carry a
// latency timestamp.
package burst

import (
	"fmt"

	"golang.org/x/time/rate"
)

// AlwaysLatency is the sentinel LatencyPerSec value meaning "every
// message this tick is latency-stamped", bypassing the latency
// selection array entirely.
const AlwaysLatency = -1

// Config holds one stream's (update or generic-message) per-second
// rates.
type Config struct {
	PerSec        int
	LatencyPerSec int // AlwaysLatency, 0, or a value <= PerSec and <= TicksPerSec
}

// Scheduler decides, tick by tick, how many messages to emit and which
// of them are latency-stamped, for one update stream and one generic-
// message stream within a single session.
type Scheduler struct {
	ticksPerSec int

	update  perTickPlan
	genMsg  perTickPlan

	preEncoded bool
}

type perTickPlan struct {
	cfg             Config
	perTick         int
	remainder       int
	latencySelect   []bool // len ticksPerSec; true means this tick's last message is latency-stamped
	latencyPerTick  int
}

// New validates cfg and builds a Scheduler. ticksPerSec must be > 0.
// preEncoded indicates whether pre-encoded message templates are in
// use, which is incompatible with AlwaysLatency (latency messages must
// always be freshly encoded to carry a current timestamp).
func New(ticksPerSec int, update, genMsg Config, preEncoded, measureEncode bool) (*Scheduler, error) {
	if ticksPerSec <= 0 {
		return nil, fmt.Errorf("burst: ticksPerSec must be > 0, got %d", ticksPerSec)
	}
	if err := validateStream("update", update, ticksPerSec, preEncoded, measureEncode); err != nil {
		return nil, err
	}
	if err := validateStream("genMsg", genMsg, ticksPerSec, preEncoded, measureEncode); err != nil {
		return nil, err
	}

	s := &Scheduler{
		ticksPerSec: ticksPerSec,
		update:      newPlan(update, ticksPerSec),
		genMsg:      newPlan(genMsg, ticksPerSec),
		preEncoded:  preEncoded,
	}

	// Probe the rate/burst arithmetic once at startup: constructing a
	// limiter at the configured rate and reserving a token asserts the
	// configuration is internally consistent before any thread starts.
	// Runtime pacing itself stays the deterministic per-tick count
	// computed below, not this limiter.
	if update.PerSec > 0 {
		lim := rate.NewLimiter(rate.Limit(update.PerSec), update.PerSec)
		if !lim.Allow() {
			return nil, fmt.Errorf("burst: updatesPerSec=%d failed rate/burst sanity check", update.PerSec)
		}
	}

	return s, nil
}

func validateStream(name string, c Config, ticksPerSec int, preEncoded, measureEncode bool) error {
	if c.PerSec > 0 && c.PerSec < ticksPerSec {
		return fmt.Errorf("burst: %sPerSec=%d must be 0 or >= ticksPerSec=%d", name, c.PerSec, ticksPerSec)
	}
	if c.LatencyPerSec == AlwaysLatency {
		if preEncoded {
			return fmt.Errorf("burst: %s cannot combine pre-encoding with AlwaysLatency", name)
		}
		return nil
	}
	if c.LatencyPerSec > c.PerSec {
		return fmt.Errorf("burst: latency%sPerSec=%d must be <= %sPerSec=%d", name, c.LatencyPerSec, name, c.PerSec)
	}
	if c.LatencyPerSec > ticksPerSec {
		return fmt.Errorf("burst: latency%sPerSec=%d must be <= ticksPerSec=%d", name, c.LatencyPerSec, ticksPerSec)
	}
	if name == "update" && measureEncode && c.LatencyPerSec == 0 {
		return fmt.Errorf("burst: measureEncode requires latencyUpdatesPerSec > 0")
	}
	return nil
}

func newPlan(cfg Config, ticksPerSec int) perTickPlan {
	p := perTickPlan{cfg: cfg}
	if cfg.PerSec > 0 {
		p.perTick = cfg.PerSec / ticksPerSec
		p.remainder = cfg.PerSec % ticksPerSec
	}
	if cfg.LatencyPerSec > 0 && cfg.LatencyPerSec != AlwaysLatency {
		p.latencySelect = buildLatencySelection(ticksPerSec, cfg.LatencyPerSec)
	}
	return p
}

// buildLatencySelection returns a ticksPerSec-length boolean array with
// exactly latencyPerSec positions set true, spread as evenly as
// possible across the second so latency sampling is not biased toward
// any particular tick offset.
func buildLatencySelection(ticksPerSec, latencyPerSec int) []bool {
	sel := make([]bool, ticksPerSec)
	if latencyPerSec <= 0 {
		return sel
	}
	// Evenly spaced selection via Bresenham-style accumulation: marks
	// exactly latencyPerSec of the ticksPerSec slots.
	acc := 0
	for i := 0; i < ticksPerSec; i++ {
		acc += latencyPerSec
		if acc >= ticksPerSec {
			acc -= ticksPerSec
			sel[i] = true
		}
	}
	return sel
}

// PlanTick returns, for the update stream at the given tick index
// (0..ticksPerSec-1), the number of messages to send this tick and
// whether the last of them should be latency-stamped (or, under
// AlwaysLatency, every message in the tick).
func (s *Scheduler) PlanTick(tick int) (count int, latencyLast bool, allLatency bool) {
	return s.update.planTick(tick)
}

// PlanGenMsgTick is the generic-message analogue of PlanTick.
func (s *Scheduler) PlanGenMsgTick(tick int) (count int, latencyLast bool, allLatency bool) {
	return s.genMsg.planTick(tick)
}

func (p *perTickPlan) planTick(tick int) (count int, latencyLast bool, allLatency bool) {
	if p.cfg.PerSec == 0 {
		return 0, false, false
	}
	count = p.perTick
	if tick < p.remainder {
		count++
	}
	if p.cfg.LatencyPerSec == AlwaysLatency {
		return count, false, true
	}
	if len(p.latencySelect) > 0 && tick < len(p.latencySelect) {
		latencyLast = p.latencySelect[tick]
	}
	return count, latencyLast, false
}

// TicksPerSec returns the configured tick rate.
func (s *Scheduler) TicksPerSec() int { return s.ticksPerSec }
