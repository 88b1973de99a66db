package provider

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/odin-labs/odin-provider/internal/latency"
	"github.com/odin-labs/odin-provider/internal/sysstat"
)

// Totals accumulates counter deltas across every thread for the final
// shutdown summary.
type Totals struct {
	Refreshes, Updates, Requests, Closes, Posts, GenMsgsSent, GenMsgsRecv, OutOfBuffers uint64
}

func (t *Totals) add(s Snapshot) {
	t.Refreshes += s.Refreshes
	t.Updates += s.Updates
	t.Requests += s.Requests
	t.Closes += s.Closes
	t.Posts += s.Posts
	t.GenMsgsSent += s.GenMsgsSent
	t.GenMsgsRecv += s.GenMsgsRecv
	t.OutOfBuffers += s.OutOfBuffers
}

// Provider owns the worker thread fleet, periodically samples resources
// and drains per-thread statistics, and emits interval/summary reports.
type Provider struct {
	log     zerolog.Logger
	Threads []*Thread

	monitor *sysstat.Monitor

	writeStatsInterval time.Duration
	statsFilePrefix    string
	summaryFile        string
	noDisplayStats     bool

	deltas        []Delta
	latencyStats  []latency.Stats
	encodeStats   []latency.Stats
	totals        Totals
	latestSample  sysstat.Sample
	sampleMu      sync.RWMutex

	statsFiles []*os.File
}

// Options bundles Provider construction parameters.
type Options struct {
	WriteStatsInterval time.Duration
	StatsFilePrefix    string
	SummaryFile        string
	NoDisplayStats     bool
}

// New builds a Provider over threads, which must already be
// constructed via NewThread.
func New(log zerolog.Logger, threads []*Thread, opts Options) (*Provider, error) {
	mon, err := sysstat.NewMonitor()
	if err != nil {
		return nil, fmt.Errorf("provider: resource monitor: %w", err)
	}
	p := &Provider{
		log:                log,
		Threads:            threads,
		monitor:            mon,
		writeStatsInterval: opts.WriteStatsInterval,
		statsFilePrefix:    opts.StatsFilePrefix,
		summaryFile:        opts.SummaryFile,
		noDisplayStats:     opts.NoDisplayStats,
		deltas:             make([]Delta, len(threads)),
		latencyStats:       make([]latency.Stats, len(threads)),
		encodeStats:        make([]latency.Stats, len(threads)),
	}
	for i := range threads {
		f, err := os.Create(fmt.Sprintf("%s-%d.csv", opts.StatsFilePrefix, i))
		if err != nil {
			return nil, fmt.Errorf("provider: create stats file for thread %d: %w", i, err)
		}
		fmt.Fprintln(f, "utc,refreshes,updates,requests,closes,posts,genMsgsSent,genMsgsRecv,outOfBuffers,latencyAvgUsec,latencyMaxUsec,cpuPercent,memRSSBytes")
		p.statsFiles = append(p.statsFiles, f)
	}
	return p, nil
}

// Run starts every thread's tick loop and the periodic aggregation
// loop; it blocks until ctx is canceled, then performs a final collect
// and writes the shutdown summary.
func (p *Provider) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, t := range p.Threads {
		wg.Add(1)
		go func(t *Thread) {
			defer wg.Done()
			t.Run(ctx)
		}(t)
	}

	ticker := time.NewTicker(p.writeStatsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			p.collect(ctx)
			return p.writeSummary()
		case <-ticker.C:
			p.collect(ctx)
		}
	}
}

func (p *Provider) collect(ctx context.Context) {
	sample, err := p.monitor.Sample(ctx)
	if err != nil {
		p.log.Warn().Err(err).Msg("resource sample failed")
	} else {
		p.sampleMu.Lock()
		p.latestSample = sample
		p.sampleMu.Unlock()
	}

	now := time.Now().UTC().Format(time.RFC3339)
	for i, t := range p.Threads {
		cur := t.Counters.snapshot()
		change := p.deltas[i].GetChange(cur)
		p.totals.add(change)

		var recs []latency.Record
		recs = t.LatencyRecords.Drain(recs[:0])
		for _, r := range recs {
			p.latencyStats[i].Add(r.Micros())
		}
		var encRecs []latency.Record
		encRecs = t.EncodeRecords.Drain(encRecs[:0])
		for _, r := range encRecs {
			p.encodeStats[i].Add(r.Micros())
		}

		if i < len(p.statsFiles) {
			fmt.Fprintf(p.statsFiles[i], "%s,%d,%d,%d,%d,%d,%d,%d,%d,%.1f,%d,%.1f,%d\n",
				now, change.Refreshes, change.Updates, change.Requests, change.Closes, change.Posts,
				change.GenMsgsSent, change.GenMsgsRecv, change.OutOfBuffers,
				p.latencyStats[i].Mean(), p.latencyStats[i].Max(),
				sample.CPUPercent, sample.MemRSS)
		}
		if !p.noDisplayStats {
			p.log.Info().
				Int("thread", i).
				Uint64("updates", change.Updates).
				Uint64("refreshes", change.Refreshes).
				Float64("latency_avg_usec", p.latencyStats[i].Mean()).
				Msg("stats interval")
		}
	}
}

// LatestSample returns the most recent resource snapshot, safe for
// concurrent read (e.g. from an HTTP health handler).
func (p *Provider) LatestSample() sysstat.Sample {
	p.sampleMu.RLock()
	defer p.sampleMu.RUnlock()
	return p.latestSample
}

func (p *Provider) writeSummary() error {
	f, err := os.Create(p.summaryFile)
	if err != nil {
		return fmt.Errorf("provider: create summary file: %w", err)
	}
	defer f.Close()

	fmt.Fprintf(f, "--- odin-provider summary ---\n")
	fmt.Fprintf(f, "refreshes:     %d\n", p.totals.Refreshes)
	fmt.Fprintf(f, "updates:       %d\n", p.totals.Updates)
	fmt.Fprintf(f, "requests:      %d\n", p.totals.Requests)
	fmt.Fprintf(f, "closes:        %d\n", p.totals.Closes)
	fmt.Fprintf(f, "posts:         %d\n", p.totals.Posts)
	fmt.Fprintf(f, "genMsgsSent:   %d\n", p.totals.GenMsgsSent)
	fmt.Fprintf(f, "genMsgsRecv:   %d\n", p.totals.GenMsgsRecv)
	fmt.Fprintf(f, "outOfBuffers:  %d\n", p.totals.OutOfBuffers)
	for i := range p.Threads {
		fmt.Fprintf(f, "thread %d latency (usec): avg=%.1f min=%d max=%d stddev=%.1f n=%d\n",
			i, p.latencyStats[i].Mean(), p.latencyStats[i].Min(), p.latencyStats[i].Max(),
			p.latencyStats[i].StdDev(), p.latencyStats[i].Count())
	}
	for _, sf := range p.statsFiles {
		sf.Close()
	}
	p.log.Info().Msg("shutdown summary written")
	return nil
}
