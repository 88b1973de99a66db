// Package config loads the provider's runtime configuration: CLI flags
// for the per-run benchmark knobs, environment variables (optionally
// from a local .env file) for ambient deployment concerns, and a single
// Validate pass enforcing the invariants the rest of the core assumes
// hold before any thread starts.
package config

import (
	"flag"
	"fmt"
	"strconv"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Env holds the ambient, environment-driven settings: logging, the
// optional metrics endpoint, and the optional external feed brokers.
// These layer underneath the CLI flags in Config, which take
// precedence when both are set.
type Env struct {
	LogLevel  string `env:"ODIN_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"ODIN_LOG_FORMAT" envDefault:"json"`

	MetricsAddr string `env:"ODIN_METRICS_ADDR" envDefault:":9090"`

	KafkaBrokers string `env:"ODIN_KAFKA_BROKERS" envDefault:""`
	NATSURL      string `env:"ODIN_NATS_URL" envDefault:""`

	Environment string `env:"ODIN_ENV" envDefault:"development"`
}

// LoadEnv loads a local .env file if present (missing is not an error),
// parses process environment into Env, and returns it.
func LoadEnv(log *zerolog.Logger) (*Env, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded, using process environment only")
	}
	cfg := &Env{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parse environment: %w", err)
	}
	return cfg, nil
}

// Config is the per-run benchmark configuration, populated from CLI
// flags (see §6 of the design: -threads, -tickRate, -updateRate, ...).
type Config struct {
	Threads []int // CPU ids to bind to; -1 entries mean unbound

	TickRate               int
	UpdateRate              int
	LatencyUpdateRate       int // -1 means "all"
	GenericMsgRate          int
	LatencyGenericMsgRate   int // -1 means "all"

	MaxPackCount     int
	PackBufSize      int
	RefreshBurstSize int
	DirectWrite      bool
	OutputBufs       int
	MaxOutputBufs    int
	MaxFragmentSize  int
	SendBufSize      int
	RecvBufSize      int
	HighWaterMark    int
	TCPNoDelay       bool

	Interface   string
	Port        int
	ServiceID   int
	ServiceName string
	OpenLimit   int

	NanoTime      bool
	PreEncode     bool
	MeasureEncode bool

	SummaryFile        string
	StatsFile          string
	LatencyFile        string
	WriteStatsInterval int
	NoDisplayStats     bool
	RunTime            int

	// Non-interactive mode only.
	NonInteractive  bool
	Host            string
	ConnType        string
	ItemCount       int
	CommonItemCount int
	Username        string
}

// AlwaysLatency is the CLI sentinel meaning "latency-stamp every
// message", surfaced as the literal flag value "all".
const AlwaysLatency = -1

// Parse builds a Config from args (typically os.Args[1:]).
func Parse(args []string) (*Config, error) {
	fs := flag.NewFlagSet("odin-provider", flag.ContinueOnError)

	cfg := &Config{}
	var threadsCSV, latencyUpdateRate, latencyGenMsgRate string

	fs.StringVar(&threadsCSV, "threads", "-1", "comma-separated CPU ids to bind worker threads to (-1 = unbound)")
	fs.IntVar(&cfg.TickRate, "tickRate", 1000, "ticks per second")
	fs.IntVar(&cfg.UpdateRate, "updateRate", 100000, "updates per second per session")
	fs.StringVar(&latencyUpdateRate, "latencyUpdateRate", "10", "latency-stamped updates per second, or 'all'")
	fs.IntVar(&cfg.GenericMsgRate, "genericMsgRate", 0, "generic messages per second per session")
	fs.StringVar(&latencyGenMsgRate, "genericMsgLatencyRate", "0", "latency-stamped generic messages per second, or 'all'")
	fs.IntVar(&cfg.MaxPackCount, "maxPackCount", 1, "max messages packed per transport buffer")
	fs.IntVar(&cfg.PackBufSize, "packBufSize", 6144, "packing buffer size in bytes")
	fs.IntVar(&cfg.RefreshBurstSize, "refreshBurstSize", 10, "items refreshed per burst chunk")
	fs.BoolVar(&cfg.DirectWrite, "directWrite", false, "bypass the packing buffer entirely")
	fs.IntVar(&cfg.OutputBufs, "outputBufs", 5000, "initial output buffer pool size")
	fs.IntVar(&cfg.MaxOutputBufs, "maxOutputBufs", 0, "max output buffer pool size (0 = unbounded)")
	fs.IntVar(&cfg.MaxFragmentSize, "maxFragmentSize", 6144, "max message fragment size in bytes")
	fs.IntVar(&cfg.SendBufSize, "sendBufSize", 0, "socket send buffer size (0 = OS default)")
	fs.IntVar(&cfg.RecvBufSize, "recvBufSize", 0, "socket recv buffer size (0 = OS default)")
	fs.IntVar(&cfg.HighWaterMark, "highWaterMark", 0, "high water mark in bytes before forced flush")
	fs.BoolVar(&cfg.TCPNoDelay, "tcpDelay", true, "disable Nagle's algorithm")
	fs.StringVar(&cfg.Interface, "if", "", "bind interface address")
	fs.IntVar(&cfg.Port, "p", 14002, "listen port (interactive mode)")
	fs.IntVar(&cfg.ServiceID, "serviceId", 1, "provisioned service id")
	fs.StringVar(&cfg.ServiceName, "serviceName", "DIRECT_FEED", "provisioned service name")
	fs.IntVar(&cfg.OpenLimit, "openLimit", 100000, "max concurrently open items per session")
	fs.BoolVar(&cfg.NanoTime, "nanoTime", false, "use nanosecond latency timestamps")
	fs.BoolVar(&cfg.PreEncode, "preEnc", false, "request pre-encoding (validated against -latencyUpdateRate all; no templates are built)")
	fs.BoolVar(&cfg.MeasureEncode, "measureEncode", false, "measure and report encode time")
	fs.StringVar(&cfg.SummaryFile, "summaryFile", "summary.out", "shutdown summary file path")
	fs.StringVar(&cfg.StatsFile, "statsFile", "stats", "per-thread stats file prefix")
	fs.StringVar(&cfg.LatencyFile, "latencyFile", "", "per-thread latency log file prefix (empty disables)")
	fs.IntVar(&cfg.WriteStatsInterval, "writeStatsInterval", 5, "seconds between interval stats rows")
	fs.BoolVar(&cfg.NoDisplayStats, "noDisplayStats", false, "suppress screen stats output")
	fs.IntVar(&cfg.RunTime, "runTime", 300, "total run duration in seconds")

	fs.BoolVar(&cfg.NonInteractive, "h", false, "run as non-interactive provider against the given aggregator host")
	fs.StringVar(&cfg.Host, "host", "", "aggregator host:port (non-interactive mode)")
	fs.StringVar(&cfg.ConnType, "connType", "socket", "connection type: socket|reliableMCast")
	fs.IntVar(&cfg.ItemCount, "itemCount", 100000, "total publishable items (non-interactive mode)")
	fs.IntVar(&cfg.CommonItemCount, "commonItemCount", 0, "items shared across all threads (non-interactive mode)")
	fs.StringVar(&cfg.Username, "uname", "", "login username (non-interactive mode)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	threads, err := parseThreadsCSV(threadsCSV)
	if err != nil {
		return nil, err
	}
	cfg.Threads = threads

	cfg.LatencyUpdateRate, err = parseRateOrAll(latencyUpdateRate)
	if err != nil {
		return nil, fmt.Errorf("config: -latencyUpdateRate: %w", err)
	}
	cfg.LatencyGenericMsgRate, err = parseRateOrAll(latencyGenMsgRate)
	if err != nil {
		return nil, fmt.Errorf("config: -genericMsgLatencyRate: %w", err)
	}

	if cfg.DirectWrite {
		cfg.MaxPackCount = 1
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseThreadsCSV(csv string) ([]int, error) {
	parts := strings.Split(csv, ",")
	ids := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("config: -threads: invalid id %q: %w", p, err)
		}
		ids = append(ids, v)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("config: -threads must name at least one thread")
	}
	return ids, nil
}

func parseRateOrAll(s string) (int, error) {
	if strings.EqualFold(s, "all") {
		return AlwaysLatency, nil
	}
	return strconv.Atoi(s)
}

// Validate enforces the configuration invariants the burst scheduler
// and buffer manager assume hold before any thread starts.
func (c *Config) Validate() error {
	if c.TickRate <= 0 {
		return fmt.Errorf("config: tickRate must be > 0")
	}
	if c.UpdateRate > 0 && c.UpdateRate < c.TickRate {
		return fmt.Errorf("config: updateRate must be 0 or >= tickRate")
	}
	if c.LatencyUpdateRate != AlwaysLatency {
		if c.LatencyUpdateRate > c.UpdateRate {
			return fmt.Errorf("config: latencyUpdateRate must be <= updateRate")
		}
		if c.LatencyUpdateRate > c.TickRate {
			return fmt.Errorf("config: latencyUpdateRate must be <= tickRate")
		}
	} else if c.PreEncode {
		return fmt.Errorf("config: latencyUpdateRate=all cannot combine with preEnc")
	}
	if c.MeasureEncode && c.LatencyUpdateRate == 0 {
		return fmt.Errorf("config: measureEncode requires latencyUpdateRate > 0")
	}
	if c.MaxPackCount > 1 && c.PackBufSize <= 0 {
		return fmt.Errorf("config: packBufSize must be > 0 when maxPackCount > 1")
	}
	if c.RefreshBurstSize <= 0 {
		return fmt.Errorf("config: refreshBurstSize must be > 0")
	}
	if c.NonInteractive && c.Host == "" {
		return fmt.Errorf("config: -host is required in non-interactive mode")
	}
	if !c.NonInteractive && c.Port <= 0 {
		return fmt.Errorf("config: -p must be > 0 in interactive mode")
	}
	return nil
}
