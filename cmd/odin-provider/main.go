// Command odin-provider runs a synthetic market-data provider that
// opens sessions over websocket channels, admits item requests, and
// publishes refresh/update/generic-message bursts at a configured rate
// while recording end-to-end latency and resource usage.
package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gobwas/ws"
	"github.com/rs/zerolog"
	_ "go.uber.org/automaxprocs"

	"github.com/odin-labs/odin-provider/internal/admission"
	"github.com/odin-labs/odin-provider/internal/burst"
	"github.com/odin-labs/odin-provider/internal/channel"
	"github.com/odin-labs/odin-provider/internal/config"
	"github.com/odin-labs/odin-provider/internal/feed"
	"github.com/odin-labs/odin-provider/internal/metrics"
	"github.com/odin-labs/odin-provider/internal/provider"
	"github.com/odin-labs/odin-provider/internal/registry"
	"github.com/odin-labs/odin-provider/internal/transport"
	"github.com/odin-labs/odin-provider/internal/wire"
)

// marketPriceDomain is the domain type non-interactive publishing and
// the feed ingestion path tag their synthetic items with; a concrete
// deployment's decoder would instead read this off the request.
const marketPriceDomain uint8 = 6

func newLogger(level, format string) zerolog.Logger {
	var out io.Writer = os.Stdout
	if format == "pretty" {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	return zerolog.New(out).With().Timestamp().Str("service", "odin-provider").Logger()
}

// encodeStub is the placeholder wire codec wired in as the refresh,
// update and generic-message encoder: a concrete deployment supplies
// its own domain message encoders here. It exists so the thread fleet
// has something to exercise end to end.
func encodeStub(item *registry.Item, dst []byte, latencyStamped bool) (int, error) {
	return copy(dst, []byte("MSG")), nil
}

// decodeStub is a placeholder wire decoder standing in for the opaque
// application codec: it reads a leading MessageClass tag byte and, for
// MessageItemClose, a big-endian stream id, so the dispatch path in
// provider.Thread.onMessage is exercised end to end against frames
// shaped this way. A concrete deployment replaces this with its own
// message decoder; onMessage's dispatch logic itself is unaffected by
// what replaces it.
func decodeStub(frame []byte) (provider.InboundMessage, error) {
	if len(frame) == 0 {
		return provider.InboundMessage{Class: provider.MessageUnknown}, nil
	}
	switch provider.MessageClass(frame[0]) {
	case provider.MessageLoginRefresh:
		return provider.InboundMessage{Class: provider.MessageLoginRefresh, Login: channel.LoginOpenOK}, nil
	case provider.MessageDirectoryResponse:
		return provider.InboundMessage{Class: provider.MessageDirectoryResponse}, nil
	case provider.MessageDictionaryComplete:
		streamID := int32(0)
		if len(frame) >= 5 {
			streamID = int32(binary.BigEndian.Uint32(frame[1:5]))
		}
		return provider.InboundMessage{Class: provider.MessageDictionaryComplete, DictionaryStreamID: streamID}, nil
	case provider.MessageItemClose:
		streamID := int32(0)
		if len(frame) >= 5 {
			streamID = int32(binary.BigEndian.Uint32(frame[1:5]))
		}
		return provider.InboundMessage{Class: provider.MessageItemClose, StreamID: streamID}, nil
	default:
		return provider.InboundMessage{Class: provider.MessageGenericMessage, GenericPayload: frame[1:]}, nil
	}
}

// splitCSV trims and drops empty entries from a comma-separated list,
// used for the feed broker/address environment settings.
func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func main() {
	bootstrap := newLogger("info", "json")
	env, err := config.LoadEnv(&bootstrap)
	if err != nil {
		fmt.Fprintf(os.Stderr, "odin-provider: %v\n", err)
		os.Exit(1)
	}
	log := newLogger(env.LogLevel, env.LogFormat)

	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		log.Fatal().Err(err).Msg("parse configuration")
	}

	// Non-interactive mode splits ItemCount across the thread fleet
	// (thread i owns [i*perThread, (i+1)*perThread)) plus CommonItemCount
	// items every thread republishes under the same names, matching the
	// "-itemCount/-commonItemCount" partitioning the original benchmark
	// CLI describes.
	perThread := 0
	if cfg.NonInteractive && len(cfg.Threads) > 0 {
		perThread = (cfg.ItemCount - cfg.CommonItemCount) / len(cfg.Threads)
	}

	threads := make([]*provider.Thread, len(cfg.Threads))
	for i := range cfg.Threads {
		update := burst.Config{PerSec: cfg.UpdateRate, LatencyPerSec: cfg.LatencyUpdateRate}
		genMsg := burst.Config{PerSec: cfg.GenericMsgRate, LatencyPerSec: cfg.LatencyGenericMsgRate}
		tcfg := provider.ThreadConfig{
			TicksPerSec:      cfg.TickRate,
			RefreshBurstSize: cfg.RefreshBurstSize,
			ItemCapacity:     cfg.ItemCount,
			OpenLimit:        cfg.OpenLimit,
			WireConfig: wire.Config{
				MaxPerPack: cfg.MaxPackCount,
				PackBufLen: cfg.PackBufSize,
			},
			Update:               update,
			GenMsg:               genMsg,
			PreEncode:            cfg.PreEncode,
			MeasureEncode:        cfg.MeasureEncode,
			AutoDownloadDict:     true,
			IsConsumerOrNI:       cfg.NonInteractive,
			EncodeRefresh:        encodeStub,
			EncodeUpdate:         encodeStub,
			EncodeGenMsg:         encodeStub,
			Decode:               decodeStub,
			ProvisionedServiceID: uint32(cfg.ServiceID),
			PublishDomainType:    marketPriceDomain,
		}
		if cfg.NonInteractive {
			tcfg.PublishItemStart = i * perThread
			tcfg.PublishItemCount = perThread + cfg.CommonItemCount
		}
		th, err := provider.NewThread(i, log, tcfg)
		if err != nil {
			log.Fatal().Err(err).Int("thread", i).Msg("construct thread")
		}
		threads[i] = th
	}

	prov, err := provider.New(log, threads, provider.Options{
		WriteStatsInterval: time.Duration(cfg.WriteStatsInterval) * time.Second,
		StatsFilePrefix:    cfg.StatsFile,
		SummaryFile:        cfg.SummaryFile,
		NoDisplayStats:     cfg.NoDisplayStats,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("construct provider")
	}

	targets := make([]admission.Target, len(threads))
	for i, th := range threads {
		targets[i] = th
	}
	dispatcher := admission.New(targets, 0)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if env.MetricsAddr != "" {
		metrics.NewRegistry()
		go func() {
			if err := metrics.Serve(env.MetricsAddr); err != nil && err != http.ErrServerClosed {
				log.Warn().Err(err).Msg("metrics server stopped")
			}
		}()
	}

	if cfg.NonInteractive {
		// Each thread already owns its publish-item partition (set on
		// ThreadConfig above), so every thread dials its own connection
		// to the aggregator directly rather than going through the
		// least-loaded dispatcher, which would break that partitioning.
		for _, th := range threads {
			go dialAggregator(ctx, log, cfg, th)
		}
	} else {
		go acceptConnections(ctx, log, cfg, dispatcher)
	}

	if src := newFeedSource(log, env); src != nil {
		go runFeedFanout(ctx, log, src, threads)
	}

	if cfg.RunTime > 0 {
		go func() {
			timer := time.NewTimer(time.Duration(cfg.RunTime) * time.Second)
			defer timer.Stop()
			select {
			case <-timer.C:
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	if err := prov.Run(ctx); err != nil {
		log.Error().Err(err).Msg("provider run exited with error")
	}
	log.Info().Msg("odin-provider shut down")
}

// acceptConnections runs the interactive-mode TCP listener, performing
// the websocket upgrade for each inbound connection and handing it to
// the admission dispatcher.
func acceptConnections(ctx context.Context, log zerolog.Logger, cfg *config.Config, d *admission.Dispatcher) {
	addr := fmt.Sprintf("%s:%d", cfg.Interface, cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		log.Fatal().Err(err).Str("addr", addr).Msg("listen")
	}
	defer ln.Close()
	log.Info().Str("addr", addr).Msg("listening for provider connections")

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	pingTimeout := 30 * time.Second
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn().Err(err).Msg("accept failed")
			continue
		}
		if _, err := ws.Upgrade(conn); err != nil {
			log.Warn().Err(err).Msg("websocket upgrade failed")
			conn.Close()
			continue
		}
		wsch := transport.NewAcceptedWSChannel(conn, pingTimeout, cfg.MaxFragmentSize)
		if _, err := d.Dispatch(wsch, nil); err != nil {
			log.Warn().Err(err).Msg("dispatch rejected connection")
			wsch.Close("dispatch rejected")
		}
	}
}

// dialAggregator runs the non-interactive mode: this provider instance
// dials an upstream aggregator instead of accepting inbound connections,
// handing the channel straight to th rather than the load-balancing
// dispatcher so th's pre-assigned publish-item partition (see main)
// ends up on the session it actually seeds.
func dialAggregator(ctx context.Context, log zerolog.Logger, cfg *config.Config, th *provider.Thread) {
	pingTimeout := 30 * time.Second
	wsch, err := transport.DialWSChannel(cfg.Host, pingTimeout, cfg.MaxFragmentSize)
	if err != nil {
		log.Fatal().Err(err).Str("host", cfg.Host).Msg("dial aggregator")
	}
	if err := th.Enqueue(wsch, nil); err != nil {
		log.Fatal().Err(err).Msg("enqueue aggregator connection")
	}
}

// newFeedSource builds the optional external update feed from env,
// preferring Kafka when both are configured. It returns nil when
// neither is set, leaving the provider's synthetic burst path as the
// sole publication source.
func newFeedSource(log zerolog.Logger, env *config.Env) feed.Source {
	switch {
	case env.KafkaBrokers != "":
		src, err := feed.NewKafkaSource(feed.KafkaConfig{
			Brokers:       splitCSV(env.KafkaBrokers),
			ConsumerGroup: "odin-provider",
			Topics:        []string{"odin.items"},
			Log:           log,
		})
		if err != nil {
			log.Warn().Err(err).Msg("kafka feed disabled")
			return nil
		}
		return src
	case env.NATSURL != "":
		src, err := feed.NewNATSSource(feed.NATSConfig{URL: env.NATSURL, Subject: "odin.items"})
		if err != nil {
			log.Warn().Err(err).Msg("nats feed disabled")
			return nil
		}
		return src
	default:
		return nil
	}
}

// runFeedFanout pumps src until ctx is canceled, broadcasting each
// update to every thread; only the thread owning a matching item acts
// on it; see Thread.drainFeedUpdates.
func runFeedFanout(ctx context.Context, log zerolog.Logger, src feed.Source, threads []*provider.Thread) {
	defer src.Close()
	err := src.Start(ctx, func(u feed.Update) {
		for _, th := range threads {
			th.DispatchFeedUpdate(u)
		}
	})
	if err != nil && ctx.Err() == nil {
		log.Warn().Err(err).Msg("feed source stopped")
	}
}
