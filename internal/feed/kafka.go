package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaConfig configures a KafkaSource.
type KafkaConfig struct {
	Brokers       []string
	ConsumerGroup string
	Topics        []string
	Log           zerolog.Logger
}

// KafkaSource is a Source backed by a franz-go consumer group. The
// record key is used as the Update subject so it can be routed to the
// matching item's stream.
type KafkaSource struct {
	client *kgo.Client
	log    zerolog.Logger
}

// NewKafkaSource builds a KafkaSource. It does not start consuming
// until Start is called.
func NewKafkaSource(cfg KafkaConfig) (*KafkaSource, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("feed: at least one kafka broker is required")
	}
	if cfg.ConsumerGroup == "" {
		return nil, fmt.Errorf("feed: kafka consumer group is required")
	}
	if len(cfg.Topics) == 0 {
		return nil, fmt.Errorf("feed: at least one kafka topic is required")
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.ConsumerGroup),
		kgo.ConsumeTopics(cfg.Topics...),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtEnd()),
		kgo.FetchMaxWait(500*time.Millisecond),
		kgo.SessionTimeout(30*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("feed: kafka client: %w", err)
	}
	return &KafkaSource{client: client, log: cfg.Log}, nil
}

// Start polls the consumer group until ctx is canceled, delivering one
// Update per fetched record.
func (k *KafkaSource) Start(ctx context.Context, handle Handler) error {
	for {
		fetches := k.client.PollFetches(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			k.log.Warn().Str("topic", topic).Int32("partition", partition).Err(err).Msg("kafka fetch error")
		})
		fetches.EachRecord(func(rec *kgo.Record) {
			handle(Update{Subject: string(rec.Key), Payload: rec.Value})
		})
	}
}

// Close releases the underlying client.
func (k *KafkaSource) Close() error {
	k.client.Close()
	return nil
}
