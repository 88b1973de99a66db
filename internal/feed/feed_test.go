package feed

import (
	"context"
	"testing"
	"time"
)

type fakeSource struct {
	updates []Update
	closed  bool
}

func (f *fakeSource) Start(ctx context.Context, handle Handler) error {
	for _, u := range f.updates {
		handle(u)
	}
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeSource) Close() error {
	f.closed = true
	return nil
}

func TestSourceDeliversUpdatesThenBlocksUntilCanceled(t *testing.T) {
	src := &fakeSource{updates: []Update{{Subject: "a", Payload: []byte("1")}, {Subject: "b", Payload: []byte("2")}}}

	var got []Update
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- src.Start(ctx, func(u Update) { got = append(got, u) })
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()
	if err := <-done; err == nil {
		t.Fatalf("expected context canceled error")
	}

	if len(got) != 2 || got[0].Subject != "a" || got[1].Subject != "b" {
		t.Fatalf("unexpected updates delivered: %+v", got)
	}

	if err := src.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !src.closed {
		t.Fatalf("expected Close to mark source closed")
	}
}

func TestNewKafkaSourceValidatesConfig(t *testing.T) {
	if _, err := NewKafkaSource(KafkaConfig{}); err == nil {
		t.Fatalf("expected error for empty config")
	}
	if _, err := NewKafkaSource(KafkaConfig{Brokers: []string{"localhost:9092"}}); err == nil {
		t.Fatalf("expected error for missing consumer group")
	}
	if _, err := NewKafkaSource(KafkaConfig{Brokers: []string{"localhost:9092"}, ConsumerGroup: "g"}); err == nil {
		t.Fatalf("expected error for missing topics")
	}
}

func TestNewNATSSourceValidatesConfig(t *testing.T) {
	if _, err := NewNATSSource(NATSConfig{}); err == nil {
		t.Fatalf("expected error for empty config")
	}
	if _, err := NewNATSSource(NATSConfig{URL: "nats://localhost:4222"}); err == nil {
		t.Fatalf("expected error for missing subject")
	}
}
