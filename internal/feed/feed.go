// Package feed delivers updates from an external topic or subject to the
// ProviderThreads, alongside the synthetic bursts a BurstScheduler
// produces. An update is published only for items already open whose
// name matches its subject; the feed never opens items itself. It is an
// additive ingestion path: the default synthetic burst path is
// unaffected when no feed source is configured.
package feed

import "context"

// Update is one externally sourced item update: a subject identifying
// which item it targets and an opaque payload that the provider copies
// unchanged into the outbound buffer, without calling an encode callback.
type Update struct {
	Subject string
	Payload []byte
}

// Handler processes one Update. It returns nothing, so handling an
// update never tears down the feed source.
type Handler func(Update)

// Source is an external update feed a provider thread can subscribe to.
type Source interface {
	// Start begins delivering updates to handle until ctx is canceled or
	// Close is called. It returns once delivery has stopped.
	Start(ctx context.Context, handle Handler) error
	Close() error
}
