package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/openjobspec/ojs-job-chief/internal/kv"
)

// Backend holds the NATS connection and the JetStream resources job-chief uses.
type Backend struct {
	nc *nats.Conn
	js jetstream.JetStream

	triggers *kv.TriggerStore
	stats    *kv.Store

	consumers *ConsumerManager
}

// New connects to NATS and sets up the stream and KV buckets.
func New(natsURL string) (*Backend, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("job-chief"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("creating JetStream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := SetupJetStream(ctx, js); err != nil {
		nc.Close()
		return nil, fmt.Errorf("setting up JetStream: %w", err)
	}

	triggersKV, err := js.KeyValue(ctx, BucketTriggers)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("opening KV bucket %s: %w", BucketTriggers, err)
	}
	statsKV, err := js.KeyValue(ctx, BucketStats)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("opening KV bucket %s: %w", BucketStats, err)
	}

	return &Backend{
		nc:        nc,
		js:        js,
		triggers:  kv.NewTriggerStore(triggersKV),
		stats:     kv.NewStore(statsKV),
		consumers: NewConsumerManager(js),
	}, nil
}

// Conn returns the underlying NATS connection.
func (b *Backend) Conn() *nats.Conn {
	return b.nc
}

// Triggers returns the singleton trigger store.
func (b *Backend) Triggers() *kv.TriggerStore {
	return b.triggers
}

// Stats returns the worker-reported counters bucket.
func (b *Backend) Stats() *kv.Store {
	return b.stats
}

// Consumers returns the per-queue consumer cache.
func (b *Backend) Consumers() *ConsumerManager {
	return b.consumers
}

// Enqueue ensures the queue's consumer exists and publishes one work item.
func (b *Backend) Enqueue(ctx context.Context, queue string, payload []byte) (uint64, error) {
	if _, err := b.consumers.GetConsumer(ctx, queue); err != nil {
		return 0, err
	}
	return PublishItem(ctx, b.js, queue, payload)
}

// Healthy reports whether the NATS connection is up.
func (b *Backend) Healthy() bool {
	return b.nc.IsConnected()
}

// Close drains and closes the NATS connection.
func (b *Backend) Close() error {
	if err := b.nc.Drain(); err != nil {
		b.nc.Close()
		return err
	}
	return nil
}
