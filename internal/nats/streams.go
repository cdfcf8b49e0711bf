package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// SetupJetStream creates the work-queue stream and the KV buckets.
func SetupJetStream(ctx context.Context, js jetstream.JetStream) error {
	// One stream holds the work items of every queue; each item is removed
	// once a worker acks it.
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{QueueAllSubject()},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.WorkQueuePolicy,
		MaxAge:    7 * 24 * time.Hour,
		Discard:   jetstream.DiscardOld,
	})
	if err != nil {
		return fmt.Errorf("creating stream %s: %w", StreamName, err)
	}

	for _, name := range []string{BucketTriggers, BucketStats} {
		cfg := jetstream.KeyValueConfig{
			Bucket:  name,
			Storage: jetstream.FileStorage,
		}
		if _, err := js.CreateOrUpdateKeyValue(ctx, cfg); err != nil {
			return fmt.Errorf("creating KV bucket %s: %w", name, err)
		}
	}

	return nil
}

// EnsureConsumer creates or updates the durable pull consumer of a queue.
func EnsureConsumer(ctx context.Context, js jetstream.JetStream, queue string) (jetstream.Consumer, error) {
	consumer, err := js.CreateOrUpdateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		Durable:       ConsumerName(queue),
		FilterSubject: QueueItemsSubject(queue),
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       5 * time.Minute,
		MaxDeliver:    5,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("creating consumer for queue %s: %w", queue, err)
	}
	return consumer, nil
}
