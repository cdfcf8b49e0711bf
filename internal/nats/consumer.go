package nats

import (
	"context"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go/jetstream"
)

// ConsumerManager caches the durable consumer of each queue.
type ConsumerManager struct {
	js        jetstream.JetStream
	consumers sync.Map // map[string]jetstream.Consumer
}

// NewConsumerManager creates a new ConsumerManager.
func NewConsumerManager(js jetstream.JetStream) *ConsumerManager {
	return &ConsumerManager{js: js}
}

// GetConsumer returns the pull consumer for a queue, creating it if needed.
func (cm *ConsumerManager) GetConsumer(ctx context.Context, queue string) (jetstream.Consumer, error) {
	if c, ok := cm.consumers.Load(queue); ok {
		return c.(jetstream.Consumer), nil
	}

	consumer, err := EnsureConsumer(ctx, cm.js, queue)
	if err != nil {
		return nil, err
	}

	cm.consumers.Store(queue, consumer)
	return consumer, nil
}

// ConsumerInfo fetches fresh delivery counters of a queue's consumer.
func (cm *ConsumerManager) ConsumerInfo(ctx context.Context, queue string) (*jetstream.ConsumerInfo, error) {
	consumer, err := cm.GetConsumer(ctx, queue)
	if err != nil {
		return nil, err
	}
	info, err := consumer.Info(ctx)
	if err != nil {
		// The consumer may have been removed behind our back; recreate next time.
		cm.consumers.Delete(queue)
		return nil, fmt.Errorf("consumer info for queue %s: %w", queue, err)
	}
	return info, nil
}
