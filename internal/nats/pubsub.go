package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/openjobspec/ojs-job-chief/internal/core"
)

// PubSubBroker broadcasts run outcomes over NATS core pub/sub.
type PubSubBroker struct {
	nc     *nats.Conn
	logger *slog.Logger
	mu     sync.Mutex
	subs   []*nats.Subscription
}

// NewPubSubBroker creates a new PubSubBroker using the given NATS connection.
func NewPubSubBroker(nc *nats.Conn, logger *slog.Logger) *PubSubBroker {
	return &PubSubBroker{nc: nc, logger: logger.With("component", "run-events")}
}

// RunFinished publishes rec to its queue subject and to the global subject.
func (b *PubSubBroker) RunFinished(_ context.Context, rec core.RunRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal run event: %w", err)
	}

	if err := b.nc.Publish(EventQueueSubject(rec.Queue), data); err != nil {
		return fmt.Errorf("publish run event: %w", err)
	}
	if err := b.nc.Publish(EventAllSubject(), data); err != nil {
		b.logger.Error("failed to publish global run event", "error", err, "queue", rec.Queue)
	}
	return nil
}

// SubscribeQueue subscribes to run outcomes of one queue.
func (b *PubSubBroker) SubscribeQueue(queue string) (<-chan *core.RunRecord, func(), error) {
	return b.subscribe(EventQueueSubject(queue))
}

// SubscribeAll subscribes to run outcomes of every queue.
func (b *PubSubBroker) SubscribeAll() (<-chan *core.RunRecord, func(), error) {
	return b.subscribe(EventAllSubject())
}

func (b *PubSubBroker) subscribe(subject string) (<-chan *core.RunRecord, func(), error) {
	ch := make(chan *core.RunRecord, 64)
	done := make(chan struct{})

	sub, err := b.nc.Subscribe(subject, func(msg *nats.Msg) {
		var rec core.RunRecord
		if err := json.Unmarshal(msg.Data, &rec); err != nil {
			b.logger.Error("failed to unmarshal run event", "error", err)
			return
		}
		select {
		case <-done:
		case ch <- &rec:
		default:
			b.logger.Warn("dropping run event, subscriber channel full", "subject", subject)
		}
	})
	if err != nil {
		return nil, nil, fmt.Errorf("subscribe to %s: %w", subject, err)
	}

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	// The channel is never closed; a callback may still be running when
	// unsubscribe returns.
	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			close(done)
			_ = sub.Unsubscribe()
		})
	}

	return ch, unsubscribe, nil
}

// Close unsubscribes every subscription made through the broker.
func (b *PubSubBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		_ = sub.Unsubscribe()
	}
	b.subs = nil
	return nil
}
