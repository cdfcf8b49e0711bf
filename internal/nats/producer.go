package nats

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"
)

// PublishItem publishes one work item to a queue via JetStream and returns
// its stream sequence.
func PublishItem(ctx context.Context, js jetstream.JetStream, queue string, payload []byte) (uint64, error) {
	subject := QueueItemsSubject(queue)
	ack, err := js.Publish(ctx, subject, payload)
	if err != nil {
		return 0, fmt.Errorf("publish item to %s: %w", subject, err)
	}
	return ack.Sequence, nil
}
