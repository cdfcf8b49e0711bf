package kv

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/openjobspec/ojs-job-chief/internal/core"
)

// TriggerStore keeps at most one pending trigger per queue, keyed by the
// queue name.
type TriggerStore struct {
	store *Store
}

// NewTriggerStore creates a new TriggerStore.
func NewTriggerStore(kv jetstream.KeyValue) *TriggerStore {
	return &TriggerStore{store: NewStore(kv)}
}

// Create stores tr unless a trigger for the same queue is already pending.
// Returns false when the existing trigger was kept.
func (t *TriggerStore) Create(ctx context.Context, tr *core.Trigger) (bool, error) {
	rev, err := t.store.CreateJSON(ctx, tr.Name, tr)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			return false, nil
		}
		return false, fmt.Errorf("create trigger %s: %w", tr.Name, err)
	}
	tr.Revision = rev
	return true, nil
}

// Get returns the pending trigger for a queue.
func (t *TriggerStore) Get(ctx context.Context, name string) (*core.Trigger, error) {
	var tr core.Trigger
	rev, err := t.store.GetJSON(ctx, name, &tr)
	if err != nil {
		return nil, err
	}
	tr.Revision = rev
	return &tr, nil
}

// List returns every pending trigger ordered by NotBefore.
func (t *TriggerStore) List(ctx context.Context) ([]*core.Trigger, error) {
	keys, err := t.store.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("list trigger keys: %w", err)
	}

	triggers := make([]*core.Trigger, 0, len(keys))
	for _, key := range keys {
		tr, err := t.Get(ctx, key)
		if err != nil {
			// Completed between Keys and Get
			if errors.Is(err, jetstream.ErrKeyNotFound) {
				continue
			}
			return nil, fmt.Errorf("get trigger %s: %w", key, err)
		}
		triggers = append(triggers, tr)
	}
	sort.Slice(triggers, func(i, j int) bool {
		return triggers[i].NotBefore.Before(triggers[j].NotBefore)
	})
	return triggers, nil
}

// FetchReady returns the earliest trigger whose NotBefore has passed, or
// nil when none is ready.
func (t *TriggerStore) FetchReady(ctx context.Context, now time.Time) (*core.Trigger, error) {
	triggers, err := t.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(triggers) == 0 || !triggers[0].Ready(now) {
		return nil, nil
	}
	return triggers[0], nil
}

// Complete removes tr if nobody else has removed or replaced it since it
// was read. Losing that race returns core.ErrTriggerClaimed.
func (t *TriggerStore) Complete(ctx context.Context, tr *core.Trigger) error {
	err := t.store.DeleteRevision(ctx, tr.Name, tr.Revision)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			return core.ErrTriggerClaimed
		}
		return fmt.Errorf("complete trigger %s: %w", tr.Name, err)
	}
	return nil
}
