package nats

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/openjobspec/ojs-job-chief/internal/core"
)

// ConsumerInfoSource reads delivery counters of a queue's consumer.
type ConsumerInfoSource interface {
	ConsumerInfo(ctx context.Context, queue string) (*jetstream.ConsumerInfo, error)
}

// StatsWatcher streams worker-reported counters.
type StatsWatcher interface {
	Watch(ctx context.Context, pattern string) (jetstream.KeyWatcher, error)
}

// QueueProvider answers depth queries for the configured queues and keeps a
// cached snapshot of their states.
//
// Created, Retry, Active and Completed come from the queue's JetStream
// consumer. Expired, Cancelled and Failed are pushed by workers into the
// stats bucket under "<queue>.<stat>".
type QueueProvider struct {
	consumers ConsumerInfoSource
	stats     StatsWatcher
	interval  time.Duration
	logger    *slog.Logger

	queues map[string]bool

	mu       sync.RWMutex
	delivery map[string]core.QueueStat
	reported map[string]core.QueueStat

	startMu  sync.Mutex
	running  bool
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	watcher  jetstream.KeyWatcher
}

// NewQueueProvider creates a provider for the named queues. interval is the
// period of the consumer counter refresh.
func NewQueueProvider(consumers ConsumerInfoSource, stats StatsWatcher, queues []string, interval time.Duration, logger *slog.Logger) *QueueProvider {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	set := make(map[string]bool, len(queues))
	for _, q := range queues {
		set[q] = true
	}
	return &QueueProvider{
		consumers: consumers,
		stats:     stats,
		interval:  interval,
		logger:    logger.With("component", "queue-provider"),
		queues:    set,
		delivery:  make(map[string]core.QueueStat, len(queues)),
		reported:  make(map[string]core.QueueStat, len(queues)),
		stop:      make(chan struct{}),
	}
}

// StartQueue prepares every queue's consumer, takes a first snapshot, and
// starts the monitor loops. Must be called before the first depth query.
func (p *QueueProvider) StartQueue(ctx context.Context) error {
	p.startMu.Lock()
	defer p.startMu.Unlock()
	if p.running {
		return nil
	}

	for q := range p.queues {
		if _, err := p.refreshQueue(ctx, q); err != nil {
			return err
		}
	}

	if p.stats != nil {
		w, err := p.stats.Watch(ctx, ">")
		if err != nil {
			return fmt.Errorf("watch queue stats: %w", err)
		}
		p.watcher = w
		p.wg.Add(1)
		go p.watchStats(w)
	}

	p.wg.Add(1)
	go p.monitor()

	p.running = true
	p.logger.Info("queue provider started", "queues", len(p.queues), "interval", p.interval)
	return nil
}

// StopQueue stops the monitor loops. Safe to call more than once.
func (p *QueueProvider) StopQueue() error {
	var err error
	p.stopOnce.Do(func() {
		close(p.stop)
		p.startMu.Lock()
		w := p.watcher
		p.startMu.Unlock()
		if w != nil {
			err = w.Stop()
		}
		p.wg.Wait()
	})
	return err
}

// IsQueueEmpty reports whether the queue has no undelivered work. Failures
// are returned to the caller; the cached snapshot is refreshed as a side effect.
func (p *QueueProvider) IsQueueEmpty(ctx context.Context, name string) (bool, error) {
	info, err := p.refreshQueue(ctx, name)
	if err != nil {
		return false, err
	}
	return info.NumPending == 0, nil
}

// GetQueuesStates returns a copy of the latest snapshot of every configured queue.
func (p *QueueProvider) GetQueuesStates() map[string]core.QueueStat {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make(map[string]core.QueueStat, len(p.queues))
	for q := range p.queues {
		out[q] = mergeStats(p.delivery[q], p.reported[q])
	}
	return out
}

func (p *QueueProvider) refreshQueue(ctx context.Context, queue string) (*jetstream.ConsumerInfo, error) {
	info, err := p.consumers.ConsumerInfo(ctx, queue)
	if err != nil {
		return nil, fmt.Errorf("query depth of queue %s: %w", queue, err)
	}
	if !p.queues[queue] {
		return info, nil
	}

	var s core.QueueStat
	s.Set(core.StatCreated, int(info.NumPending))
	s.Set(core.StatActive, info.NumAckPending)
	s.Set(core.StatRetry, info.NumRedelivered)
	s.Set(core.StatCompleted, int(info.AckFloor.Consumer))

	p.mu.Lock()
	p.delivery[queue] = s
	p.mu.Unlock()
	return info, nil
}

func (p *QueueProvider) monitor() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), p.interval)
			for q := range p.queues {
				if _, err := p.refreshQueue(ctx, q); err != nil {
					p.logger.Warn("failed to refresh queue state", "queue", q, "error", err)
				}
			}
			cancel()
		}
	}
}

func (p *QueueProvider) watchStats(w jetstream.KeyWatcher) {
	defer p.wg.Done()
	for {
		select {
		case <-p.stop:
			return
		case entry, ok := <-w.Updates():
			if !ok {
				return
			}
			// nil marks the end of the initial values
			if entry == nil {
				continue
			}
			p.applyStat(entry)
		}
	}
}

func (p *QueueProvider) applyStat(entry jetstream.KeyValueEntry) {
	queue, stat, ok := ParseStatsKey(entry.Key())
	if !ok || !p.queues[queue] {
		return
	}
	switch stat {
	case core.StatExpired, core.StatCancelled, core.StatFailed:
	default:
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.reported[queue]
	if entry.Operation() != jetstream.KeyValuePut {
		s.Set(stat, 0)
	} else if !s.SetString(stat, string(entry.Value())) {
		p.logger.Warn("ignoring malformed queue stat", "key", entry.Key())
		return
	}
	p.reported[queue] = s
}

func mergeStats(delivery, reported core.QueueStat) core.QueueStat {
	out := delivery
	out.Set(core.StatExpired, reported.Expired)
	out.Set(core.StatCancelled, reported.Cancelled)
	out.Set(core.StatFailed, reported.Failed)
	return out
}
