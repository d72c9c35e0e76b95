package core

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/olyamironova/perp-engine/internal/domain"
	"github.com/olyamironova/perp-engine/internal/metrics"
	"github.com/olyamironova/perp-engine/internal/port"
)

// Dispatcher moves events off the matching path. A single goroutine drains the
// queue, so events leave in the order they were enqueued.
type Dispatcher struct {
	repo     port.Repository
	pub      port.EventPublisher
	log      logrus.FieldLogger
	in       chan domain.Event
	maxBatch int
	interval time.Duration

	stopped  chan struct{}
	stopOnce sync.Once
}

// NewDispatcher builds a dispatcher. Either repo or pub may be nil.
func NewDispatcher(repo port.Repository, pub port.EventPublisher, log logrus.FieldLogger, buffer int) *Dispatcher {
	if buffer <= 0 {
		buffer = 4096
	}
	return &Dispatcher{
		repo:     repo,
		pub:      pub,
		log:      log.WithField("component", "dispatcher"),
		in:       make(chan domain.Event, buffer),
		maxBatch: 256,
		interval: 50 * time.Millisecond,
		stopped:  make(chan struct{}),
	}
}

// Enqueue blocks while the buffer is full and Run is still draining it. Once Run
// has returned, events are dropped instead.
func (d *Dispatcher) Enqueue(ev domain.Event) {
	select {
	case <-d.stopped:
		d.drop(ev)
		return
	default:
	}
	select {
	case d.in <- ev:
	case <-d.stopped:
		d.drop(ev)
	}
}

func (d *Dispatcher) drop(ev domain.Event) {
	metrics.EventsDispatched.WithLabelValues(string(ev.Type), "dropped").Inc()
	d.log.WithFields(logrus.Fields{"symbol": ev.Symbol, "seq": ev.Seq}).Warn("dispatcher stopped, event dropped")
}

// Run drains the queue until ctx is cancelled, then flushes what is left.
func (d *Dispatcher) Run(ctx context.Context) error {
	defer d.stopOnce.Do(func() { close(d.stopped) })
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	batch := make([]domain.Event, 0, d.maxBatch)
	for {
		select {
		case ev := <-d.in:
			batch = append(batch, ev)
			if len(batch) >= d.maxBatch {
				d.flush(ctx, batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				d.flush(ctx, batch)
				batch = batch[:0]
			}
		case <-ctx.Done():
		drain:
			for {
				select {
				case ev := <-d.in:
					batch = append(batch, ev)
				default:
					break drain
				}
			}
			if len(batch) > 0 {
				d.flush(context.WithoutCancel(ctx), batch)
			}
			return ctx.Err()
		}
	}
}

func (d *Dispatcher) flush(ctx context.Context, batch []domain.Event) {
	if d.repo != nil {
		if err := persistBatch(ctx, d.repo, batch); err != nil {
			d.log.WithError(err).WithField("events", len(batch)).Error("persist events failed")
			for _, ev := range batch {
				metrics.EventsDispatched.WithLabelValues(string(ev.Type), "persist_failed").Inc()
			}
		}
	}
	if d.pub == nil {
		return
	}
	for _, ev := range batch {
		outcome := "published"
		if err := d.pub.Publish(ctx, ev); err != nil {
			outcome = "publish_failed"
			d.log.WithError(err).WithFields(logrus.Fields{"symbol": ev.Symbol, "seq": ev.Seq}).Warn("publish event failed")
		}
		metrics.EventsDispatched.WithLabelValues(string(ev.Type), outcome).Inc()
	}
}
