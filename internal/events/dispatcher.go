package events

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"update-user-service/internal/domain"
	"update-user-service/internal/metrics"
)

type DispatcherConfig struct {
	Buffer         int
	PublishTimeout time.Duration
	Logger         *logrus.Logger
	Metrics        *metrics.Recorder
}

// Dispatcher decouples event delivery from the request path. Publish only
// enqueues; a single background worker hands events to the wrapped Publisher
// and logs whatever goes wrong.
type Dispatcher struct {
	cfg       DispatcherConfig
	publisher Publisher
	queue     chan pendingEvent

	mu      sync.RWMutex
	started bool
	closed  bool
	wg      sync.WaitGroup
}

type pendingEvent struct {
	eventType domain.EventType
	payload   any
}

func NewDispatcher(cfg DispatcherConfig, publisher Publisher) *Dispatcher {
	if cfg.Buffer <= 0 {
		cfg.Buffer = 64
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &Dispatcher{
		cfg:       cfg,
		publisher: publisher,
		queue:     make(chan pendingEvent, cfg.Buffer),
	}
}

// Start launches the delivery worker. Events buffered at Shutdown are still
// delivered, so ctx only supplies values, not cancellation.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true

	base := context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for ev := range d.queue {
			d.deliver(base, ev)
		}
	}()
	d.cfg.Logger.Infof("event dispatcher started, buffer %d", d.cfg.Buffer)
}

func (d *Dispatcher) Publish(_ context.Context, eventType domain.EventType, payload any) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}

	select {
	case d.queue <- pendingEvent{eventType: eventType, payload: payload}:
		return nil
	default:
		d.cfg.Metrics.Event(metrics.OutcomeDropped)
		return ErrQueueFull
	}
}

// Shutdown stops accepting events and waits for the buffered ones.
func (d *Dispatcher) Shutdown() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	started := d.started
	d.mu.Unlock()

	if !started {
		return
	}
	d.wg.Wait()
	d.cfg.Logger.Info("event dispatcher stopped")
}

func (d *Dispatcher) deliver(base context.Context, ev pendingEvent) {
	ctx, cancel := context.WithTimeout(base, d.cfg.PublishTimeout)
	defer cancel()

	log := d.cfg.Logger.WithField("event_type", ev.eventType)
	if err := d.publisher.Publish(ctx, ev.eventType, ev.payload); err != nil {
		d.cfg.Metrics.Event(metrics.OutcomeFailed)
		log.WithError(err).Warn("event not published")
		return
	}
	d.cfg.Metrics.Event(metrics.OutcomePublished)
	log.Info("event published")
}
