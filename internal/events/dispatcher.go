package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// DispatcherConfig holds configuration for the notification dispatcher
type DispatcherConfig struct {
	// BufferSize is the number of notifications queued before Publish drops
	// Default: 256
	BufferSize int
	// DeliveryTimeout bounds one delivery across all sinks
	// Default: 10s
	DeliveryTimeout time.Duration
	Sinks           []Sink
	Logger          *slog.Logger
}

// Dispatcher queues notifications and delivers them to every sink on a
// background goroutine. Publish never blocks: when the queue is full the
// notification is dropped and counted.
type Dispatcher struct {
	queue   chan *Notification
	sinks   []Sink
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}

	delivered atomic.Int64
	dropped   atomic.Int64
	failed    atomic.Int64
}

// NewDispatcher creates a dispatcher and starts its delivery loop.
func NewDispatcher(cfg *DispatcherConfig) *Dispatcher {
	if cfg == nil {
		cfg = &DispatcherConfig{}
	}
	bufferSize := cfg.BufferSize
	if bufferSize <= 0 {
		bufferSize = 256
	}
	timeout := cfg.DeliveryTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	d := &Dispatcher{
		queue:   make(chan *Notification, bufferSize),
		sinks:   cfg.Sinks,
		timeout: timeout,
		logger:  logger,
		done:    make(chan struct{}),
	}
	go d.run()
	return d
}

// Publish implements Publisher.
func (d *Dispatcher) Publish(n *Notification) {
	if n == nil {
		return
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.dropped.Add(1)
		return
	}
	select {
	case d.queue <- n:
	default:
		d.dropped.Add(1)
		d.logger.Warn("notification dropped, queue full",
			"type", n.Type, "assignment_id", n.AssignmentID)
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for n := range d.queue {
		d.deliver(n)
	}
}

func (d *Dispatcher) deliver(n *Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	// A failing sink must not stop delivery to the others.
	var g errgroup.Group
	for _, sink := range d.sinks {
		g.Go(func() error {
			if err := sink.Deliver(ctx, n); err != nil {
				d.logger.Warn("notification delivery failed",
					"sink", sink.Name(), "type", n.Type, "assignment_id", n.AssignmentID, "error", err)
				return fmt.Errorf("%s: %w", sink.Name(), err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		d.failed.Add(1)
		return
	}
	d.delivered.Add(1)
}

// Close stops accepting notifications and waits for the queue to drain or
// ctx to expire.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("notification queue did not drain: %w", ctx.Err())
	}
}

// DispatcherStats reports delivery counters.
type DispatcherStats struct {
	Delivered int64 `json:"delivered"`
	Dropped   int64 `json:"dropped"`
	Failed    int64 `json:"failed"`
}

// Stats returns a snapshot of the delivery counters.
func (d *Dispatcher) Stats() DispatcherStats {
	return DispatcherStats{
		Delivered: d.delivered.Load(),
		Dropped:   d.dropped.Load(),
		Failed:    d.failed.Load(),
	}
}
