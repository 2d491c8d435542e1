package authsession

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/jonboulle/clockwork"
)

// auditDispatcher queues events for a single delivery goroutine. A nil
// dispatcher (auditing disabled) accepts and ignores every call.
type auditDispatcher struct {
	sink       AuditSink
	clock      clockwork.Clock
	dropIfFull bool

	queue    chan AuditEvent
	stop     chan struct{}
	finished chan struct{}
	stopOnce sync.Once
	stopped  atomic.Bool
	dropped  atomic.Uint64
}

func newAuditDispatcher(cfg AuditConfig, sink AuditSink, clock clockwork.Clock) *auditDispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = SinkFunc(nil)
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	d := &auditDispatcher{
		sink:       sink,
		clock:      clock,
		dropIfFull: cfg.DropIfFull,
		queue:      make(chan AuditEvent, max(cfg.BufferSize, 1)),
		stop:       make(chan struct{}),
		finished:   make(chan struct{}),
	}
	go d.deliver()
	return d
}

// deliver runs until stop closes, then flushes what is already queued.
func (d *auditDispatcher) deliver() {
	defer close(d.finished)
	ctx := context.Background()
	for {
		select {
		case ev := <-d.queue:
			d.sink.Emit(ctx, ev)
		case <-d.stop:
			for {
				select {
				case ev := <-d.queue:
					d.sink.Emit(ctx, ev)
				default:
					return
				}
			}
		}
	}
}

func (d *auditDispatcher) record(ctx context.Context, eventType, username string, err error, meta map[string]string) {
	if d == nil {
		return
	}
	ev := AuditEvent{
		EventType: eventType,
		Username:  username,
		Success:   err == nil,
		Metadata:  meta,
	}
	if err != nil {
		ev.Error = err.Error()
	}
	d.Emit(ctx, ev)
}

// Emit queues event, stamping Timestamp when unset. With dropIfFull a full
// queue drops the event and counts it; otherwise Emit waits for room, ctx,
// or Close.
func (d *auditDispatcher) Emit(ctx context.Context, event AuditEvent) {
	if d == nil || d.stopped.Load() {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = d.clock.Now()
	}

	if d.dropIfFull {
		select {
		case d.queue <- event:
		case <-d.stop:
		default:
			d.dropped.Add(1)
		}
		return
	}

	var cancelled <-chan struct{}
	if ctx != nil {
		cancelled = ctx.Done()
	}
	select {
	case d.queue <- event:
	case <-cancelled:
	case <-d.stop:
	}
}

// Close flushes queued events to the sink and waits for delivery to end.
func (d *auditDispatcher) Close() {
	if d == nil {
		return
	}
	d.stopOnce.Do(func() {
		d.stopped.Store(true)
		close(d.stop)
	})
	<-d.finished
}

func (d *auditDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
