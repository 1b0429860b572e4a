package activity

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/ovaphlow/pitchfork/service-account/internal/activity/entity"
)

const defaultBufferSize = 256

// dispatcher queues events for a single writer goroutine. One consumer keeps
// FIFO order, which preserves per-account event order.
type dispatcher struct {
	cfg     DispatchConfig
	write   func(context.Context, entity.Event)
	ch      chan entity.Event
	done    chan struct{} // closed first: releases senders blocked on a full queue
	stop    chan struct{} // closed once no sender can enqueue: runner drains and exits
	wg      sync.WaitGroup
	dropped atomic.Uint64

	// senders hold mu for reading; Close takes it for writing, so once closed
	// is set no Emit is between its check and its send.
	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once

	pendingMu sync.Mutex
	idle      *sync.Cond
	pending   int
}

func newDispatcher(cfg DispatchConfig, write func(context.Context, entity.Event)) *dispatcher {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	d := &dispatcher{
		cfg:   cfg,
		write: write,
		ch:    make(chan entity.Event, cfg.BufferSize),
		done:  make(chan struct{}),
		stop:  make(chan struct{}),
	}
	d.idle = sync.NewCond(&d.pendingMu)
	d.wg.Add(1)
	go d.run()
	return d
}

func (d *dispatcher) run() {
	defer d.wg.Done()
	for {
		select {
		case e := <-d.ch:
			d.handle(e)
		case <-d.stop:
			for {
				select {
				case e := <-d.ch:
					d.handle(e)
				default:
					return
				}
			}
		}
	}
}

func (d *dispatcher) handle(e entity.Event) {
	d.write(context.Background(), e)
	d.addPending(-1)
}

func (d *dispatcher) addPending(n int) {
	d.pendingMu.Lock()
	d.pending += n
	if d.pending == 0 {
		d.idle.Broadcast()
	}
	d.pendingMu.Unlock()
}

// Emit enqueues e. It reports false, and counts a drop, when the queue was
// full with DropIfFull set, the dispatcher is closed, or ctx ended first.
func (d *dispatcher) Emit(ctx context.Context, e entity.Event) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.dropped.Add(1)
		return false
	}
	d.addPending(1)
	if d.cfg.DropIfFull {
		select {
		case d.ch <- e:
			return true
		default:
			return d.drop()
		}
	}
	select {
	case d.ch <- e:
		return true
	case <-ctx.Done():
		return d.drop()
	case <-d.done:
		return d.drop()
	}
}

func (d *dispatcher) drop() bool {
	d.addPending(-1)
	d.dropped.Add(1)
	return false
}

// Flush blocks until every queued event has been written.
func (d *dispatcher) Flush() {
	if d == nil {
		return
	}
	d.pendingMu.Lock()
	for d.pending > 0 {
		d.idle.Wait()
	}
	d.pendingMu.Unlock()
}

func (d *dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// Close rejects new events, writes everything already queued and stops the
// writer goroutine.
func (d *dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		close(d.done)
		d.mu.Lock()
		d.closed = true
		d.mu.Unlock()
		close(d.stop)
		d.wg.Wait()
	})
}
