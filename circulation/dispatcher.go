package circulation

import (
	"context"
	"sync"
)

// delivery is one queued batch of effects, or a flush marker when flushed is set.
type delivery struct {
	ctx     context.Context
	fx      effects
	flushed chan struct{}
}

// dispatcher delivers effects in the order they were queued on one goroutine at a time.
// The queue is unbounded so that enqueue never blocks the critical section that calls it.
// The goroutine is started on demand and exits when the queue is empty.
type dispatcher struct {
	deliver func(context.Context, effects)

	mu      sync.Mutex
	queue   []delivery
	running bool
}

func newDispatcher(deliver func(context.Context, effects)) *dispatcher {
	return &dispatcher{deliver: deliver}
}

func (d *dispatcher) enqueue(item delivery) {
	d.mu.Lock()
	d.queue = append(d.queue, item)
	start := !d.running
	d.running = true
	d.mu.Unlock()

	if start {
		go d.run()
	}
}

func (d *dispatcher) run() {
	for {
		d.mu.Lock()
		if len(d.queue) == 0 {
			d.running = false
			d.queue = nil
			d.mu.Unlock()

			return
		}

		next := d.queue[0]
		d.queue[0] = delivery{}
		d.queue = d.queue[1:]
		d.mu.Unlock()

		if next.flushed != nil {
			close(next.flushed)
			continue
		}

		d.deliver(next.ctx, next.fx)
	}
}

// flush waits until everything queued before the call has been delivered.
func (d *dispatcher) flush(ctx context.Context) error {
	flushed := make(chan struct{})
	d.enqueue(delivery{flushed: flushed})

	select {
	case <-flushed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
