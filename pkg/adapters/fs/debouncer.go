package fs

import (
	"sync"
	"time"

	"github.com/aretw0/firekit/pkg/core"
)

// debouncer collapses bursts of filesystem events for the same document
// into one event delivered after delay of quiet.
type debouncer struct {
	delay time.Duration

	mu      sync.Mutex
	pending map[string]*pendingEvent
	stopped bool
	wg      sync.WaitGroup
}

type pendingEvent struct {
	event core.Event
	timer *time.Timer
}

func newDebouncer(delay time.Duration) *debouncer {
	return &debouncer{delay: delay, pending: make(map[string]*pendingEvent)}
}

// add schedules fn for e, replacing any event pending for the same document.
// A Create followed by writes is still reported as a Create.
func (d *debouncer) add(e core.Event, fn func(core.Event)) {
	key := string(e.Collection) + "/" + e.ID

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	if prev, ok := d.pending[key]; ok {
		if prev.timer.Stop() {
			d.wg.Done()
		}
		if prev.event.Type == core.EventCreate && e.Type == core.EventModify {
			e.Type = core.EventCreate
		}
	}

	p := &pendingEvent{event: e}
	d.wg.Add(1)
	p.timer = time.AfterFunc(d.delay, func() {
		defer d.wg.Done()
		d.mu.Lock()
		if d.pending[key] == p {
			delete(d.pending, key)
		}
		d.mu.Unlock()
		fn(p.event)
	})
	d.pending[key] = p
}

// stopAndWait rejects new events and waits up to timeout for scheduled
// callbacks to finish. Events still waiting for their delay are dropped.
func (d *debouncer) stopAndWait(timeout time.Duration) {
	d.mu.Lock()
	d.stopped = true
	for key, p := range d.pending {
		if p.timer.Stop() {
			d.wg.Done()
		}
		delete(d.pending, key)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
	}
}
