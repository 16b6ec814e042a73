package typed

import (
	"context"
	"sync"
)

// Subscription is a live change feed started by one of the Manager.Listen methods.
type Subscription struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func newSubscription(cancel context.CancelFunc) *Subscription {
	return &Subscription{
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Cancel stops the subscription. It is safe to call more than once and from
// inside the notification callback.
func (s *Subscription) Cancel() {
	s.cancel()
}

// Done is closed once the notification loop has exited.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

func (s *Subscription) finish() {
	s.once.Do(func() { close(s.done) })
}
