// Package lifecycle bridges store change events into lifecycle sources.
package lifecycle

import (
	"context"
	"fmt"

	"github.com/aretw0/lifecycle"

	"github.com/aretw0/firekit/pkg/core"
)

type watchSource struct {
	store      core.Watchable
	collection core.Collection
	out        chan lifecycle.Event
}

// NewSource creates a lifecycle.Source emitting the change events of one
// collection (every collection when c is empty). The watch is opened by
// Start and ends with its context.
func NewSource(store core.Watchable, c core.Collection) lifecycle.Source {
	return &watchSource{
		store:      store,
		collection: c,
		out:        make(chan lifecycle.Event),
	}
}

func (s *watchSource) Events() <-chan lifecycle.Event {
	return s.out
}

func (s *watchSource) Start(ctx context.Context) error {
	events, err := s.store.Watch(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to watch %q: %w", s.collection, err)
	}

	lifecycle.Go(ctx, func(ctx context.Context) error {
		defer close(s.out)
		for {
			select {
			case <-ctx.Done():
				return nil
			case e, ok := <-events:
				if !ok {
					return nil
				}
				// core.Event satisfies lifecycle.Event through String().
				select {
				case s.out <- e:
				case <-ctx.Done():
					return nil
				}
			}
		}
	})
	return nil
}
