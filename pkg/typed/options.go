package typed

import (
	"log/slog"

	"github.com/aretw0/firekit/pkg/core"
)

// settings holds the configuration shared by managers, listeners and repositories.
type settings struct {
	logger     *slog.Logger
	collection core.Collection
	onDrop     func(core.DropEvent)
	strictIDs  bool
}

// Option configures a Manager (and everything built on top of it).
type Option func(*settings)

func defaultSettings() *settings {
	return &settings{
		logger: slog.New(slog.DiscardHandler),
	}
}

func applyOptions(opts []Option) *settings {
	s := defaultSettings()
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithLogger sets the logger. A nil logger keeps logging disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithCollection overrides the collection declared by the entity type.
func WithCollection(c core.Collection) Option {
	return func(s *settings) {
		s.collection = c
	}
}

// WithDropHandler registers a callback invoked for every document skipped
// by GetAll, GetAllFiltered or a multi-document listener because it could
// not be decoded.
func WithDropHandler(fn func(core.DropEvent)) Option {
	return func(s *settings) {
		s.onDrop = fn
	}
}

// WithStrictIDs makes Update and Delete return core.ErrPreconditionSkipped
// for entities without an ID instead of silently doing nothing.
func WithStrictIDs(strict bool) Option {
	return func(s *settings) {
		s.strictIDs = strict
	}
}
