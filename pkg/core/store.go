package core

import "context"

// Store is the document store client the typed layer is written against.
// Implementations must be safe for concurrent use.
type Store interface {
	// GetDocument fetches one document. It returns ErrNotFound when absent.
	GetDocument(ctx context.Context, c Collection, id string) (Document, error)

	// SetDocument writes data under id. With merge, fields missing from data
	// are preserved (nested maps are merged); without merge the document is replaced.
	SetDocument(ctx context.Context, c Collection, id string, data map[string]any, merge bool) error

	// AllocateID reserves a fresh document key in the collection.
	AllocateID(c Collection) string

	// QueryDocuments returns every document matching f. A nil filter matches all.
	QueryDocuments(ctx context.Context, c Collection, f Filter) ([]Document, error)

	// DeleteDocument removes a document. Deleting a missing document is not an error.
	DeleteDocument(ctx context.Context, c Collection, id string) error

	// Subscribe streams the full matching set on every change, starting with
	// the current state. The channel is closed once ctx is done.
	Subscribe(ctx context.Context, c Collection, f Filter) (<-chan QuerySnapshot, error)

	// SubscribeDocument streams one document on every change, starting with
	// its current state. The channel is closed once ctx is done.
	SubscribeDocument(ctx context.Context, c Collection, id string) (<-chan DocumentSnapshot, error)
}

// CollectionLister is implemented by stores that can enumerate their collections.
type CollectionLister interface {
	Collections(ctx context.Context) ([]Collection, error)
}

// Watchable is implemented by stores that expose raw change events.
type Watchable interface {
	Watch(ctx context.Context, c Collection) (<-chan Event, error)
}

// Closer is implemented by stores holding external resources.
type Closer interface {
	Close() error
}
