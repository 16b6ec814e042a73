// Package typed maps Go entity types onto document collections.
//
// A Manager performs CRUD and subscriptions for one entity type, a Listener
// keeps a live, concurrency-safe view of a query, and a Repository narrows
// the Manager to an intention-revealing surface. All of them work against
// any core.Store adapter.
package typed

import (
	"github.com/aretw0/firekit/pkg/core"
)

// IDField is the JSON key carrying the document ID inside an entity.
// It is stripped from stored payloads and injected back on decode.
const IDField = "id"

// Entity is the contract for types stored as documents.
//
// Implementations are plain struct values with JSON tags. The ID is read
// through DocumentID and travels in the JSON field named by IDField, e.g.
//
//	type Expense struct {
//		ID     string  `json:"id,omitempty"`
//		Amount float64 `json:"amount"`
//	}
//
//	func (e Expense) DocumentID() string          { return e.ID }
//	func (Expense) Collection() core.Collection   { return "expenses" }
type Entity interface {
	// DocumentID returns the persisted ID, or "" before the first save.
	DocumentID() string
	// Collection names the collection holding every value of the type.
	Collection() core.Collection
}

// CollectionOf resolves the collection bound to T from its zero value.
func CollectionOf[T Entity]() core.Collection {
	var zero T
	return zero.Collection()
}
