package firestore

import (
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"

	"github.com/aretw0/firekit/pkg/adapters/query"
	"github.com/aretw0/firekit/pkg/core"
)

// translate converts a core.Filter into a Firestore entity filter.
// Operator names are shared with Firestore, so field filters map one to one.
func translate(f core.Filter) (firestore.EntityFilter, error) {
	switch v := f.(type) {
	case core.FieldFilter:
		return translateField(v)
	case *core.FieldFilter:
		return translateField(*v)
	case core.CompositeFilter:
		return translateComposite(v)
	case *core.CompositeFilter:
		return translateComposite(*v)
	default:
		return nil, fmt.Errorf("%w: unsupported filter type %T", core.ErrInvalidArgument, f)
	}
}

func translateField(f core.FieldFilter) (firestore.EntityFilter, error) {
	if f.Field == "" {
		return nil, errors.New("filter field is empty")
	}
	if !f.Op.Valid() {
		return nil, fmt.Errorf("%w: unsupported operator %q", core.ErrInvalidArgument, f.Op)
	}
	return firestore.PropertyFilter{
		Path:     f.Field,
		Operator: string(f.Op),
		Value:    query.Normalize(f.Value),
	}, nil
}

func translateComposite(f core.CompositeFilter) (firestore.EntityFilter, error) {
	if len(f.Filters) == 0 {
		return nil, errors.New("composite filter is empty")
	}
	parts := make([]firestore.EntityFilter, 0, len(f.Filters))
	for _, sub := range f.Filters {
		ef, err := translate(sub)
		if err != nil {
			return nil, err
		}
		parts = append(parts, ef)
	}
	if len(parts) == 1 {
		return parts[0], nil
	}

	switch f.Op {
	case core.CompositeAnd, "":
		return firestore.AndFilter{Filters: parts}, nil
	case core.CompositeOr:
		return firestore.OrFilter{Filters: parts}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported composite operator %q", core.ErrInvalidArgument, f.Op)
	}
}

// buildQuery applies f to the collection query. A nil filter selects everything.
func buildQuery(col *firestore.CollectionRef, f core.Filter) (firestore.Query, error) {
	q := col.Query
	if f == nil {
		return q, nil
	}
	ef, err := translate(f)
	if err != nil {
		return q, err
	}
	return q.WhereEntity(ef), nil
}
