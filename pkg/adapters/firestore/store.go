// Package firestore implements core.Store on Google Cloud Firestore.
//
// Documents map one to one onto Firestore documents of a top-level
// collection; filters are translated to Firestore queries and subscriptions
// use Firestore's realtime snapshot listeners. Setting
// FIRESTORE_EMULATOR_HOST points the client at the local emulator.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"cloud.google.com/go/firestore"
	"github.com/aretw0/introspection"
	"github.com/aretw0/lifecycle"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/aretw0/firekit/pkg/adapters/query"
	"github.com/aretw0/firekit/pkg/core"
)

// Config holds the configuration for the Firestore store.
type Config struct {
	ProjectID       string
	DatabaseID      string // empty selects the default database
	CredentialsFile string // service account JSON; empty uses application default credentials
	Endpoint        string
	Logger          *slog.Logger
	EventBuffer     int
}

// Store is a Firestore-backed core.Store.
type Store struct {
	client      *firestore.Client
	config      Config
	logger      *slog.Logger
	eventBuffer int
	owned       bool // client was created by New and is closed by Close
}

var (
	_ core.Store            = (*Store)(nil)
	_ core.CollectionLister = (*Store)(nil)
	_ core.Watchable        = (*Store)(nil)
	_ core.Closer           = (*Store)(nil)
)

// New connects to Firestore.
func New(ctx context.Context, config Config) (*Store, error) {
	if config.ProjectID == "" {
		return nil, errors.New("firestore store: project id is required")
	}

	var opts []option.ClientOption
	if config.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(config.CredentialsFile))
	}
	if config.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(config.Endpoint))
	}

	databaseID := config.DatabaseID
	if databaseID == "" {
		databaseID = firestore.DefaultDatabaseID
	}
	client, err := firestore.NewClientWithDatabase(ctx, config.ProjectID, databaseID, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}

	s := NewWithClient(client, config)
	s.owned = true
	return s, nil
}

// NewWithClient wraps an existing client. Close leaves it open.
func NewWithClient(client *firestore.Client, config Config) *Store {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	buffer := config.EventBuffer
	if buffer <= 0 {
		buffer = 100
	}
	return &Store{
		client:      client,
		config:      config,
		logger:      logger.With("adapter", "firestore"),
		eventBuffer: buffer,
	}
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

func toDocument(snap *firestore.DocumentSnapshot) core.Document {
	data, _ := query.Normalize(snap.Data()).(map[string]any)
	if data == nil {
		data = map[string]any{}
	}
	return core.Document{ID: snap.Ref.ID, Data: data}
}

// GetDocument fetches one document.
func (s *Store) GetDocument(ctx context.Context, c core.Collection, id string) (core.Document, error) {
	snap, err := s.client.Collection(string(c)).Doc(id).Get(ctx)
	if isNotFound(err) {
		return core.Document{}, fmt.Errorf("%w: %s/%s", core.ErrNotFound, c, id)
	}
	if err != nil {
		return core.Document{}, fmt.Errorf("getting %s/%s: %w", c, id, err)
	}
	return toDocument(snap), nil
}

// SetDocument writes a document; with merge, only the given fields change.
func (s *Store) SetDocument(ctx context.Context, c core.Collection, id string, data map[string]any, merge bool) error {
	if id == "" {
		return fmt.Errorf("%w: document has no ID", core.ErrInvalidArgument)
	}
	var opts []firestore.SetOption
	if merge {
		opts = append(opts, firestore.MergeAll)
	}
	payload, _ := query.Normalize(data).(map[string]any)
	if payload == nil {
		payload = map[string]any{}
	}
	if _, err := s.client.Collection(string(c)).Doc(id).Set(ctx, payload, opts...); err != nil {
		return fmt.Errorf("setting %s/%s: %w", c, id, err)
	}
	s.logger.Debug("document written", "collection", c, "id", id, "merge", merge)
	return nil
}

// AllocateID returns a Firestore auto-ID. No request is made.
func (s *Store) AllocateID(c core.Collection) string {
	return s.client.Collection(string(c)).NewDoc().ID
}

// QueryDocuments runs a filtered query.
func (s *Store) QueryDocuments(ctx context.Context, c core.Collection, f core.Filter) ([]core.Document, error) {
	q, err := buildQuery(s.client.Collection(string(c)), f)
	if err != nil {
		return nil, err
	}
	snaps, err := q.Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", c, err)
	}

	docs := make([]core.Document, 0, len(snaps))
	for _, snap := range snaps {
		docs = append(docs, toDocument(snap))
	}
	query.SortByID(docs)
	return docs, nil
}

// DeleteDocument removes a document. Firestore treats a missing document as success.
func (s *Store) DeleteDocument(ctx context.Context, c core.Collection, id string) error {
	if _, err := s.client.Collection(string(c)).Doc(id).Delete(ctx); err != nil {
		return fmt.Errorf("deleting %s/%s: %w", c, id, err)
	}
	return nil
}

// Subscribe streams the matching set on every change using a realtime listener.
// A listener error is delivered once and ends the stream.
func (s *Store) Subscribe(ctx context.Context, c core.Collection, f core.Filter) (<-chan core.QuerySnapshot, error) {
	q, err := buildQuery(s.client.Collection(string(c)), f)
	if err != nil {
		return nil, err
	}
	it := q.Snapshots(ctx)

	out := make(chan core.QuerySnapshot)
	lifecycle.Go(ctx, func(ctx context.Context) error {
		defer close(out)
		defer it.Stop()
		for {
			qs, err := it.Next()
			if ctx.Err() != nil {
				return nil
			}
			snap := core.QuerySnapshot{Err: err}
			if err == nil {
				snap = s.querySnapshot(qs)
			}
			select {
			case out <- snap:
			case <-ctx.Done():
				return nil
			}
			if err != nil {
				return nil
			}
		}
	}, lifecycle.WithErrorHandler(func(err error) {
		s.logger.Error("query listener failed", "collection", c, "error", err)
	}))
	return out, nil
}

func (s *Store) querySnapshot(qs *firestore.QuerySnapshot) core.QuerySnapshot {
	snaps, err := qs.Documents.GetAll()
	if err != nil {
		return core.QuerySnapshot{Err: err}
	}
	docs := make([]core.Document, 0, len(snaps))
	for _, snap := range snaps {
		docs = append(docs, toDocument(snap))
	}
	query.SortByID(docs)
	return core.QuerySnapshot{Documents: docs}
}

// SubscribeDocument streams one document on every change.
func (s *Store) SubscribeDocument(ctx context.Context, c core.Collection, id string) (<-chan core.DocumentSnapshot, error) {
	it := s.client.Collection(string(c)).Doc(id).Snapshots(ctx)

	out := make(chan core.DocumentSnapshot)
	lifecycle.Go(ctx, func(ctx context.Context) error {
		defer close(out)
		defer it.Stop()
		for {
			ds, err := it.Next()
			if ctx.Err() != nil {
				return nil
			}
			snap := core.DocumentSnapshot{Document: core.Document{ID: id}}
			switch {
			case err != nil && !isNotFound(err):
				snap.Err = err
			case err == nil && ds.Exists():
				snap.Document = toDocument(ds)
				snap.Exists = true
			}
			select {
			case out <- snap:
			case <-ctx.Done():
				return nil
			}
			if snap.Err != nil {
				return nil
			}
		}
	}, lifecycle.WithErrorHandler(func(err error) {
		s.logger.Error("document listener failed", "collection", c, "id", id, "error", err)
	}))
	return out, nil
}

// Watch streams change events for c. The documents present when the
// listener attaches are not reported.
func (s *Store) Watch(ctx context.Context, c core.Collection) (<-chan core.Event, error) {
	if c == "" {
		return nil, errors.New("firestore watch requires a collection")
	}
	it := s.client.Collection(string(c)).Snapshots(ctx)

	out := make(chan core.Event, s.eventBuffer)
	lifecycle.Go(ctx, func(ctx context.Context) error {
		defer close(out)
		defer it.Stop()
		first := true
		for {
			qs, err := it.Next()
			if ctx.Err() != nil {
				return nil
			}
			if err != nil {
				return err
			}
			if first {
				first = false
				continue
			}
			for _, change := range qs.Changes {
				e := core.NewEvent(changeType(change.Kind), c, change.Doc.Ref.ID)
				select {
				case out <- e:
				case <-ctx.Done():
					return nil
				}
			}
		}
	}, lifecycle.WithErrorHandler(func(err error) {
		s.logger.Error("watch listener failed", "collection", c, "error", err)
	}))
	return out, nil
}

func changeType(kind firestore.DocumentChangeKind) core.EventType {
	switch kind {
	case firestore.DocumentAdded:
		return core.EventCreate
	case firestore.DocumentRemoved:
		return core.EventDelete
	default:
		return core.EventModify
	}
}

// Collections lists the top-level collections.
func (s *Store) Collections(ctx context.Context) ([]core.Collection, error) {
	it := s.client.Collections(ctx)
	var out []core.Collection
	for {
		ref, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("listing collections: %w", err)
		}
		out = append(out, core.Collection(ref.ID))
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// Close closes the client when the store created it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.client.Close()
}

// StoreState exposes internal state for observability.
type StoreState struct {
	ProjectID  string `json:"project_id"`
	DatabaseID string `json:"database_id"`
	Endpoint   string `json:"endpoint,omitempty"`
}

// State implements introspection.Introspectable.
func (s *Store) State() any {
	db := s.config.DatabaseID
	if db == "" {
		db = firestore.DefaultDatabaseID
	}
	return StoreState{ProjectID: s.config.ProjectID, DatabaseID: db, Endpoint: s.config.Endpoint}
}

// ComponentType implements introspection.Component.
func (s *Store) ComponentType() string {
	return "firestore-store"
}

var _ introspection.Introspectable = (*Store)(nil)
var _ introspection.Component = (*Store)(nil)
