// Package core holds the storage-agnostic types shared by the typed layer and
// every store adapter.
package core

import (
	"context"
	"fmt"
	"time"
)

// Collection names a partition of the document store.
type Collection string

// String implements fmt.Stringer.
func (c Collection) String() string {
	return string(c)
}

// Document is a single stored record, identified by its key within a collection.
// Data never contains the key itself.
type Document struct {
	ID   string
	Data map[string]any
}

// QuerySnapshot is one push from a collection subscription.
//
// Documents holds the complete matching set at the time of the event.
// A nil Documents slice together with a nil Err means the store delivered
// an event without payload.
type QuerySnapshot struct {
	Documents []Document
	Err       error
}

// DocumentSnapshot is one push from a single-document subscription.
// Exists is false when the document is missing (or was deleted).
type DocumentSnapshot struct {
	Document Document
	Exists   bool
	Err      error
}

// EventType represents the type of change observed in a store.
type EventType string

const (
	EventCreate EventType = "CREATE"
	EventModify EventType = "MODIFY"
	EventDelete EventType = "DELETE"
)

// Event describes a single change in a collection.
type Event struct {
	Type       EventType
	Collection Collection
	ID         string
	Timestamp  int64 // Unix timestamp
}

// String renders the event for logs and lifecycle sources.
func (e Event) String() string {
	return fmt.Sprintf("%s %s/%s", e.Type, e.Collection, e.ID)
}

// NewEvent stamps an event with the current time.
func NewEvent(t EventType, c Collection, id string) Event {
	return Event{Type: t, Collection: c, ID: id, Timestamp: time.Now().Unix()}
}

// DropEvent reports a document that was skipped because it could not be decoded.
type DropEvent struct {
	Collection Collection
	ID         string
	Err        error
}

type dropReporterKey struct{}

// WithDropReporter returns a context whose reads report every document the
// store had to skip, for example a file that no longer parses. Stores call
// ReportDrop for each such document instead of failing the whole read.
func WithDropReporter(ctx context.Context, fn func(DropEvent)) context.Context {
	return context.WithValue(ctx, dropReporterKey{}, fn)
}

// ReportDrop hands e to the reporter installed on ctx and reports whether
// there was one.
func ReportDrop(ctx context.Context, e DropEvent) bool {
	fn, ok := ctx.Value(dropReporterKey{}).(func(DropEvent))
	if !ok || fn == nil {
		return false
	}
	fn(e)
	return true
}
