package core

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	// ErrNotFound is returned by stores when a document does not exist.
	ErrNotFound = errors.New("document not found")

	// ErrTransport marks failures reported by the underlying store client.
	ErrTransport = errors.New("store transport failure")

	// ErrPreconditionSkipped is returned in strict mode by Update and Delete
	// when the entity has no document ID.
	ErrPreconditionSkipped = errors.New("entity has no document id")

	// ErrEmptyResult is the message published by listeners when an event
	// carries neither an error nor any documents.
	ErrEmptyResult = errors.New("no documents were found")

	// ErrReadOnly is returned by stores opened in read-only mode.
	ErrReadOnly = errors.New("store is in read-only mode")

	// ErrInvalidArgument marks requests a store rejects before touching
	// storage: bad collection or document names, malformed filters.
	ErrInvalidArgument = errors.New("invalid argument")
)

// TransportError wraps a store failure. Both ErrTransport and the original
// error stay reachable through errors.Is.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap exposes the original store error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is reports ErrTransport membership.
func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// Transport wraps err as a TransportError. It returns nil for a nil error and
// leaves errors that already carry ErrTransport untouched.
func Transport(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrTransport) {
		return err
	}
	return &TransportError{Op: op, Err: err}
}

// DecodeError reports a stored document whose shape does not match the target type.
type DecodeError struct {
	Collection Collection
	ID         string
	Err        error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s/%s: %v", e.Collection, e.ID, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// EncodeError reports an entity that could not be converted to a document.
type EncodeError struct {
	Collection Collection
	Err        error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode %s: %v", e.Collection, e.Err)
}

func (e *EncodeError) Unwrap() error {
	return e.Err
}
