// Package docstore defines the document store the ledger runs on: keyed
// documents grouped in collections, equality queries on the owning user and
// a secondary index key, multi-document transactions and realtime listeners.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("document not found")
	ErrClosed   = errors.New("document store closed")
)

// Document is one stored record. Key feeds the (Collection, UserID, Key)
// secondary index; Data is the record body.
type Document struct {
	Collection string
	ID         string
	UserID     string
	Key        string
	Data       json.RawMessage
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Query selects documents of one collection by equality. Empty UserID or
// Key match any value.
type Query struct {
	Collection string
	UserID     string
	Key        string
}

// Matches reports whether d satisfies the query.
func (q Query) Matches(d Document) bool {
	if d.Collection != q.Collection {
		return false
	}
	if q.UserID != "" && d.UserID != q.UserID {
		return false
	}
	if q.Key != "" && d.Key != q.Key {
		return false
	}
	return true
}

// Reader is the read side shared by Store and Tx.
type Reader interface {
	Get(ctx context.Context, collection, id string) (Document, error)
	// Find returns matching documents in creation order.
	Find(ctx context.Context, q Query) ([]Document, error)
}

// Writer is the write side shared by Store and Tx.
type Writer interface {
	// Set creates or replaces a document.
	Set(ctx context.Context, d Document) error
	// Update replaces an existing document and fails with ErrNotFound otherwise.
	Update(ctx context.Context, d Document) error
	// Delete removes a document. Deleting a missing document is not an error.
	Delete(ctx context.Context, collection, id string) error
}

// Tx is a transaction scope. Reads observe the transaction's own writes.
type Tx interface {
	Reader
	Writer
}

// TxFunc runs inside RunTransaction. Returning an error aborts every write.
type TxFunc func(ctx context.Context, tx Tx) error

// ListenFunc receives the full matching set on every change, or an error.
type ListenFunc func(docs []Document, err error)

// Registration releases a listener. Remove is safe to call more than once.
type Registration interface {
	Remove()
}

type Store interface {
	Reader
	Writer

	// NewID returns a fresh store-generated document id.
	NewID() string

	// RunTransaction applies every write made by fn atomically, or none.
	RunTransaction(ctx context.Context, fn TxFunc) error

	// Listen delivers the current matching set, then the full set again
	// after every committed change to the query's collection and user.
	Listen(ctx context.Context, q Query, fn ListenFunc) (Registration, error)

	// Notify injects a change observed elsewhere (another process) so local
	// listeners re-read.
	Notify(c Change)

	Close() error
}

// NewID returns a random uuid string. Both adapters use it.
func NewID() string {
	return uuid.NewString()
}
