// Package ledger is the per-user store of budgets, expenses, incomes and
// goals. It keeps each budget's spent total in step with expense writes and
// exposes live subscriptions over every collection.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"moneytracker/internal/core"
	"moneytracker/internal/docstore"
	"moneytracker/internal/log"
)

type Store struct {
	docs   docstore.Store
	now    func() time.Time
	logger *log.Logger
}

type Option func(*Store)

// WithClock replaces the time source used for createdAt/updatedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithLogger(l *log.Logger) Option {
	return func(s *Store) { s.logger = l.WithComponent(log.ComponentLedger) }
}

func New(docs docstore.Store, opts ...Option) *Store {
	s := &Store{
		docs:   docs,
		now:    func() time.Time { return time.Now().UTC() },
		logger: log.New(log.DefaultConfig()).WithComponent(log.ComponentLedger),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func requireUser(userID string) error {
	if userID == "" {
		return core.ErrMissingUser
	}
	return nil
}

func encode(collection, id, userID, key string, v any, created, updated time.Time) (docstore.Document, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return docstore.Document{}, fmt.Errorf("encode %s %s: %w", collection, id, err)
	}
	return docstore.Document{
		Collection: collection,
		ID:         id,
		UserID:     userID,
		Key:        key,
		Data:       data,
		CreatedAt:  created,
		UpdatedAt:  updated,
	}, nil
}

func decode[T any](d docstore.Document) (T, error) {
	var v T
	if err := json.Unmarshal(d.Data, &v); err != nil {
		return v, fmt.Errorf("decode %s %s: %w", d.Collection, d.ID, err)
	}
	return v, nil
}

func decodeAll[T any](docs []docstore.Document) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, d := range docs {
		v, err := decode[T](d)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// load reads one record owned by userID. Missing records and records of
// other users both yield core.ErrNotFound.
func load[T any](ctx context.Context, r docstore.Reader, collection, userID, id string) (T, error) {
	var zero T
	d, err := r.Get(ctx, collection, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return zero, core.ErrNotFound
	}
	if err != nil {
		return zero, fmt.Errorf("get %s %s: %w", collection, id, err)
	}
	if d.UserID != userID {
		return zero, core.ErrNotFound
	}
	return decode[T](d)
}

func list[T any](ctx context.Context, docs docstore.Store, collection, userID string) ([]T, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	found, err := docs.Find(ctx, docstore.Query{Collection: collection, UserID: userID})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	return decodeAll[T](found)
}

func get[T any](ctx context.Context, docs docstore.Store, collection, userID, id string) (T, error) {
	if err := requireUser(userID); err != nil {
		var zero T
		return zero, err
	}
	return load[T](ctx, docs, collection, userID, id)
}

// remove deletes a record of userID. Absent records are not an error.
func (s *Store) remove(ctx context.Context, collection, userID, id string) error {
	if err := requireUser(userID); err != nil {
		return err
	}
	err := s.docs.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		d, err := tx.Get(ctx, collection, id)
		if errors.Is(err, docstore.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if d.UserID != userID {
			return nil
		}
		return tx.Delete(ctx, collection, id)
	})
	if err != nil {
		return fmt.Errorf("delete %s %s: %w", collection, id, err)
	}
	s.logger.InfoContext(ctx, "Record deleted",
		log.FieldUserID, userID,
		log.FieldCollection, collection,
		log.FieldDocumentID, id)
	return nil
}

// notFoundOr passes core.ErrNotFound through and wraps anything else.
func notFoundOr(err error, format string, args ...any) error {
	if errors.Is(err, core.ErrNotFound) || errors.Is(err, docstore.ErrNotFound) {
		return core.ErrNotFound
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}
