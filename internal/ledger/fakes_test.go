package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"moneytracker/internal/docstore"
	"moneytracker/internal/docstore/memory"
	"moneytracker/internal/log"
)

var errBoom = errors.New("boom")

// faultyStore wraps the memory store and injects failures on demand.
type faultyStore struct {
	*memory.Store

	mu         sync.Mutex
	failUpdate string // collection whose transactional Update fails
	listenErr  error
}

func (f *faultyStore) setFailUpdate(collection string) {
	f.mu.Lock()
	f.failUpdate = collection
	f.mu.Unlock()
}

func (f *faultyStore) setListenErr(err error) {
	f.mu.Lock()
	f.listenErr = err
	f.mu.Unlock()
}

func (f *faultyStore) RunTransaction(ctx context.Context, fn docstore.TxFunc) error {
	f.mu.Lock()
	fail := f.failUpdate
	f.mu.Unlock()
	return f.Store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		return fn(ctx, &faultyTx{Tx: tx, failUpdate: fail})
	})
}

func (f *faultyStore) Listen(ctx context.Context, q docstore.Query, fn docstore.ListenFunc) (docstore.Registration, error) {
	return f.Store.Listen(ctx, q, func(docs []docstore.Document, err error) {
		f.mu.Lock()
		injected := f.listenErr
		f.mu.Unlock()
		if injected != nil {
			fn(nil, injected)
			return
		}
		fn(docs, err)
	})
}

type faultyTx struct {
	docstore.Tx
	failUpdate string
}

func (t *faultyTx) Update(ctx context.Context, d docstore.Document) error {
	if d.Collection == t.failUpdate {
		return errBoom
	}
	return t.Tx.Update(ctx, d)
}

// noCallStore panics on any use, proving an operation never reached the store.
type noCallStore struct {
	docstore.Store
}

func newTestStore(t *testing.T) (*Store, *faultyStore) {
	t.Helper()
	docs := &faultyStore{Store: memory.New()}
	t.Cleanup(func() { docs.Close() })

	clock := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	now := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(time.Second)
		return clock
	}
	return New(docs, WithClock(now), WithLogger(log.Discard())), docs
}

// next waits for the next emission on sub.
func next[T any](t *testing.T, sub *Subscription[T]) []T {
	t.Helper()
	select {
	case items, ok := <-sub.C():
		if !ok {
			t.Fatal("subscription closed")
		}
		return items
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for emission")
	}
	return nil
}

// eventually reads emissions until cond holds.
func eventually[T any](t *testing.T, sub *Subscription[T], cond func([]T) bool) []T {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case items, ok := <-sub.C():
			if !ok {
				t.Fatal("subscription closed")
			}
			if cond(items) {
				return items
			}
		case <-deadline:
			t.Fatal("condition not reached")
		}
	}
}
