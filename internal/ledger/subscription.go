package ledger

import (
	"context"
	"fmt"
	"sync"

	"moneytracker/internal/core"
	"moneytracker/internal/docstore"
	"moneytracker/internal/log"
)

// Subscription streams the full record set of one collection for one user.
// Only the newest set is buffered: a consumer that falls behind skips
// straight to the latest state.
type Subscription[T any] struct {
	ch   chan []T
	done chan struct{}
	reg  docstore.Registration
	once sync.Once

	mu     sync.Mutex
	closed bool
	err    error
}

// C yields record sets until the subscription is closed.
func (s *Subscription[T]) C() <-chan []T {
	return s.ch
}

// Err returns the most recent listen failure, cleared by the next good set.
func (s *Subscription[T]) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close releases the underlying listener and closes C. It is idempotent.
func (s *Subscription[T]) Close() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		reg := s.reg
		s.mu.Unlock()
		close(s.done)
		if reg != nil {
			reg.Remove()
		}
	})
}

func (s *Subscription[T]) deliver(items []T, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.err = err
	select {
	case <-s.ch:
	default:
	}
	s.ch <- items
}

func subscribe[T any](ctx context.Context, st *Store, collection, userID string) (*Subscription[T], error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}

	sub := &Subscription[T]{
		ch:   make(chan []T, 1),
		done: make(chan struct{}),
	}
	q := docstore.Query{Collection: collection, UserID: userID}

	reg, err := st.docs.Listen(ctx, q, func(docs []docstore.Document, err error) {
		if err == nil {
			var items []T
			items, err = decodeAll[T](docs)
			if err == nil {
				sub.deliver(items, nil)
				return
			}
		}
		st.logger.WarnContext(ctx, "Subscription read failed, emitting empty set",
			log.FieldUserID, userID,
			log.FieldCollection, collection,
			log.FieldError, err)
		sub.deliver([]T{}, err)
	})
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", collection, err)
	}

	sub.mu.Lock()
	sub.reg = reg
	sub.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.done:
		}
	}()
	return sub, nil
}

func (s *Store) SubscribeBudgets(ctx context.Context, userID string) (*Subscription[core.Budget], error) {
	return subscribe[core.Budget](ctx, s, core.CollectionBudgets, userID)
}

func (s *Store) SubscribeExpenses(ctx context.Context, userID string) (*Subscription[core.Expense], error) {
	return subscribe[core.Expense](ctx, s, core.CollectionExpenses, userID)
}

func (s *Store) SubscribeIncomes(ctx context.Context, userID string) (*Subscription[core.Income], error) {
	return subscribe[core.Income](ctx, s, core.CollectionIncomes, userID)
}

func (s *Store) SubscribeGoals(ctx context.Context, userID string) (*Subscription[core.Goal], error) {
	return subscribe[core.Goal](ctx, s, core.CollectionGoals, userID)
}
