package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"moneytracker/internal/docstore"
)

func doc(collection, id, user, key string) docstore.Document {
	return docstore.Document{Collection: collection, ID: id, UserID: user, Key: key, Data: []byte(`{}`)}
}

func TestSetGetFindInCreationOrder(t *testing.T) {
	ctx := context.Background()
	s := New()
	defer s.Close()

	for _, id := range []string{"c", "a", "b"} {
		if err := s.Set(ctx, doc("budgets", id, "u1", "Food")); err != nil {
			t.Fatalf("set %s: %v", id, err)
		}
	}
	if err := s.Set(ctx, doc("budgets", "x", "u2", "Food")); err != nil {
		t.Fatalf("set x: %v", err)
	}

	got, err := s.Find(ctx, docstore.Query{Collection: "budgets", UserID: "u1", Key: "Food"})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(got) != 3 || got[0].ID != "c" || got[1].ID != "a" || got[2].ID != "b" {
		t.Fatalf("unexpected order: %+v", got)
	}

	// Replacing keeps the original position.
	if err := s.Set(ctx, doc("budgets", "c", "u1", "Food")); err != nil {
		t.Fatalf("replace: %v", err)
	}
	got, _ = s.Find(ctx, docstore.Query{Collection: "budgets", UserID: "u1"})
	if got[0].ID != "c" {
		t.Fatalf("replace moved document: %+v", got)
	}

	if _, err := s.Get(ctx, "budgets", "missing"); !errors.Is(err, docstore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateRequiresExistingAndMovesIndex(t *testing.T) {
	ctx := context.Background()
	s := New()
	defer s.Close()

	if err := s.Update(ctx, doc("budgets", "a", "u1", "Food")); !errors.Is(err, docstore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	_ = s.Set(ctx, doc("budgets", "a", "u1", "Food"))
	if err := s.Update(ctx, doc("budgets", "a", "u1", "Rent")); err != nil {
		t.Fatalf("update: %v", err)
	}
	food, _ := s.Find(ctx, docstore.Query{Collection: "budgets", UserID: "u1", Key: "Food"})
	rent, _ := s.Find(ctx, docstore.Query{Collection: "budgets", UserID: "u1", Key: "Rent"})
	if len(food) != 0 || len(rent) != 1 {
		t.Fatalf("index not moved: food=%d rent=%d", len(food), len(rent))
	}
}

func TestTransactionIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	s := New()
	defer s.Close()
	_ = s.Set(ctx, doc("budgets", "b1", "u1", "Food"))

	boom := errors.New("boom")
	err := s.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		if err := tx.Set(ctx, doc("expenses", "e1", "u1", "Food")); err != nil {
			return err
		}
		if err := tx.Delete(ctx, "budgets", "b1"); err != nil {
			return err
		}
		// Reads see the transaction's own writes.
		if _, err := tx.Get(ctx, "expenses", "e1"); err != nil {
			t.Fatalf("read own write: %v", err)
		}
		if _, err := tx.Get(ctx, "budgets", "b1"); !errors.Is(err, docstore.ErrNotFound) {
			t.Fatalf("deleted doc still visible in tx: %v", err)
		}
		found, _ := tx.Find(ctx, docstore.Query{Collection: "expenses", UserID: "u1", Key: "Food"})
		if len(found) != 1 {
			t.Fatalf("staged doc missing from find: %d", len(found))
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if _, err := s.Get(ctx, "expenses", "e1"); !errors.Is(err, docstore.ErrNotFound) {
		t.Fatalf("aborted write applied: %v", err)
	}
	if _, err := s.Get(ctx, "budgets", "b1"); err != nil {
		t.Fatalf("aborted delete applied: %v", err)
	}
}

func TestListenDeliversInitialAndChanges(t *testing.T) {
	ctx := context.Background()
	s := New()
	defer s.Close()
	_ = s.Set(ctx, doc("expenses", "e1", "u1", "Food"))

	sets := make(chan []docstore.Document, 16)
	reg, err := s.Listen(ctx, docstore.Query{Collection: "expenses", UserID: "u1"}, func(docs []docstore.Document, err error) {
		if err != nil {
			t.Errorf("listen error: %v", err)
		}
		sets <- docs
	})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	if first := waitSet(t, sets); len(first) != 1 {
		t.Fatalf("expected initial set of 1, got %d", len(first))
	}

	// A different user's write must not leak into this listener's set.
	_ = s.Set(ctx, doc("expenses", "other", "u2", "Food"))
	_ = s.Set(ctx, doc("expenses", "e2", "u1", "Rent"))
	waitFor(t, sets, func(docs []docstore.Document) bool { return len(docs) == 2 })

	reg.Remove()
	reg.Remove()
	if n := s.Listeners(); n != 0 {
		t.Fatalf("expected listener released, %d left", n)
	}
}

func TestNotifyWakesListeners(t *testing.T) {
	ctx := context.Background()
	s := New()
	defer s.Close()

	sets := make(chan []docstore.Document, 16)
	reg, _ := s.Listen(ctx, docstore.Query{Collection: "goals", UserID: "u1"}, func(docs []docstore.Document, _ error) {
		sets <- docs
	})
	defer reg.Remove()
	waitSet(t, sets)

	s.Notify(docstore.Change{Collection: "goals", UserID: "u1"})
	waitSet(t, sets)
}

func TestClosedStoreRejectsCalls(t *testing.T) {
	s := New()
	_ = s.Close()
	if err := s.Set(context.Background(), doc("budgets", "a", "u1", "")); !errors.Is(err, docstore.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if _, err := s.Listen(context.Background(), docstore.Query{Collection: "budgets"}, func([]docstore.Document, error) {}); !errors.Is(err, docstore.ErrClosed) {
		t.Fatalf("expected ErrClosed from listen, got %v", err)
	}
}

func waitSet(t *testing.T, ch <-chan []docstore.Document) []docstore.Document {
	t.Helper()
	select {
	case docs := <-ch:
		return docs
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for listener delivery")
	}
	return nil
}

func waitFor(t *testing.T, ch <-chan []docstore.Document, ok func([]docstore.Document) bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case docs := <-ch:
			if ok(docs) {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for expected set")
		}
	}
}

func TestFindOrdersByCreatedAt(t *testing.T) {
	ctx := context.Background()
	s := New()
	defer s.Close()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"late", "early", "middle"} {
		d := doc("budgets", id, "u1", "Food")
		d.CreatedAt = base.Add([]time.Duration{3, 1, 2}[i] * time.Hour)
		if err := s.Set(ctx, d); err != nil {
			t.Fatalf("set %s: %v", id, err)
		}
	}

	got, err := s.Find(ctx, docstore.Query{Collection: "budgets", UserID: "u1", Key: "Food"})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(got) != 3 || got[0].ID != "early" || got[1].ID != "middle" || got[2].ID != "late" {
		t.Fatalf("unexpected order: %+v", got)
	}
}
