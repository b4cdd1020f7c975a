package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"moneytracker/internal/core"
)

func TestSubscriptionEmitsCurrentSetThenChanges(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	mustBudget(t, s, "u1", "Food", 100)

	sub, err := s.SubscribeBudgets(ctx, "u1")
	if err != nil {
		t.Fatalf("SubscribeBudgets: %v", err)
	}
	defer sub.Close()

	if got := next(t, sub); len(got) != 1 || got[0].Category != "Food" {
		t.Fatalf("initial set = %+v", got)
	}

	mustBudget(t, s, "u1", "Travel", 100)
	eventually(t, sub, func(b []core.Budget) bool { return len(b) == 2 })
}

func TestSubscriptionConvergesToPersistedSet(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	sub, err := s.SubscribeExpenses(ctx, "u1")
	if err != nil {
		t.Fatalf("SubscribeExpenses: %v", err)
	}
	defer sub.Close()

	var ids []string
	for i := 0; i < 6; i++ {
		e, err := s.CreateExpense(ctx, "u1", core.Expense{Category: "Food", Amount: euros(float64(i + 1))})
		if err != nil {
			t.Fatalf("CreateExpense: %v", err)
		}
		ids = append(ids, e.ID)
	}
	for _, id := range ids[:2] {
		if err := s.DeleteExpense(ctx, "u1", id); err != nil {
			t.Fatalf("DeleteExpense: %v", err)
		}
	}
	if _, err := s.CreateExpense(ctx, "u2", core.Expense{Category: "Food", Amount: euros(1)}); err != nil {
		t.Fatalf("CreateExpense other user: %v", err)
	}

	persisted, err := s.ListExpenses(ctx, "u1")
	if err != nil {
		t.Fatalf("ListExpenses: %v", err)
	}
	got := eventually(t, sub, func(e []core.Expense) bool { return sameIDs(e, persisted) })
	for _, e := range got {
		if e.UserID != "u1" {
			t.Fatalf("foreign record in subscription: %+v", e)
		}
	}
}

func TestSubscriptionKeepsOnlyLatestSet(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	sub, err := s.SubscribeIncomes(ctx, "u1")
	if err != nil {
		t.Fatalf("SubscribeIncomes: %v", err)
	}
	defer sub.Close()

	for i := 0; i < 5; i++ {
		if _, err := s.CreateIncome(ctx, "u1", core.Income{Amount: euros(10)}); err != nil {
			t.Fatalf("CreateIncome: %v", err)
		}
	}
	eventually(t, sub, func(in []core.Income) bool { return len(in) == 5 })

	// Anything still buffered must be at least as new as what was read.
	select {
	case in := <-sub.C():
		if len(in) != 5 {
			t.Fatalf("stale set of %d delivered after newer one", len(in))
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubscriptionErrorEmitsEmptySet(t *testing.T) {
	s, docs := newTestStore(t)
	ctx := context.Background()
	mustBudget(t, s, "u1", "Food", 100)

	sub, err := s.SubscribeBudgets(ctx, "u1")
	if err != nil {
		t.Fatalf("SubscribeBudgets: %v", err)
	}
	defer sub.Close()
	next(t, sub)

	docs.setListenErr(errBoom)
	mustBudget(t, s, "u1", "Travel", 100)
	eventually(t, sub, func(b []core.Budget) bool { return len(b) == 0 })
	if !errors.Is(sub.Err(), errBoom) {
		t.Fatalf("Err() = %v, want errBoom", sub.Err())
	}

	docs.setListenErr(nil)
	mustBudget(t, s, "u1", "Rent", 100)
	eventually(t, sub, func(b []core.Budget) bool { return len(b) == 3 })
	if err := sub.Err(); err != nil {
		t.Fatalf("Err() = %v after recovery", err)
	}
}

func TestSubscriptionClose(t *testing.T) {
	s, docs := newTestStore(t)

	sub, err := s.SubscribeGoals(context.Background(), "u1")
	if err != nil {
		t.Fatalf("SubscribeGoals: %v", err)
	}
	next(t, sub)

	sub.Close()
	sub.Close()

	if _, ok := <-sub.C(); ok {
		t.Fatal("channel still open after Close")
	}
	if n := docs.Listeners(); n != 0 {
		t.Fatalf("listeners = %d, want 0", n)
	}

	// Writes after close must not panic on the closed channel.
	if _, err := s.CreateGoal(context.Background(), "u1", core.Goal{Title: "Car", TargetAmount: euros(10)}); err != nil {
		t.Fatalf("CreateGoal: %v", err)
	}
}

func TestSubscriptionClosesOnContextCancel(t *testing.T) {
	s, docs := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())

	sub, err := s.SubscribeBudgets(ctx, "u1")
	if err != nil {
		t.Fatalf("SubscribeBudgets: %v", err)
	}
	cancel()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-sub.C():
			if !ok {
				if n := docs.Listeners(); n != 0 {
					t.Fatalf("listeners = %d, want 0", n)
				}
				return
			}
		case <-deadline:
			t.Fatal("subscription not closed after cancel")
		}
	}
}

func TestSubscribeOnClosedStore(t *testing.T) {
	s, docs := newTestStore(t)
	docs.Close()
	if _, err := s.SubscribeBudgets(context.Background(), "u1"); err == nil {
		t.Fatal("expected error subscribing to a closed store")
	}
}

func sameIDs(got []core.Expense, want []core.Expense) bool {
	if len(got) != len(want) {
		return false
	}
	seen := make(map[string]bool, len(want))
	for _, e := range want {
		seen[e.ID] = true
	}
	for _, e := range got {
		if !seen[e.ID] {
			return false
		}
	}
	return true
}
