package core

import (
	"math"
	"testing"
)

func TestValidateInput(t *testing.T) {
	cases := []struct {
		title  string
		amount float64
		ok     bool
	}{
		{"Lunch", 15.0, true},
		{"", 15.0, false},
		{"   ", 15.0, false},
		{"Lunch", -5.0, false},
		{"Lunch", 0.0, false},
		{"Lunch", 0.01, true},
		{"Lunch", 0.005, true},
		{"Lunch", 0.001, false},
		{"Lunch", math.Inf(1), false},
		{"Lunch", math.NaN(), false},
		{"Lunch", 1e20, false},
	}
	for i, tc := range cases {
		if got := ValidateInput(tc.title, tc.amount); got != tc.ok {
			t.Fatalf("case %d (%q, %v): expected %v, got %v", i, tc.title, tc.amount, tc.ok, got)
		}
	}
}

func TestExpenseValidate(t *testing.T) {
	good := Expense{Amount: Money{Cents: 100}, Category: "Food"}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	bads := []Expense{
		{Amount: Money{Cents: 0}, Category: "Food"},
		{Amount: Money{Cents: -1}, Category: "Food"},
		{Amount: Money{Cents: 100}, Category: " "},
	}
	for i, e := range bads {
		if err := e.Validate(); err == nil || !IsValidation(err) {
			t.Fatalf("case %d expected validation error, got %v", i, err)
		}
	}
}

func TestBudgetGoalIncomeValidate(t *testing.T) {
	if err := (Budget{Category: "Food", Limit: Money{Cents: 1}}).Validate(); err != nil {
		t.Fatalf("budget: %v", err)
	}
	if err := (Budget{Category: "", Limit: Money{Cents: 1}}).Validate(); err != ErrEmptyCategory {
		t.Fatalf("budget without category: %v", err)
	}
	if err := (Budget{Category: "Food"}).Validate(); err != ErrInvalidAmount {
		t.Fatalf("budget without limit: %v", err)
	}
	if err := (Goal{Title: "Bike", TargetAmount: Money{Cents: 1}}).Validate(); err != nil {
		t.Fatalf("goal: %v", err)
	}
	if err := (Goal{Title: "Bike", TargetAmount: Money{Cents: 1}, Priority: "Urgent"}).Validate(); err != ErrInvalidPriority {
		t.Fatalf("goal with bad priority: %v", err)
	}
	if err := (Goal{TargetAmount: Money{Cents: 1}}).Validate(); err != ErrEmptyTitle {
		t.Fatalf("goal without title: %v", err)
	}
	if err := (Income{}).Validate(); err != ErrInvalidAmount {
		t.Fatalf("income without amount: %v", err)
	}
}

func TestParsePriority(t *testing.T) {
	cases := map[string]Priority{"": PriorityMedium, "low": PriorityLow, "HIGH": PriorityHigh, " Medium ": PriorityMedium}
	for in, want := range cases {
		got, err := ParsePriority(in)
		if err != nil || got != want {
			t.Fatalf("%q: expected %s, got %s (err=%v)", in, want, got, err)
		}
	}
	if _, err := ParsePriority("urgent"); err != ErrInvalidPriority {
		t.Fatalf("expected ErrInvalidPriority, got %v", err)
	}
}

func TestProgressIsClamped(t *testing.T) {
	b := Budget{Limit: Money{Cents: 100}, Spent: Money{Cents: 250}}
	if b.Progress() != 1 {
		t.Fatalf("expected 1, got %v", b.Progress())
	}
	g := Goal{TargetAmount: Money{Cents: 400}, CurrentAmount: Money{Cents: 100}}
	if g.Progress() != 0.25 {
		t.Fatalf("expected 0.25, got %v", g.Progress())
	}
	if (Goal{}).Progress() != 0 {
		t.Fatalf("zero target should give zero progress")
	}
}
