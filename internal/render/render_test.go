package render

import (
	"strings"
	"testing"

	"moneytracker/internal/core"
	"moneytracker/internal/state"
)

func TestProgressBar(t *testing.T) {
	tests := []struct {
		ratio float64
		want  string
	}{
		{0, "[----]"},
		{0.5, "[##--]"},
		{1, "[####]"},
		{2, "[####]"},
		{-1, "[----]"},
	}
	for _, tt := range tests {
		if got := ProgressBar(tt.ratio, 4); got != tt.want {
			t.Fatalf("ProgressBar(%v) = %q, want %q", tt.ratio, got, tt.want)
		}
	}
}

func TestDashboard(t *testing.T) {
	s := state.State{
		Budgets: []core.Budget{{Category: "Food", Limit: core.Money{Cents: 20000}, Spent: core.Money{Cents: 5000}}},
		Goals:   []core.Goal{{Title: "Bike", TargetAmount: core.Money{Cents: 50000}, Priority: core.PriorityHigh}},
		Expenses: []core.Expense{
			{Amount: core.Money{Cents: 5000}},
		},
		Incomes:      []core.Income{{Amount: core.Money{Cents: 100000}}},
		ErrorMessage: "boom",
	}
	out := Dashboard(s)

	for _, want := range []string{"Budgets", "Food", "50.00 / 200.00", "Bike", "High", "Balance", "950.00", "Error: boom"} {
		if !strings.Contains(out, want) {
			t.Fatalf("dashboard missing %q:\n%s", want, out)
		}
	}
}

func TestDashboardLoadingAndEmpty(t *testing.T) {
	if out := Dashboard(state.State{IsLoading: true}); !strings.Contains(out, "Loading") {
		t.Fatalf("loading view = %q", out)
	}
	out := Dashboard(state.State{})
	if !strings.Contains(out, "No budgets yet.") || !strings.Contains(out, "No goals yet.") {
		t.Fatalf("empty view = %q", out)
	}
}
