// Package render draws the ledger view state as terminal text.
package render

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"

	"moneytracker/internal/core"
	"moneytracker/internal/state"
)

const barWidth = 20

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#89b4fa"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#7f849c"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#f38ba8"))
	boxStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

// Dashboard renders every section of s.
func Dashboard(s state.State) string {
	if s.IsLoading {
		return mutedStyle.Render("Loading...")
	}

	sections := []string{
		Budgets(s.Budgets),
		Goals(s.Goals),
		Totals(s.Expenses, s.Incomes),
	}
	if s.ErrorMessage != "" {
		sections = append(sections, errorStyle.Render("Error: "+s.ErrorMessage))
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func Budgets(budgets []core.Budget) string {
	lines := []string{headerStyle.Render("Budgets")}
	if len(budgets) == 0 {
		lines = append(lines, mutedStyle.Render("No budgets yet."))
	}
	for _, b := range budgets {
		bar := ProgressBar(b.Progress(), barWidth)
		amount := fmt.Sprintf("%s / %s", b.Spent, b.Limit)
		if b.Spent.Cents > b.Limit.Cents {
			amount = errorStyle.Render(amount)
		}
		name := lipgloss.NewStyle().Foreground(lipgloss.Color(colorOr(b.Color, core.DefaultBudgetColor))).Render(b.Category)
		lines = append(lines, fmt.Sprintf("%-16s %s %s", name, bar, amount))
	}
	return boxStyle.Render(strings.Join(lines, "\n"))
}

func Goals(goals []core.Goal) string {
	lines := []string{headerStyle.Render("Goals")}
	if len(goals) == 0 {
		lines = append(lines, mutedStyle.Render("No goals yet."))
	}
	for _, g := range goals {
		bar := ProgressBar(g.Progress(), barWidth)
		name := lipgloss.NewStyle().Foreground(lipgloss.Color(colorOr(g.Color, core.DefaultGoalColor))).Render(g.Title)
		lines = append(lines, fmt.Sprintf("%-16s %s %s / %s [%s]", name, bar, g.CurrentAmount, g.TargetAmount, g.Priority))
	}
	return boxStyle.Render(strings.Join(lines, "\n"))
}

// Totals sums expenses and incomes. Sums are decimal so large ledgers
// cannot overflow the display.
func Totals(expenses []core.Expense, incomes []core.Income) string {
	spent, earned := decimal.Zero, decimal.Zero
	for _, e := range expenses {
		spent = spent.Add(e.Amount.Decimal())
	}
	for _, in := range incomes {
		earned = earned.Add(in.Amount.Decimal())
	}
	balance := earned.Sub(spent)

	lines := []string{
		headerStyle.Render("Totals"),
		fmt.Sprintf("Expenses  %s (%d)", spent.StringFixed(2), len(expenses)),
		fmt.Sprintf("Incomes   %s (%d)", earned.StringFixed(2), len(incomes)),
	}
	b := fmt.Sprintf("Balance   %s", balance.StringFixed(2))
	if balance.IsNegative() {
		b = errorStyle.Render(b)
	}
	lines = append(lines, b)
	return boxStyle.Render(strings.Join(lines, "\n"))
}

// ProgressBar draws ratio in [0, 1] as width cells.
func ProgressBar(ratio float64, width int) string {
	if ratio < 0 {
		ratio = 0
	}
	if ratio > 1 {
		ratio = 1
	}
	filled := int(ratio*float64(width) + 0.5)
	return "[" + strings.Repeat("#", filled) + strings.Repeat("-", width-filled) + "]"
}

func colorOr(c, fallback string) string {
	if c == "" {
		return fallback
	}
	return c
}
