package core

import (
	"errors"
	"strings"
	"time"
)

// Collection names in the document store.
const (
	CollectionBudgets  = "budgets"
	CollectionExpenses = "expenses"
	CollectionIncomes  = "incomes"
	CollectionGoals    = "goals"
	CollectionUsers    = "users"
)

const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
)

const (
	DefaultBudgetColor = "#9333ea"
	DefaultGoalColor   = "#2563eb"
)

type (
	Priority string

	Budget struct {
		ID        string    `json:"id"`
		UserID    string    `json:"userId"`
		Category  string    `json:"category"`
		Color     string    `json:"color"`
		Icon      string    `json:"icon"`
		Limit     Money     `json:"limit"`
		Spent     Money     `json:"spent"` // maintained by expense mutations only
		CreatedAt time.Time `json:"createdAt"`
		UpdatedAt time.Time `json:"updatedAt"`
	}

	// Expense is linked to a Budget by (UserID, Category), not by id.
	Expense struct {
		ID          string    `json:"id"`
		UserID      string    `json:"userId"`
		Amount      Money     `json:"amount"`
		Category    string    `json:"category"`
		Date        time.Time `json:"date"`
		Description string    `json:"description"`
		CreatedAt   time.Time `json:"createdAt"`
	}

	Income struct {
		ID        string    `json:"id"`
		UserID    string    `json:"userId"`
		Amount    Money     `json:"amount"`
		Category  string    `json:"category"`
		Source    string    `json:"source"`
		Date      time.Time `json:"date"`
		CreatedAt time.Time `json:"createdAt"`
	}

	Goal struct {
		ID            string    `json:"id"`
		UserID        string    `json:"userId"`
		Title         string    `json:"title"`
		Category      string    `json:"category"`
		Description   string    `json:"description"`
		Color         string    `json:"color"`
		Priority      Priority  `json:"priority"`
		TargetAmount  Money     `json:"targetAmount"`
		CurrentAmount Money     `json:"currentAmount"`
		CreatedAt     time.Time `json:"createdAt"`
		UpdatedAt     time.Time `json:"updatedAt"`
	}

	User struct {
		ID           string    `json:"id"`
		Login        string    `json:"login"` // lowercased email or "google:<sub>"
		Email        string    `json:"email"`
		PasswordHash []byte    `json:"passwordHash,omitempty"`
		CreatedAt    time.Time `json:"createdAt"`
	}
)

var (
	ErrNotFound        = errors.New("record not found")
	ErrMissingUser     = errors.New("no current user")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrEmptyCategory   = errors.New("empty category")
	ErrEmptyTitle      = errors.New("empty title")
	ErrInvalidPriority = errors.New("invalid priority")
)

// IsValidation reports whether err is an input validation failure.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrEmptyCategory) ||
		errors.Is(err, ErrEmptyTitle) ||
		errors.Is(err, ErrInvalidPriority)
}

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// ParsePriority is case-insensitive and defaults to Medium for "".
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return PriorityMedium, nil
	case "low":
		return PriorityLow, nil
	case "medium":
		return PriorityMedium, nil
	case "high":
		return PriorityHigh, nil
	}
	return "", ErrInvalidPriority
}

// ValidateInput accepts a non-blank title with an amount that is at least
// one cent once rounded.
func ValidateInput(title string, amount float64) bool {
	if strings.TrimSpace(title) == "" || !(amount > 0) {
		return false
	}
	m, err := MoneyFromFloat(amount)
	return err == nil && m.IsPositive()
}

func (b Budget) Validate() error {
	if strings.TrimSpace(b.Category) == "" {
		return ErrEmptyCategory
	}
	return b.Limit.Validate()
}

func (e Expense) Validate() error {
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(e.Category) == "" {
		return ErrEmptyCategory
	}
	return nil
}

func (i Income) Validate() error {
	return i.Amount.Validate()
}

func (g Goal) Validate() error {
	if strings.TrimSpace(g.Title) == "" {
		return ErrEmptyTitle
	}
	if g.Priority != "" && !g.Priority.Valid() {
		return ErrInvalidPriority
	}
	return g.TargetAmount.Validate()
}

// Progress returns spent/limit clamped to [0, 1].
func (b Budget) Progress() float64 {
	return ratio(b.Spent, b.Limit)
}

// Progress returns current/target clamped to [0, 1].
func (g Goal) Progress() float64 {
	return ratio(g.CurrentAmount, g.TargetAmount)
}

func ratio(n, d Money) float64 {
	if d.Cents <= 0 {
		return 0
	}
	r := float64(n.Cents) / float64(d.Cents)
	if r < 0 {
		return 0
	}
	if r > 1 {
		return 1
	}
	return r
}
