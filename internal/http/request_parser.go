package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"moneytracker/internal/core"
)

// errBadRequest marks malformed input; it maps to 400.
var errBadRequest = errors.New("bad request")

// decodeJSON reads one JSON object from the body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("%w: trailing data after JSON object", errBadRequest)
	}
	return nil
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type googleRequest struct {
	IDToken string `json:"idToken"`
}

type budgetRequest struct {
	Category string     `json:"category"`
	Color    string     `json:"color"`
	Icon     string     `json:"icon"`
	Limit    core.Money `json:"limit"`
}

func (b budgetRequest) toBudget(id string) core.Budget {
	return core.Budget{
		ID:       id,
		Category: sanitizeInput(b.Category),
		Color:    sanitizeInput(b.Color),
		Icon:     sanitizeInput(b.Icon),
		Limit:    b.Limit,
	}
}

type expenseRequest struct {
	Amount      core.Money `json:"amount"`
	Category    string     `json:"category"`
	Date        string     `json:"date"`
	Description string     `json:"description"`
}

func (e expenseRequest) toExpense(id string) (core.Expense, error) {
	date, err := parseDate(e.Date)
	if err != nil {
		return core.Expense{}, fmt.Errorf("%w: invalid date %q", errBadRequest, e.Date)
	}
	return core.Expense{
		ID:          id,
		Amount:      e.Amount,
		Category:    sanitizeInput(e.Category),
		Date:        date,
		Description: sanitizeInput(e.Description),
	}, nil
}

type incomeRequest struct {
	Amount   core.Money `json:"amount"`
	Category string     `json:"category"`
	Source   string     `json:"source"`
	Date     string     `json:"date"`
}

func (in incomeRequest) toIncome(id string) (core.Income, error) {
	date, err := parseDate(in.Date)
	if err != nil {
		return core.Income{}, fmt.Errorf("%w: invalid date %q", errBadRequest, in.Date)
	}
	return core.Income{
		ID:       id,
		Amount:   in.Amount,
		Category: sanitizeInput(in.Category),
		Source:   sanitizeInput(in.Source),
		Date:     date,
	}, nil
}

type goalRequest struct {
	Title         string     `json:"title"`
	Category      string     `json:"category"`
	Description   string     `json:"description"`
	Color         string     `json:"color"`
	Priority      string     `json:"priority"`
	TargetAmount  core.Money `json:"targetAmount"`
	CurrentAmount core.Money `json:"currentAmount"`
}

func (g goalRequest) toGoal(id string) (core.Goal, error) {
	p, err := core.ParsePriority(g.Priority)
	if err != nil {
		return core.Goal{}, err
	}
	return core.Goal{
		ID:            id,
		Title:         sanitizeInput(g.Title),
		Category:      sanitizeInput(g.Category),
		Description:   sanitizeInput(g.Description),
		Color:         sanitizeInput(g.Color),
		Priority:      p,
		TargetAmount:  g.TargetAmount,
		CurrentAmount: g.CurrentAmount,
	}, nil
}

type fundsRequest struct {
	Amount core.Money `json:"amount"`
}
