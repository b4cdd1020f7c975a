// Package state holds the signed-in user's live view of the ledger: the four
// collections kept current by subscriptions, a loading flag and the last
// error a mutation produced.
package state

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"moneytracker/internal/auth"
	"moneytracker/internal/core"
	"moneytracker/internal/ledger"
	"moneytracker/internal/log"
)

// Ledger is the subset of ledger.Store the manager drives.
type Ledger interface {
	SubscribeBudgets(ctx context.Context, userID string) (*ledger.Subscription[core.Budget], error)
	SubscribeExpenses(ctx context.Context, userID string) (*ledger.Subscription[core.Expense], error)
	SubscribeIncomes(ctx context.Context, userID string) (*ledger.Subscription[core.Income], error)
	SubscribeGoals(ctx context.Context, userID string) (*ledger.Subscription[core.Goal], error)

	CreateBudget(ctx context.Context, userID string, b core.Budget) (core.Budget, error)
	DeleteBudget(ctx context.Context, userID, id string) error
	CreateExpense(ctx context.Context, userID string, e core.Expense) (core.Expense, error)
	DeleteExpense(ctx context.Context, userID, id string) error
	CreateIncome(ctx context.Context, userID string, in core.Income) (core.Income, error)
	DeleteIncome(ctx context.Context, userID, id string) error
	CreateGoal(ctx context.Context, userID string, g core.Goal) (core.Goal, error)
	AddFunds(ctx context.Context, userID, goalID string, amount core.Money) (core.Goal, error)
	DeleteGoal(ctx context.Context, userID, id string) error
}

type State struct {
	Budgets      []core.Budget
	Expenses     []core.Expense
	Goals        []core.Goal
	Incomes      []core.Income
	IsLoading    bool
	ErrorMessage string
}

type Manager struct {
	ledger   Ledger
	identity auth.Identity
	logger   *log.Logger

	mu      sync.Mutex
	state   State
	changes chan struct{}
}

func NewManager(l Ledger, identity auth.Identity, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &Manager{
		ledger:   l,
		identity: identity,
		logger:   logger.WithComponent(log.ComponentState),
		state:    State{IsLoading: true},
		changes:  make(chan struct{}, 1),
	}
}

// Snapshot returns a copy of the current state.
func (m *Manager) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.state
	s.Budgets = append([]core.Budget(nil), s.Budgets...)
	s.Expenses = append([]core.Expense(nil), s.Expenses...)
	s.Goals = append([]core.Goal(nil), s.Goals...)
	s.Incomes = append([]core.Income(nil), s.Incomes...)
	return s
}

// Changes signals after every state update. Signals coalesce; read
// Snapshot for the current value.
func (m *Manager) Changes() <-chan struct{} {
	return m.changes
}

func (m *Manager) ClearError() {
	m.update(func(s *State) { s.ErrorMessage = "" })
}

func (m *Manager) update(fn func(*State)) {
	m.mu.Lock()
	fn(&m.state)
	m.mu.Unlock()
	select {
	case m.changes <- struct{}{}:
	default:
	}
}

// Load subscribes to every collection of the signed-in user and folds the
// emissions into the state until ctx ends. Without a user it returns nil
// at once.
func (m *Manager) Load(ctx context.Context) error {
	userID, ok := m.identity.CurrentUserID()
	if !ok {
		return nil
	}
	m.update(func(s *State) { s.IsLoading = true })

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sub, err := m.ledger.SubscribeBudgets(ctx, userID)
		if err != nil {
			return fmt.Errorf("subscribe budgets: %w", err)
		}
		return pump(ctx, m, sub, func(s *State, v []core.Budget) { s.Budgets = v })
	})
	g.Go(func() error {
		sub, err := m.ledger.SubscribeExpenses(ctx, userID)
		if err != nil {
			return fmt.Errorf("subscribe expenses: %w", err)
		}
		return pump(ctx, m, sub, func(s *State, v []core.Expense) { s.Expenses = v })
	})
	g.Go(func() error {
		sub, err := m.ledger.SubscribeIncomes(ctx, userID)
		if err != nil {
			return fmt.Errorf("subscribe incomes: %w", err)
		}
		return pump(ctx, m, sub, func(s *State, v []core.Income) { s.Incomes = v })
	})
	g.Go(func() error {
		sub, err := m.ledger.SubscribeGoals(ctx, userID)
		if err != nil {
			return fmt.Errorf("subscribe goals: %w", err)
		}
		return pump(ctx, m, sub, func(s *State, v []core.Goal) { s.Goals = v })
	})

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		m.logger.ErrorContext(ctx, "Loading ledger failed", log.FieldUserID, userID, log.FieldError, err)
		m.update(func(s *State) {
			s.IsLoading = false
			s.ErrorMessage = err.Error()
		})
		return err
	}
	return nil
}

func pump[T any](ctx context.Context, m *Manager, sub *ledger.Subscription[T], apply func(*State, []T)) error {
	defer sub.Close()
	for items := range sub.C() {
		subErr := sub.Err()
		m.update(func(s *State) {
			apply(s, items)
			s.IsLoading = false
			if subErr != nil {
				s.ErrorMessage = subErr.Error()
			}
		})
	}
	return ctx.Err()
}

// mutate runs call for the signed-in user after validate passes. Store
// failures land in the error slot; validation failures do not.
func (m *Manager) mutate(ctx context.Context, op string, validate func() error, call func(userID string) error) error {
	userID, ok := m.identity.CurrentUserID()
	if !ok {
		return nil
	}
	if validate != nil {
		if err := validate(); err != nil {
			return err
		}
	}
	if err := call(userID); err != nil {
		m.logger.WarnContext(ctx, "Ledger mutation failed",
			log.FieldUserID, userID,
			log.FieldOperation, op,
			log.FieldError, err)
		m.update(func(s *State) { s.ErrorMessage = err.Error() })
		return err
	}
	return nil
}

// validAmount checks title and amount and returns the amount in cents.
// Amounts that round to zero cents or do not fit are rejected here, before
// any store call.
func validAmount(title string, amount float64) (core.Money, error) {
	if strings.TrimSpace(title) == "" {
		return core.Money{}, core.ErrEmptyTitle
	}
	if !core.ValidateInput(title, amount) {
		return core.Money{}, core.ErrInvalidAmount
	}
	return core.MoneyFromFloat(amount)
}

func (m *Manager) AddBudget(ctx context.Context, category string, limit float64, color, icon string) error {
	var cents core.Money
	return m.mutate(ctx, log.OpCreate,
		func() (err error) {
			if strings.TrimSpace(category) == "" {
				return core.ErrEmptyCategory
			}
			cents, err = validAmount(category, limit)
			return err
		},
		func(userID string) error {
			_, err := m.ledger.CreateBudget(ctx, userID, core.Budget{
				Category: category,
				Limit:    cents,
				Color:    color,
				Icon:     icon,
			})
			return err
		})
}

func (m *Manager) DeleteBudget(ctx context.Context, id string) error {
	return m.mutate(ctx, log.OpDelete, nil, func(userID string) error {
		return m.ledger.DeleteBudget(ctx, userID, id)
	})
}

func (m *Manager) AddExpense(ctx context.Context, e core.Expense, amount float64) error {
	return m.mutate(ctx, log.OpCreate,
		func() (err error) {
			if strings.TrimSpace(e.Category) == "" {
				return core.ErrEmptyCategory
			}
			e.Amount, err = validAmount(e.Category, amount)
			return err
		},
		func(userID string) error {
			_, err := m.ledger.CreateExpense(ctx, userID, e)
			return err
		})
}

func (m *Manager) DeleteExpense(ctx context.Context, id string) error {
	return m.mutate(ctx, log.OpDelete, nil, func(userID string) error {
		return m.ledger.DeleteExpense(ctx, userID, id)
	})
}

// AddIncome validates the source as the income's title.
func (m *Manager) AddIncome(ctx context.Context, in core.Income, amount float64) error {
	return m.mutate(ctx, log.OpCreate,
		func() (err error) {
			in.Amount, err = validAmount(in.Source, amount)
			return err
		},
		func(userID string) error {
			_, err := m.ledger.CreateIncome(ctx, userID, in)
			return err
		})
}

func (m *Manager) DeleteIncome(ctx context.Context, id string) error {
	return m.mutate(ctx, log.OpDelete, nil, func(userID string) error {
		return m.ledger.DeleteIncome(ctx, userID, id)
	})
}

func (m *Manager) AddGoal(ctx context.Context, g core.Goal, target float64) error {
	return m.mutate(ctx, log.OpCreate,
		func() (err error) {
			if g.TargetAmount, err = validAmount(g.Title, target); err != nil {
				return err
			}
			if g.Priority != "" && !g.Priority.Valid() {
				return core.ErrInvalidPriority
			}
			return nil
		},
		func(userID string) error {
			_, err := m.ledger.CreateGoal(ctx, userID, g)
			return err
		})
}

func (m *Manager) AddFunds(ctx context.Context, goalID string, amount float64) error {
	var cents core.Money
	return m.mutate(ctx, log.OpAddFunds,
		func() (err error) {
			cents, err = core.MoneyFromFloat(amount)
			if err != nil || !cents.IsPositive() {
				return core.ErrInvalidAmount
			}
			return nil
		},
		func(userID string) error {
			_, err := m.ledger.AddFunds(ctx, userID, goalID, cents)
			return err
		})
}

func (m *Manager) DeleteGoal(ctx context.Context, id string) error {
	return m.mutate(ctx, log.OpDelete, nil, func(userID string) error {
		return m.ledger.DeleteGoal(ctx, userID, id)
	})
}
