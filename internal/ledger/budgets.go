package ledger

import (
	"context"
	"fmt"

	"moneytracker/internal/core"
	"moneytracker/internal/docstore"
	"moneytracker/internal/log"
)

func (s *Store) ListBudgets(ctx context.Context, userID string) ([]core.Budget, error) {
	return list[core.Budget](ctx, s.docs, core.CollectionBudgets, userID)
}

func (s *Store) GetBudget(ctx context.Context, userID, id string) (core.Budget, error) {
	return get[core.Budget](ctx, s.docs, core.CollectionBudgets, userID, id)
}

// CreateBudget stores b with spent reset to zero.
func (s *Store) CreateBudget(ctx context.Context, userID string, b core.Budget) (core.Budget, error) {
	if err := requireUser(userID); err != nil {
		return core.Budget{}, err
	}
	if err := b.Validate(); err != nil {
		return core.Budget{}, err
	}

	now := s.now()
	b.ID = s.docs.NewID()
	b.UserID = userID
	b.Spent = core.Money{}
	if b.Color == "" {
		b.Color = core.DefaultBudgetColor
	}
	b.CreatedAt = now
	b.UpdatedAt = now

	d, err := budgetDocument(b)
	if err != nil {
		return core.Budget{}, err
	}
	if err := s.docs.Set(ctx, d); err != nil {
		return core.Budget{}, fmt.Errorf("create budget: %w", err)
	}

	s.logger.InfoContext(ctx, "Budget created",
		log.FieldUserID, userID,
		log.FieldDocumentID, b.ID,
		log.FieldCategory, b.Category,
		log.FieldAmountCents, b.Limit.Cents)
	return b, nil
}

// UpdateBudget overwrites the editable fields of an existing budget. The
// stored spent total is kept.
func (s *Store) UpdateBudget(ctx context.Context, userID string, b core.Budget) (core.Budget, error) {
	if err := requireUser(userID); err != nil {
		return core.Budget{}, err
	}
	if err := b.Validate(); err != nil {
		return core.Budget{}, err
	}

	var updated core.Budget
	err := s.docs.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		cur, err := load[core.Budget](ctx, tx, core.CollectionBudgets, userID, b.ID)
		if err != nil {
			return err
		}
		cur.Category = b.Category
		cur.Color = b.Color
		cur.Icon = b.Icon
		cur.Limit = b.Limit
		cur.UpdatedAt = s.now()

		d, err := budgetDocument(cur)
		if err != nil {
			return err
		}
		if err := tx.Update(ctx, d); err != nil {
			return err
		}
		updated = cur
		return nil
	})
	if err != nil {
		return core.Budget{}, notFoundOr(err, "update budget %s", b.ID)
	}
	return updated, nil
}

func (s *Store) DeleteBudget(ctx context.Context, userID, id string) error {
	return s.remove(ctx, core.CollectionBudgets, userID, id)
}

// RecomputeSpent rebuilds every budget's spent total from the expenses in
// its category. Budgets sharing a category each receive the full sum.
func (s *Store) RecomputeSpent(ctx context.Context, userID string) ([]core.Budget, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}

	var budgets []core.Budget
	err := s.docs.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		bdocs, err := tx.Find(ctx, docstore.Query{Collection: core.CollectionBudgets, UserID: userID})
		if err != nil {
			return err
		}
		edocs, err := tx.Find(ctx, docstore.Query{Collection: core.CollectionExpenses, UserID: userID})
		if err != nil {
			return err
		}
		expenses, err := decodeAll[core.Expense](edocs)
		if err != nil {
			return err
		}

		sums := make(map[string]core.Money)
		for _, e := range expenses {
			sum, err := sums[e.Category].Add(e.Amount)
			if err != nil {
				return fmt.Errorf("sum category %q: %w", e.Category, err)
			}
			sums[e.Category] = sum
		}

		budgets, err = decodeAll[core.Budget](bdocs)
		if err != nil {
			return err
		}
		now := s.now()
		for i := range budgets {
			budgets[i].Spent = sums[budgets[i].Category]
			budgets[i].UpdatedAt = now
			d, err := budgetDocument(budgets[i])
			if err != nil {
				return err
			}
			if err := tx.Update(ctx, d); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("recompute spent: %w", err)
	}

	s.logger.InfoContext(ctx, "Budget totals recomputed",
		log.FieldUserID, userID,
		log.FieldOperation, log.OpRecompute,
		"budgets", len(budgets))
	return budgets, nil
}

func budgetDocument(b core.Budget) (docstore.Document, error) {
	return encode(core.CollectionBudgets, b.ID, b.UserID, b.Category, b, b.CreatedAt, b.UpdatedAt)
}
