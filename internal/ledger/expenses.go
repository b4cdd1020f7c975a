package ledger

import (
	"context"
	"errors"
	"fmt"

	"moneytracker/internal/core"
	"moneytracker/internal/docstore"
	"moneytracker/internal/log"
)

func (s *Store) ListExpenses(ctx context.Context, userID string) ([]core.Expense, error) {
	return list[core.Expense](ctx, s.docs, core.CollectionExpenses, userID)
}

func (s *Store) GetExpense(ctx context.Context, userID, id string) (core.Expense, error) {
	return get[core.Expense](ctx, s.docs, core.CollectionExpenses, userID, id)
}

// matchingBudget returns the oldest budget of userID in category, if any.
func matchingBudget(ctx context.Context, tx docstore.Tx, userID, category string) (core.Budget, bool, error) {
	docs, err := tx.Find(ctx, docstore.Query{
		Collection: core.CollectionBudgets,
		UserID:     userID,
		Key:        category,
	})
	if err != nil {
		return core.Budget{}, false, err
	}
	if len(docs) == 0 {
		return core.Budget{}, false, nil
	}
	b, err := decode[core.Budget](docs[0])
	if err != nil {
		return core.Budget{}, false, err
	}
	return b, true, nil
}

// CreateExpense stores e and, when a budget exists for its category, adds
// the amount to that budget's spent total in the same transaction.
func (s *Store) CreateExpense(ctx context.Context, userID string, e core.Expense) (core.Expense, error) {
	if err := requireUser(userID); err != nil {
		return core.Expense{}, err
	}
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}

	now := s.now()
	e.ID = s.docs.NewID()
	e.UserID = userID
	e.CreatedAt = now
	if e.Date.IsZero() {
		e.Date = now
	}

	var linked string
	err := s.docs.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		linked = ""
		b, ok, err := matchingBudget(ctx, tx, userID, e.Category)
		if err != nil {
			return err
		}

		d, err := expenseDocument(e)
		if err != nil {
			return err
		}
		if err := tx.Set(ctx, d); err != nil {
			return err
		}
		if !ok {
			return nil
		}

		spent, err := b.Spent.Add(e.Amount)
		if err != nil {
			return fmt.Errorf("budget %s spent: %w", b.ID, err)
		}
		b.Spent = spent
		b.UpdatedAt = now
		bd, err := budgetDocument(b)
		if err != nil {
			return err
		}
		if err := tx.Update(ctx, bd); err != nil {
			return err
		}
		linked = b.ID
		return nil
	})
	if err != nil {
		return core.Expense{}, fmt.Errorf("create expense: %w", err)
	}

	s.logger.InfoContext(ctx, "Expense created",
		log.FieldUserID, userID,
		log.FieldDocumentID, e.ID,
		log.FieldCategory, e.Category,
		log.FieldAmountCents, e.Amount.Cents,
		log.FieldBudgetID, linked)
	return e, nil
}

// UpdateExpense overwrites amount, category, date and description. Budget
// totals are not adjusted.
func (s *Store) UpdateExpense(ctx context.Context, userID string, e core.Expense) (core.Expense, error) {
	if err := requireUser(userID); err != nil {
		return core.Expense{}, err
	}
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}

	var updated core.Expense
	err := s.docs.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		cur, err := load[core.Expense](ctx, tx, core.CollectionExpenses, userID, e.ID)
		if err != nil {
			return err
		}
		cur.Amount = e.Amount
		cur.Category = e.Category
		if !e.Date.IsZero() {
			cur.Date = e.Date
		}
		cur.Description = e.Description

		d, err := expenseDocument(cur)
		if err != nil {
			return err
		}
		d.UpdatedAt = s.now()
		if err := tx.Update(ctx, d); err != nil {
			return err
		}
		updated = cur
		return nil
	})
	if err != nil {
		return core.Expense{}, notFoundOr(err, "update expense %s", e.ID)
	}
	return updated, nil
}

// DeleteExpense removes the expense and takes its amount off the matching
// budget, never below zero. A missing expense is ignored.
func (s *Store) DeleteExpense(ctx context.Context, userID, id string) error {
	if err := requireUser(userID); err != nil {
		return err
	}

	var (
		removed core.Expense
		found   bool
		linked  string
	)
	err := s.docs.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		found, linked = false, ""
		e, err := load[core.Expense](ctx, tx, core.CollectionExpenses, userID, id)
		if errors.Is(err, core.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		b, ok, err := matchingBudget(ctx, tx, userID, e.Category)
		if err != nil {
			return err
		}
		if err := tx.Delete(ctx, core.CollectionExpenses, id); err != nil {
			return err
		}
		removed, found = e, true
		if !ok {
			return nil
		}

		b.Spent = b.Spent.SubClamped(e.Amount)
		b.UpdatedAt = s.now()
		bd, err := budgetDocument(b)
		if err != nil {
			return err
		}
		if err := tx.Update(ctx, bd); err != nil {
			return err
		}
		linked = b.ID
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete expense %s: %w", id, err)
	}

	if found {
		s.logger.InfoContext(ctx, "Expense deleted",
			log.FieldUserID, userID,
			log.FieldDocumentID, id,
			log.FieldCategory, removed.Category,
			log.FieldAmountCents, removed.Amount.Cents,
			log.FieldBudgetID, linked)
	}
	return nil
}

func expenseDocument(e core.Expense) (docstore.Document, error) {
	return encode(core.CollectionExpenses, e.ID, e.UserID, e.Category, e, e.CreatedAt, e.CreatedAt)
}
