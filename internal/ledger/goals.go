package ledger

import (
	"context"
	"fmt"

	"moneytracker/internal/core"
	"moneytracker/internal/docstore"
	"moneytracker/internal/log"
)

func (s *Store) ListGoals(ctx context.Context, userID string) ([]core.Goal, error) {
	return list[core.Goal](ctx, s.docs, core.CollectionGoals, userID)
}

func (s *Store) GetGoal(ctx context.Context, userID, id string) (core.Goal, error) {
	return get[core.Goal](ctx, s.docs, core.CollectionGoals, userID, id)
}

// CreateGoal stores g with nothing saved towards it yet.
func (s *Store) CreateGoal(ctx context.Context, userID string, g core.Goal) (core.Goal, error) {
	if err := requireUser(userID); err != nil {
		return core.Goal{}, err
	}
	if g.Priority == "" {
		g.Priority = core.PriorityMedium
	}
	if err := g.Validate(); err != nil {
		return core.Goal{}, err
	}

	now := s.now()
	g.ID = s.docs.NewID()
	g.UserID = userID
	g.CurrentAmount = core.Money{}
	if g.Color == "" {
		g.Color = core.DefaultGoalColor
	}
	g.CreatedAt = now
	g.UpdatedAt = now

	d, err := goalDocument(g)
	if err != nil {
		return core.Goal{}, err
	}
	if err := s.docs.Set(ctx, d); err != nil {
		return core.Goal{}, fmt.Errorf("create goal: %w", err)
	}

	s.logger.InfoContext(ctx, "Goal created",
		log.FieldUserID, userID,
		log.FieldDocumentID, g.ID,
		log.FieldAmountCents, g.TargetAmount.Cents)
	return g, nil
}

// UpdateGoal overwrites every mutable field, currentAmount included.
func (s *Store) UpdateGoal(ctx context.Context, userID string, g core.Goal) (core.Goal, error) {
	if err := requireUser(userID); err != nil {
		return core.Goal{}, err
	}
	if g.Priority == "" {
		g.Priority = core.PriorityMedium
	}
	if err := g.Validate(); err != nil {
		return core.Goal{}, err
	}

	var updated core.Goal
	err := s.docs.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		var err error
		updated, err = s.updateGoal(ctx, tx, userID, g.ID, func(cur *core.Goal) error {
			cur.Title = g.Title
			cur.Category = g.Category
			cur.Description = g.Description
			cur.Color = g.Color
			cur.Priority = g.Priority
			cur.TargetAmount = g.TargetAmount
			cur.CurrentAmount = g.CurrentAmount
			return nil
		})
		return err
	})
	if err != nil {
		return core.Goal{}, notFoundOr(err, "update goal %s", g.ID)
	}
	return updated, nil
}

// updateGoal loads the goal inside tx, applies change and writes it back
// with a fresh updatedAt.
func (s *Store) updateGoal(ctx context.Context, tx docstore.Tx, userID, id string, change func(*core.Goal) error) (core.Goal, error) {
	cur, err := load[core.Goal](ctx, tx, core.CollectionGoals, userID, id)
	if err != nil {
		return core.Goal{}, err
	}
	if err := change(&cur); err != nil {
		return core.Goal{}, err
	}
	cur.UpdatedAt = s.now()

	d, err := goalDocument(cur)
	if err != nil {
		return core.Goal{}, err
	}
	if err := tx.Update(ctx, d); err != nil {
		return core.Goal{}, err
	}
	return cur, nil
}

func (s *Store) DeleteGoal(ctx context.Context, userID, id string) error {
	return s.remove(ctx, core.CollectionGoals, userID, id)
}

// AddFunds raises the goal's current amount by amount, which must be
// positive. The read and the write share one transaction.
func (s *Store) AddFunds(ctx context.Context, userID, goalID string, amount core.Money) (core.Goal, error) {
	if err := requireUser(userID); err != nil {
		return core.Goal{}, err
	}
	if err := amount.Validate(); err != nil {
		return core.Goal{}, err
	}

	var g core.Goal
	err := s.docs.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		var err error
		g, err = s.updateGoal(ctx, tx, userID, goalID, func(cur *core.Goal) error {
			sum, err := cur.CurrentAmount.Add(amount)
			if err != nil {
				return err
			}
			cur.CurrentAmount = sum
			return nil
		})
		return err
	})
	if err != nil {
		return core.Goal{}, notFoundOr(err, "add funds to goal %s", goalID)
	}
	s.logger.InfoContext(ctx, "Funds added to goal",
		log.FieldUserID, userID,
		log.FieldDocumentID, goalID,
		log.FieldOperation, log.OpAddFunds,
		log.FieldAmountCents, amount.Cents)
	return g, nil
}

func goalDocument(g core.Goal) (docstore.Document, error) {
	return encode(core.CollectionGoals, g.ID, g.UserID, g.Category, g, g.CreatedAt, g.UpdatedAt)
}
