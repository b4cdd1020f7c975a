package ledger

import (
	"context"
	"fmt"

	"moneytracker/internal/core"
	"moneytracker/internal/docstore"
	"moneytracker/internal/log"
)

func (s *Store) ListIncomes(ctx context.Context, userID string) ([]core.Income, error) {
	return list[core.Income](ctx, s.docs, core.CollectionIncomes, userID)
}

func (s *Store) GetIncome(ctx context.Context, userID, id string) (core.Income, error) {
	return get[core.Income](ctx, s.docs, core.CollectionIncomes, userID, id)
}

func (s *Store) CreateIncome(ctx context.Context, userID string, in core.Income) (core.Income, error) {
	if err := requireUser(userID); err != nil {
		return core.Income{}, err
	}
	if err := in.Validate(); err != nil {
		return core.Income{}, err
	}

	now := s.now()
	in.ID = s.docs.NewID()
	in.UserID = userID
	in.CreatedAt = now
	if in.Date.IsZero() {
		in.Date = now
	}

	d, err := incomeDocument(in)
	if err != nil {
		return core.Income{}, err
	}
	if err := s.docs.Set(ctx, d); err != nil {
		return core.Income{}, fmt.Errorf("create income: %w", err)
	}

	s.logger.InfoContext(ctx, "Income created",
		log.FieldUserID, userID,
		log.FieldDocumentID, in.ID,
		log.FieldAmountCents, in.Amount.Cents)
	return in, nil
}

func (s *Store) UpdateIncome(ctx context.Context, userID string, in core.Income) (core.Income, error) {
	if err := requireUser(userID); err != nil {
		return core.Income{}, err
	}
	if err := in.Validate(); err != nil {
		return core.Income{}, err
	}

	var updated core.Income
	err := s.docs.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		cur, err := load[core.Income](ctx, tx, core.CollectionIncomes, userID, in.ID)
		if err != nil {
			return err
		}
		cur.Amount = in.Amount
		cur.Category = in.Category
		cur.Source = in.Source
		if !in.Date.IsZero() {
			cur.Date = in.Date
		}

		d, err := incomeDocument(cur)
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
		return core.Income{}, notFoundOr(err, "update income %s", in.ID)
	}
	return updated, nil
}

func (s *Store) DeleteIncome(ctx context.Context, userID, id string) error {
	return s.remove(ctx, core.CollectionIncomes, userID, id)
}

func incomeDocument(in core.Income) (docstore.Document, error) {
	return encode(core.CollectionIncomes, in.ID, in.UserID, in.Category, in, in.CreatedAt, in.CreatedAt)
}
