package repository

import (
	"context"

	"ideaforge-billing/internal/domain/model"
)

// -----------------------------
// Accounts
// -----------------------------

type AccountRepository interface {
	FindByID(ctx context.Context, tx Tx, id string) (*model.Account, error)
	Create(ctx context.Context, tx Tx, a *model.Account) error
	// Save overwrites the document if its stored version equals a.Version and
	// bumps a.Version on success. A stale version yields domain.ErrConflict.
	Save(ctx context.Context, tx Tx, a *model.Account) error
	// ListPaid pages paid accounts carrying a provider subscription, ordered by id.
	ListPaid(ctx context.Context, tx Tx, afterID string, limit int) ([]*model.Account, error)
	// Delete removes the account; a missing account yields domain.ErrNotFound.
	Delete(ctx context.Context, tx Tx, id string) error
}
