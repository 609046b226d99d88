package repository

import (
	"context"

	"ideaforge-billing/internal/domain/model"
)

// -----------------------------
// Invoices
// -----------------------------

type InvoiceRepository interface {
	// Create inserts an invoice; a duplicate invoice number yields domain.ErrAlreadyExists.
	Create(ctx context.Context, tx Tx, inv *model.Invoice) error
	CountByNumberPrefix(ctx context.Context, tx Tx, prefix string) (int64, error)
	FindBySubscriptionID(ctx context.Context, tx Tx, subscriptionID string) (*model.Invoice, error)
	// ListByAccount returns invoices newest first.
	ListByAccount(ctx context.Context, tx Tx, accountID string) ([]*model.Invoice, error)
	// DeleteByAccount removes an account's invoices as part of account removal.
	DeleteByAccount(ctx context.Context, tx Tx, accountID string) (int64, error)
}
