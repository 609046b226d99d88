package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"ideaforge-billing/internal/domain"
	"ideaforge-billing/internal/domain/ports/adapter"
	"ideaforge-billing/internal/domain/ports/repository"
	"ideaforge-billing/internal/infra/logging"
)

// Compile-time check
var _ AccountUseCase = (*accountUC)(nil)

// AccountUseCase owns account removal.
type AccountUseCase interface {
	// RemoveAccount stops provider billing, then deletes the account together
	// with its invoices in one transaction.
	RemoveAccount(ctx context.Context, accountID string) error
}

type accountUC struct {
	accounts repository.AccountRepository
	invoices repository.InvoiceRepository
	tm       repository.TransactionManager
	gateway  adapter.PaymentGateway
	locker   adapter.Locker
	lockTTL  time.Duration
	log      *zerolog.Logger
}

func NewAccountUseCase(
	accounts repository.AccountRepository,
	invoices repository.InvoiceRepository,
	tm repository.TransactionManager,
	gateway adapter.PaymentGateway,
	locker adapter.Locker,
	lockTTL time.Duration,
	logger *zerolog.Logger,
) *accountUC {
	if lockTTL <= 0 {
		lockTTL = 30 * time.Second
	}
	l := logger.With().Str("component", "account_uc").Logger()
	return &accountUC{accounts: accounts, invoices: invoices, tm: tm, gateway: gateway, locker: locker, lockTTL: lockTTL, log: &l}
}

func (u *accountUC) RemoveAccount(ctx context.Context, accountID string) error {
	defer logging.TraceDuration(u.log, "AccountUC.RemoveAccount")()

	if accountID == "" {
		return domain.ErrInvalidArgument
	}
	log := logging.With(logging.WithAccountID(ctx, accountID), u.log)

	return withAccountLock(ctx, u.locker, u.lockTTL, log, accountID, func(ctx context.Context) error {
		acc, err := u.accounts.FindByID(ctx, repository.NoTX, accountID)
		if err != nil {
			return err
		}
		// A provider that keeps charging a deleted account is worse than a failed removal.
		if acc.ProviderSubscriptionID != "" {
			err := u.gateway.SuspendSubscription(ctx, acc.ProviderSubscriptionID, adapter.SuspendReason)
			if err != nil && !domain.IsResourceNotFound(err) {
				return gatewayFailure("suspend subscription", err)
			}
		}

		var removed int64
		err = u.tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			n, err := u.invoices.DeleteByAccount(ctx, tx, accountID)
			if err != nil {
				return fmt.Errorf("delete invoices: %w", err)
			}
			removed = n
			return u.accounts.Delete(ctx, tx, accountID)
		})
		if err != nil {
			return err
		}
		log.Info().Int64("invoices_removed", removed).Msg("account removed")
		return nil
	})
}
