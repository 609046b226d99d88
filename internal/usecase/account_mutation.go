package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"ideaforge-billing/internal/domain"
	"ideaforge-billing/internal/domain/model"
	"ideaforge-billing/internal/domain/ports/adapter"
	"ideaforge-billing/internal/domain/ports/repository"
)

const maxSaveAttempts = 3

// errUnchanged lets a mutation skip the save and return the account as read.
var errUnchanged = errors.New("account unchanged")

// mutateAccount reads the account, applies fn and saves it. A stale version
// re-reads and re-applies fn, up to maxSaveAttempts times.
func mutateAccount(ctx context.Context, accounts repository.AccountRepository, accountID string, fn func(a *model.Account) error) (*model.Account, error) {
	for attempt := 0; attempt < maxSaveAttempts; attempt++ {
		acc, err := accounts.FindByID(ctx, repository.NoTX, accountID)
		if err != nil {
			return nil, err
		}
		if err := fn(acc); err != nil {
			if errors.Is(err, errUnchanged) {
				return acc, errUnchanged
			}
			return nil, err
		}
		if err := accounts.Save(ctx, repository.NoTX, acc); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				continue
			}
			return nil, fmt.Errorf("save account %s: %w", accountID, err)
		}
		return acc, nil
	}
	return nil, fmt.Errorf("save account %s after %d attempts: %w", accountID, maxSaveAttempts, domain.ErrConflict)
}

// withAccountLock runs fn while holding the account's distributed lock.
func withAccountLock(ctx context.Context, locker adapter.Locker, ttl time.Duration, log *zerolog.Logger, accountID string, fn func(ctx context.Context) error) error {
	key := accountLockKey(accountID)
	token, err := locker.TryLock(ctx, key, ttl)
	if err != nil {
		return fmt.Errorf("lock account %s: %w", accountID, err)
	}
	defer func() {
		if err := locker.Unlock(context.WithoutCancel(ctx), key, token); err != nil {
			log.Warn().Err(err).Str("account_id", accountID).Msg("failed to release account lock")
		}
	}()
	return fn(ctx)
}

// gatewayFailure makes sure a provider failure matches domain.ErrGateway.
func gatewayFailure(op string, err error) error {
	if errors.Is(err, domain.ErrGateway) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %v", op, domain.ErrGateway, err)
}
