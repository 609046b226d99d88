package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"ideaforge-billing/internal/domain"
	"ideaforge-billing/internal/domain/model"
	"ideaforge-billing/internal/domain/ports/repository"
	"ideaforge-billing/internal/infra/logging"
	"ideaforge-billing/internal/infra/metrics"
)

// Compile-time check
var _ InvoiceUseCase = (*invoiceUC)(nil)

// InvoiceUseCase is the append-only invoice ledger.
type InvoiceUseCase interface {
	NextInvoiceNumber(ctx context.Context, now time.Time) (string, error)
	// Issue numbers and stores draft. Missing ID, IssuedAt, Currency,
	// TaxRate and Description are filled in.
	Issue(ctx context.Context, draft *model.Invoice) (*model.Invoice, error)
	FindBySubscription(ctx context.Context, subscriptionID string) (*model.Invoice, error)
	List(ctx context.Context, accountID string) ([]*model.Invoice, error)
}

type invoiceUC struct {
	invoices repository.InvoiceRepository
	tm       repository.TransactionManager
	retries  int
	log      *zerolog.Logger
	now      func() time.Time

	mu      sync.Mutex
	buckets map[string]*sync.Mutex
}

func NewInvoiceUseCase(invoices repository.InvoiceRepository, tm repository.TransactionManager, retries int, logger *zerolog.Logger, opts ...Option) *invoiceUC {
	if retries <= 0 {
		retries = 5
	}
	o := buildOptions(opts)
	l := logger.With().Str("component", "invoice_uc").Logger()
	return &invoiceUC{
		invoices: invoices,
		tm:       tm,
		retries:  retries,
		log:      &l,
		now:      o.now,
		buckets:  make(map[string]*sync.Mutex),
	}
}

func (u *invoiceUC) NextInvoiceNumber(ctx context.Context, now time.Time) (string, error) {
	return u.nextNumber(ctx, repository.NoTX, model.InvoiceNumberPrefix(now))
}

func (u *invoiceUC) nextNumber(ctx context.Context, tx repository.Tx, prefix string) (string, error) {
	n, err := u.invoices.CountByNumberPrefix(ctx, tx, prefix)
	if err != nil {
		return "", fmt.Errorf("count invoices %s: %w", prefix, err)
	}
	return model.FormatInvoiceNumber(prefix, n+1), nil
}

func (u *invoiceUC) Issue(ctx context.Context, draft *model.Invoice) (*model.Invoice, error) {
	defer logging.TraceDuration(u.log, "InvoiceUC.Issue")()

	if draft == nil || draft.AccountID == "" {
		return nil, domain.ErrInvalidArgument
	}
	inv := *draft
	if inv.ID == "" {
		inv.ID = ulid.Make().String()
	}
	if inv.IssuedAt.IsZero() {
		inv.IssuedAt = u.now()
	}
	inv.IssuedAt = inv.IssuedAt.UTC()
	if inv.Currency == "" {
		inv.Currency = model.DefaultCurrency
	}
	if inv.TaxRate == "" {
		inv.TaxRate = model.InvoiceTaxRate
	}
	if inv.Status == "" {
		inv.Status = model.InvoiceStatusPaid
	}
	if inv.Description == "" {
		inv.Description = model.InvoiceDescription(inv.PreviousTier, inv.PreviousPlan, inv.Tier, inv.Plan)
	}

	prefix := model.InvoiceNumberPrefix(inv.IssuedAt)
	bucket := u.bucket(prefix)
	bucket.Lock()
	defer bucket.Unlock()

	for attempt := 1; attempt <= u.retries; attempt++ {
		err := u.tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			number, err := u.nextNumber(ctx, tx, prefix)
			if err != nil {
				return err
			}
			inv.Number = number
			return u.invoices.Create(ctx, tx, &inv)
		})
		if err == nil {
			metrics.IncInvoiceIssued(string(inv.Status), inv.Currency, inv.Amount)
			u.log.Info().
				Str("account_id", inv.AccountID).
				Str("invoice_number", inv.Number).
				Str("status", string(inv.Status)).
				Str("amount", inv.Amount.StringFixed(2)).
				Msg("invoice issued")
			return &inv, nil
		}
		if !errors.Is(err, domain.ErrAlreadyExists) {
			return nil, fmt.Errorf("issue invoice: %w", err)
		}
		metrics.IncInvoiceNumberConflict()
		u.log.Debug().Str("invoice_number", inv.Number).Int("attempt", attempt).Msg("invoice number taken, retrying")
	}
	return nil, fmt.Errorf("issue invoice in %s after %d attempts: %w", prefix, u.retries, domain.ErrAlreadyExists)
}

func (u *invoiceUC) bucket(prefix string) *sync.Mutex {
	u.mu.Lock()
	defer u.mu.Unlock()
	m, ok := u.buckets[prefix]
	if !ok {
		m = &sync.Mutex{}
		u.buckets[prefix] = m
	}
	return m
}

func (u *invoiceUC) FindBySubscription(ctx context.Context, subscriptionID string) (*model.Invoice, error) {
	if subscriptionID == "" {
		return nil, domain.ErrInvalidArgument
	}
	return u.invoices.FindBySubscriptionID(ctx, repository.NoTX, subscriptionID)
}

func (u *invoiceUC) List(ctx context.Context, accountID string) ([]*model.Invoice, error) {
	if accountID == "" {
		return nil, domain.ErrInvalidArgument
	}
	list, err := u.invoices.ListByAccount(ctx, repository.NoTX, accountID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].IssuedAt.After(list[j].IssuedAt) })
	return list, nil
}
