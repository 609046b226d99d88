package postgres

import (
	"context"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/shopspring/decimal"

	"ideaforge-billing/internal/domain"
	"ideaforge-billing/internal/domain/model"
	"ideaforge-billing/internal/domain/ports/repository"
)

var _ repository.InvoiceRepository = (*invoiceRepo)(nil)

type invoiceRepo struct{ pool *pgxpool.Pool }

func NewInvoiceRepo(pool *pgxpool.Pool) *invoiceRepo {
	return &invoiceRepo{pool: pool}
}

const invoiceSelect = `SELECT id, account_id, invoice_number, amount::text, currency, tier, plan, previous_tier, previous_plan,
  description, issued_at, status, provider_subscription_id, provider_transaction_id, tax_rate FROM invoices`

func scanInvoice(row pgx.Row) (*model.Invoice, error) {
	inv := &model.Invoice{}
	var amount, tier, plan, prevTier, prevPlan, status string
	if err := row.Scan(&inv.ID, &inv.AccountID, &inv.Number, &amount, &inv.Currency, &tier, &plan, &prevTier, &prevPlan,
		&inv.Description, &inv.IssuedAt, &status, &inv.ProviderSubscriptionID, &inv.ProviderTransactionID, &inv.TaxRate); err != nil {
		return nil, err
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	inv.Amount = d
	inv.Tier = model.Tier(tier)
	inv.Plan = model.PlanType(plan)
	inv.PreviousTier = model.Tier(prevTier)
	inv.PreviousPlan = model.PlanType(prevPlan)
	inv.Status = model.InvoiceStatus(status)
	return inv, nil
}

func (r *invoiceRepo) Create(ctx context.Context, tx repository.Tx, inv *model.Invoice) error {
	const q = `
INSERT INTO invoices (
  id, account_id, invoice_number, amount, currency, tier, plan, previous_tier, previous_plan,
  description, issued_at, status, provider_subscription_id, provider_transaction_id, tax_rate
) VALUES (
  $1,$2,$3,$4::numeric,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15
);`
	_, err := execSQL(ctx, r.pool, tx, q, inv.ID, inv.AccountID, inv.Number, inv.Amount.StringFixed(2), inv.Currency,
		string(inv.Tier), string(inv.Plan), string(inv.PreviousTier), string(inv.PreviousPlan),
		inv.Description, inv.IssuedAt, string(inv.Status), inv.ProviderSubscriptionID, inv.ProviderTransactionID, inv.TaxRate)
	return mapError(err)
}

// CountByNumberPrefix counts invoices in a number bucket. Inside a transaction
// it first takes an advisory lock on the bucket so concurrent issuers across
// processes serialize until commit.
func (r *invoiceRepo) CountByNumberPrefix(ctx context.Context, tx repository.Tx, prefix string) (int64, error) {
	if inTx(tx) {
		if _, err := execSQL(ctx, r.pool, tx, `SELECT pg_advisory_xact_lock($1);`, hashToInt64(prefix)); err != nil {
			return 0, mapError(err)
		}
	}
	row, err := queryRow(ctx, r.pool, tx, `SELECT COUNT(*) FROM invoices WHERE invoice_number LIKE $1;`, prefix+"-%")
	if err != nil {
		return 0, err
	}
	var n int64
	if err := row.Scan(&n); err != nil {
		return 0, domain.ErrReadDatabaseRow
	}
	return n, nil
}

func (r *invoiceRepo) FindBySubscriptionID(ctx context.Context, tx repository.Tx, subscriptionID string) (*model.Invoice, error) {
	if subscriptionID == "" {
		return nil, domain.ErrNotFound
	}
	const q = invoiceSelect + ` WHERE provider_subscription_id=$1 ORDER BY issued_at ASC LIMIT 1;`
	row, err := queryRow(ctx, r.pool, tx, q, subscriptionID)
	if err != nil {
		return nil, err
	}
	inv, err := scanInvoice(row)
	if err != nil {
		return nil, mapError(err)
	}
	return inv, nil
}

func (r *invoiceRepo) ListByAccount(ctx context.Context, tx repository.Tx, accountID string) ([]*model.Invoice, error) {
	const q = invoiceSelect + ` WHERE account_id=$1 ORDER BY issued_at DESC, invoice_number DESC;`
	rows, err := queryRows(ctx, r.pool, tx, q, accountID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	out := []*model.Invoice{}
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return out, nil
}

func (r *invoiceRepo) DeleteByAccount(ctx context.Context, tx repository.Tx, accountID string) (int64, error) {
	tag, err := execSQL(ctx, r.pool, tx, `DELETE FROM invoices WHERE account_id=$1;`, accountID)
	if err != nil {
		return 0, mapError(err)
	}
	return tag.RowsAffected(), nil
}
