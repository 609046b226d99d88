package postgres

import (
	"context"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"ideaforge-billing/internal/domain"
	"ideaforge-billing/internal/domain/model"
	"ideaforge-billing/internal/domain/ports/repository"
)

var _ repository.AccountRepository = (*accountRepo)(nil)

type accountRepo struct{ pool *pgxpool.Pool }

func NewAccountRepo(pool *pgxpool.Pool) *accountRepo {
	return &accountRepo{pool: pool}
}

const accountColumns = `id, email, name, tier, plan, provider_subscription_id, usage_count, usage_reset_at, version, created_at, updated_at`

func scanAccount(row pgx.Row) (*model.Account, error) {
	a := &model.Account{}
	var tier, plan string
	if err := row.Scan(&a.ID, &a.Email, &a.Name, &tier, &plan, &a.ProviderSubscriptionID, &a.UsageCount, &a.UsageResetAt, &a.Version, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.Tier = model.Tier(tier)
	a.Plan = model.PlanType(plan)
	return a, nil
}

func (r *accountRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Account, error) {
	q := `SELECT ` + accountColumns + ` FROM accounts WHERE id=$1`
	if inTx(tx) {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := queryRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	a, err := scanAccount(row)
	if err != nil {
		return nil, mapError(err)
	}
	return a, nil
}

func (r *accountRepo) Create(ctx context.Context, tx repository.Tx, a *model.Account) error {
	if err := a.Validate(); err != nil {
		return err
	}
	const q = `
INSERT INTO accounts (` + accountColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11);`
	_, err := execSQL(ctx, r.pool, tx, q, a.ID, a.Email, a.Name, string(a.Tier), string(a.Plan), a.ProviderSubscriptionID, a.UsageCount, a.UsageResetAt, a.Version, a.CreatedAt, a.UpdatedAt)
	return mapError(err)
}

// Save is a compare-and-swap on version. Zero affected rows means the row is
// gone or another writer got there first.
func (r *accountRepo) Save(ctx context.Context, tx repository.Tx, a *model.Account) error {
	if err := a.Validate(); err != nil {
		return err
	}
	const q = `
UPDATE accounts SET
  email=$3, name=$4, tier=$5, plan=$6, provider_subscription_id=$7,
  usage_count=$8, usage_reset_at=$9, updated_at=$10, version=version+1
WHERE id=$1 AND version=$2;`
	tag, err := execSQL(ctx, r.pool, tx, q, a.ID, a.Version, a.Email, a.Name, string(a.Tier), string(a.Plan), a.ProviderSubscriptionID, a.UsageCount, a.UsageResetAt, a.UpdatedAt)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		row, err := queryRow(ctx, r.pool, tx, `SELECT 1 FROM accounts WHERE id=$1;`, a.ID)
		if err != nil {
			return err
		}
		var one int
		if err := row.Scan(&one); err != nil {
			return mapError(err)
		}
		return domain.ErrConflict
	}
	a.Version++
	return nil
}

func (r *accountRepo) ListPaid(ctx context.Context, tx repository.Tx, afterID string, limit int) ([]*model.Account, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT ` + accountColumns + ` FROM accounts
WHERE tier <> 'FREE' AND provider_subscription_id <> '' AND id > $1
ORDER BY id ASC LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, afterID, limit)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []*model.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return out, nil
}

func (r *accountRepo) Delete(ctx context.Context, tx repository.Tx, id string) error {
	tag, err := execSQL(ctx, r.pool, tx, `DELETE FROM accounts WHERE id=$1;`, id)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
