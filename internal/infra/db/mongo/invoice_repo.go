package mongo

import (
	"context"
	"regexp"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"ideaforge-billing/internal/domain"
	"ideaforge-billing/internal/domain/model"
	"ideaforge-billing/internal/domain/ports/repository"
)

var _ repository.InvoiceRepository = (*invoiceRepo)(nil)

// invoiceDoc keeps amounts as decimal strings so no float rounding creeps in.
type invoiceDoc struct {
	ID                     string    `bson:"_id"`
	AccountID              string    `bson:"account_id"`
	Number                 string    `bson:"invoice_number"`
	Amount                 string    `bson:"amount"`
	Currency               string    `bson:"currency"`
	Tier                   string    `bson:"tier"`
	Plan                   string    `bson:"plan"`
	PreviousTier           string    `bson:"previous_tier"`
	PreviousPlan           string    `bson:"previous_plan"`
	Description            string    `bson:"description"`
	IssuedAt               time.Time `bson:"issued_at"`
	Status                 string    `bson:"status"`
	ProviderSubscriptionID string    `bson:"provider_subscription_id"`
	ProviderTransactionID  string    `bson:"provider_transaction_id"`
	TaxRate                string    `bson:"tax_rate"`
}

func toInvoiceDoc(inv *model.Invoice) invoiceDoc {
	return invoiceDoc{
		ID:                     inv.ID,
		AccountID:              inv.AccountID,
		Number:                 inv.Number,
		Amount:                 inv.Amount.StringFixed(2),
		Currency:               inv.Currency,
		Tier:                   string(inv.Tier),
		Plan:                   string(inv.Plan),
		PreviousTier:           string(inv.PreviousTier),
		PreviousPlan:           string(inv.PreviousPlan),
		Description:            inv.Description,
		IssuedAt:               inv.IssuedAt.UTC(),
		Status:                 string(inv.Status),
		ProviderSubscriptionID: inv.ProviderSubscriptionID,
		ProviderTransactionID:  inv.ProviderTransactionID,
		TaxRate:                inv.TaxRate,
	}
}

func (d invoiceDoc) toModel() (*model.Invoice, error) {
	amount, err := decimal.NewFromString(d.Amount)
	if err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return &model.Invoice{
		ID:                     d.ID,
		AccountID:              d.AccountID,
		Number:                 d.Number,
		Amount:                 amount,
		Currency:               d.Currency,
		Tier:                   model.Tier(d.Tier),
		Plan:                   model.PlanType(d.Plan),
		PreviousTier:           model.Tier(d.PreviousTier),
		PreviousPlan:           model.PlanType(d.PreviousPlan),
		Description:            d.Description,
		IssuedAt:               d.IssuedAt.UTC(),
		Status:                 model.InvoiceStatus(d.Status),
		ProviderSubscriptionID: d.ProviderSubscriptionID,
		ProviderTransactionID:  d.ProviderTransactionID,
		TaxRate:                d.TaxRate,
	}, nil
}

type invoiceRepo struct{ col *mongo.Collection }

func NewInvoiceRepo(db *mongo.Database) *invoiceRepo {
	return &invoiceRepo{col: db.Collection(colInvoices)}
}

func (r *invoiceRepo) Create(ctx context.Context, _ repository.Tx, inv *model.Invoice) error {
	_, err := r.col.InsertOne(ctx, toInvoiceDoc(inv))
	return mapError(err)
}

// CountByNumberPrefix counts a bucket. Concurrent issuers may read the same
// count; the unique number index turns the loser into ErrAlreadyExists.
func (r *invoiceRepo) CountByNumberPrefix(ctx context.Context, _ repository.Tx, prefix string) (int64, error) {
	n, err := r.col.CountDocuments(ctx, bson.M{
		"invoice_number": bson.M{"$regex": "^" + regexp.QuoteMeta(prefix) + "-"},
	})
	if err != nil {
		return 0, mapError(err)
	}
	return n, nil
}

func (r *invoiceRepo) FindBySubscriptionID(ctx context.Context, _ repository.Tx, subscriptionID string) (*model.Invoice, error) {
	if subscriptionID == "" {
		return nil, domain.ErrNotFound
	}
	var d invoiceDoc
	opts := options.FindOne().SetSort(bson.D{{Key: "issued_at", Value: 1}})
	if err := r.col.FindOne(ctx, bson.M{"provider_subscription_id": subscriptionID}, opts).Decode(&d); err != nil {
		return nil, mapError(err)
	}
	return d.toModel()
}

func (r *invoiceRepo) ListByAccount(ctx context.Context, _ repository.Tx, accountID string) ([]*model.Invoice, error) {
	opts := options.Find().SetSort(bson.D{{Key: "issued_at", Value: -1}, {Key: "invoice_number", Value: -1}})
	cur, err := r.col.Find(ctx, bson.M{"account_id": accountID}, opts)
	if err != nil {
		return nil, mapError(err)
	}
	defer cur.Close(ctx)

	var docs []invoiceDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	out := make([]*model.Invoice, 0, len(docs))
	for _, d := range docs {
		inv, err := d.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, nil
}

func (r *invoiceRepo) DeleteByAccount(ctx context.Context, _ repository.Tx, accountID string) (int64, error) {
	res, err := r.col.DeleteMany(ctx, bson.M{"account_id": accountID})
	if err != nil {
		return 0, mapError(err)
	}
	return res.DeletedCount, nil
}
