package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"ideaforge-billing/internal/domain"
	"ideaforge-billing/internal/domain/model"
	"ideaforge-billing/internal/domain/ports/repository"
)

var _ repository.AccountRepository = (*accountRepo)(nil)

type accountDoc struct {
	ID                     string    `bson:"_id"`
	Email                  string    `bson:"email"`
	Name                   string    `bson:"name"`
	Tier                   string    `bson:"tier"`
	Plan                   string    `bson:"plan"`
	ProviderSubscriptionID string    `bson:"provider_subscription_id"`
	UsageCount             float64   `bson:"usage_count"`
	UsageResetAt           time.Time `bson:"usage_reset_at"`
	Version                int64     `bson:"version"`
	CreatedAt              time.Time `bson:"created_at"`
	UpdatedAt              time.Time `bson:"updated_at"`
}

func toAccountDoc(a *model.Account) accountDoc {
	return accountDoc{
		ID:                     a.ID,
		Email:                  a.Email,
		Name:                   a.Name,
		Tier:                   string(a.Tier),
		Plan:                   string(a.Plan),
		ProviderSubscriptionID: a.ProviderSubscriptionID,
		UsageCount:             a.UsageCount,
		UsageResetAt:           a.UsageResetAt.UTC(),
		Version:                a.Version,
		CreatedAt:              a.CreatedAt.UTC(),
		UpdatedAt:              a.UpdatedAt.UTC(),
	}
}

func (d accountDoc) toModel() *model.Account {
	return &model.Account{
		ID:                     d.ID,
		Email:                  d.Email,
		Name:                   d.Name,
		Tier:                   model.Tier(d.Tier),
		Plan:                   model.PlanType(d.Plan),
		ProviderSubscriptionID: d.ProviderSubscriptionID,
		UsageCount:             d.UsageCount,
		UsageResetAt:           d.UsageResetAt.UTC(),
		Version:                d.Version,
		CreatedAt:              d.CreatedAt.UTC(),
		UpdatedAt:              d.UpdatedAt.UTC(),
	}
}

type accountRepo struct{ col *mongo.Collection }

func NewAccountRepo(db *mongo.Database) *accountRepo {
	return &accountRepo{col: db.Collection(colAccounts)}
}

func (r *accountRepo) FindByID(ctx context.Context, _ repository.Tx, id string) (*model.Account, error) {
	var d accountDoc
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&d); err != nil {
		return nil, mapError(err)
	}
	return d.toModel(), nil
}

func (r *accountRepo) Create(ctx context.Context, _ repository.Tx, a *model.Account) error {
	if err := a.Validate(); err != nil {
		return err
	}
	_, err := r.col.InsertOne(ctx, toAccountDoc(a))
	return mapError(err)
}

// Save replaces the document only while its stored version still matches.
func (r *accountRepo) Save(ctx context.Context, _ repository.Tx, a *model.Account) error {
	if err := a.Validate(); err != nil {
		return err
	}
	d := toAccountDoc(a)
	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": a.ID, "version": a.Version},
		bson.M{
			"$set": bson.M{
				"email":                    d.Email,
				"name":                     d.Name,
				"tier":                     d.Tier,
				"plan":                     d.Plan,
				"provider_subscription_id": d.ProviderSubscriptionID,
				"usage_count":              d.UsageCount,
				"usage_reset_at":           d.UsageResetAt,
				"updated_at":               d.UpdatedAt,
			},
			"$inc": bson.M{"version": 1},
		},
	)
	if err != nil {
		return mapError(err)
	}
	if res.MatchedCount == 0 {
		n, err := r.col.CountDocuments(ctx, bson.M{"_id": a.ID})
		if err != nil {
			return mapError(err)
		}
		if n == 0 {
			return domain.ErrNotFound
		}
		return domain.ErrConflict
	}
	a.Version++
	return nil
}

func (r *accountRepo) ListPaid(ctx context.Context, _ repository.Tx, afterID string, limit int) ([]*model.Account, error) {
	if limit <= 0 {
		limit = 100
	}
	filter := bson.M{
		"tier":                     bson.M{"$ne": string(model.TierFree)},
		"provider_subscription_id": bson.M{"$ne": ""},
		"_id":                      bson.M{"$gt": afterID},
	}
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}).SetLimit(int64(limit))
	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, mapError(err)
	}
	defer cur.Close(ctx)

	var docs []accountDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	out := make([]*model.Account, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toModel())
	}
	return out, nil
}

func (r *accountRepo) Delete(ctx context.Context, _ repository.Tx, id string) error {
	res, err := r.col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return mapError(err)
	}
	if res.DeletedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}
