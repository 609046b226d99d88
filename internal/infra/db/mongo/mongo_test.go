package mongo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"ideaforge-billing/internal/domain"
	"ideaforge-billing/internal/domain/model"
	"ideaforge-billing/internal/domain/ports/repository"
)

func TestAccountDocRoundTripKeepsVersionAndPlan(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	a, err := model.NewAccount("acc-1", "one@example.com", "One", now)
	require.NoError(t, err)
	require.NoError(t, a.ApplyPlan(model.TierYearly, model.PlanPro, "I-SUB1", now))
	a.Version = 7

	got := toAccountDoc(a).toModel()

	assert.Equal(t, a, got)
}

func TestInvoiceDocStoresAmountAsDecimalString(t *testing.T) {
	inv := &model.Invoice{
		ID:       "01J0000000000000000000000",
		Number:   "INV-202503-0001",
		Amount:   decimal.RequireFromString("49"),
		Currency: "USD",
		Tier:     model.TierMonthly,
		Plan:     model.PlanPro,
		IssuedAt: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC),
		Status:   model.InvoiceStatusPaid,
		TaxRate:  model.InvoiceTaxRate,
	}

	d := toInvoiceDoc(inv)
	assert.Equal(t, "49.00", d.Amount)

	back, err := d.toModel()
	require.NoError(t, err)
	assert.True(t, back.Amount.Equal(inv.Amount))
	assert.Equal(t, inv.Number, back.Number)

	d.Amount = "not-a-number"
	_, err = d.toModel()
	assert.ErrorIs(t, err, domain.ErrReadDatabaseRow)
}

func TestMapError(t *testing.T) {
	assert.NoError(t, mapError(nil))
	assert.ErrorIs(t, mapError(mongo.ErrNoDocuments), domain.ErrNotFound)
	assert.ErrorIs(t, mapError(mongo.WriteException{WriteErrors: []mongo.WriteError{{Code: 11000}}}), domain.ErrAlreadyExists)
	assert.ErrorIs(t, mapError(errors.New("boom")), domain.ErrOperationFailed)
}

func TestIndexModelsCoverUniqueKeys(t *testing.T) {
	m := indexModels()
	require.Contains(t, m, colAccounts)
	require.Contains(t, m, colInvoices)
	assert.NotNil(t, m[colAccounts][0].Options)
	assert.NotNil(t, m[colInvoices][0].Options)
}

func TestHelloReplyTransactional(t *testing.T) {
	assert.False(t, helloReply{}.transactional(), "standalone")
	assert.True(t, helloReply{SetName: "rs0"}.transactional(), "replica set member")
	assert.True(t, helloReply{Msg: "isdbgrid"}.transactional(), "mongos")
}

func TestTxManagerWithoutTransactionsRunsDirectly(t *testing.T) {
	m := &TxManager{}
	want := errors.New("insert failed")
	var gotTx repository.Tx = "unset"

	err := m.WithTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		gotTx = tx
		return want
	})

	assert.ErrorIs(t, err, want)
	assert.Nil(t, gotTx)
	assert.False(t, m.Transactional())
}
