package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"ideaforge-billing/internal/domain"
	"ideaforge-billing/internal/domain/ports/repository"
)

var _ repository.TransactionManager = (*TxManager)(nil)

// TxManager runs callbacks inside a session transaction. The session travels
// in the callback's ctx, so repositories only need to use that ctx; the tx
// argument is the *mongo.Session for callers that want to check it.
//
// Standalone servers cannot run transactions. There the callback runs
// directly with a nil tx and unique indexes are the only guard.
type TxManager struct {
	client        *mongo.Client
	transactional bool
}

// NewTxManager probes the deployment once and picks the mode.
func NewTxManager(ctx context.Context, client *mongo.Client) (*TxManager, error) {
	ok, err := SupportsTransactions(ctx, client)
	if err != nil {
		return nil, err
	}
	return &TxManager{client: client, transactional: ok}, nil
}

// Transactional reports whether WithTx opens real transactions.
func (m *TxManager) Transactional() bool { return m.transactional }

func (m *TxManager) WithTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	if !m.transactional {
		return fn(ctx, nil)
	}
	sess, err := m.client.StartSession()
	if err != nil {
		return err
	}
	defer sess.EndSession(context.WithoutCancel(ctx))

	_, err = sess.WithTransaction(ctx, func(sc context.Context) (any, error) {
		return nil, fn(sc, sess)
	})
	return err
}

type helloReply struct {
	SetName string `bson:"setName"`
	Msg     string `bson:"msg"`
}

// transactional is true for replica set members and mongos routers.
func (h helloReply) transactional() bool {
	return h.SetName != "" || h.Msg == "isdbgrid"
}

// SupportsTransactions asks the server which topology it belongs to.
func SupportsTransactions(ctx context.Context, client *mongo.Client) (bool, error) {
	var reply helloReply
	if err := client.Database("admin").RunCommand(ctx, bson.D{{Key: "hello", Value: 1}}).Decode(&reply); err != nil {
		return false, fmt.Errorf("mongo: hello: %w", err)
	}
	return reply.transactional(), nil
}

// mapError translates driver errors onto domain errors.
func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return domain.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return domain.ErrAlreadyExists
	default:
		return errors.Join(domain.ErrOperationFailed, err)
	}
}
