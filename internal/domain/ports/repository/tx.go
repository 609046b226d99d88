package repository

import "context"

type Tx interface{}

var NoTX interface{}

// TransactionManager runs fn inside a store transaction and passes the
// store-specific handle via tx (pgx.Tx for Postgres, a session context for
// Mongo). Repositories must accept a nil tx as the non-transactional path.
type TransactionManager interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
