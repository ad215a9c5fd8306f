// Package accountrepo manages repository layer of accounts.
//
// It holds the ledger store: one balance record per account, changed only
// through ledger.Tx transactions.
package accountrepo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/go-petr/pet-wallet/internal/domain"
	"github.com/go-petr/pet-wallet/internal/ledger"
	"github.com/go-petr/pet-wallet/pkg/dbpkg"
	"github.com/go-petr/pet-wallet/pkg/errorspkg"
)

// RepoPGS facilitates account repository layer logic on Postgres.
//
// Concurrency is pessimistic: GetForUpdate takes a row lock that is held
// until the transaction ends.
type RepoPGS struct {
	db   dbpkg.SQLInterface
	conn *sql.DB
}

// NewTxRepoPGS returns account RepoPGS bound to an existing transaction or
// connection. It cannot Begin new transactions.
func NewTxRepoPGS(db dbpkg.SQLInterface) *RepoPGS {
	return &RepoPGS{
		db: db,
	}
}

// NewRepoPGS returns account RepoPGS with connection to start transactions.
func NewRepoPGS(db *sql.DB) *RepoPGS {
	return &RepoPGS{
		db:   db,
		conn: db,
	}
}

// validID reports whether id can name an account at all. Ids are uuids;
// anything else cannot exist and would make Postgres fail the cast.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

const createQuery = `
INSERT INTO
    accounts (id, balance)
VALUES
    ($1, $2)
RETURNING id, balance, created_at
`

// Create provisions the account with the given id and initial balance.
func (r *RepoPGS) Create(ctx context.Context, id string, balance int64) (domain.Account, error) {
	l := zerolog.Ctx(ctx)

	row := r.db.QueryRowContext(ctx, createQuery, id, balance)

	var a domain.Account

	err := row.Scan(
		&a.ID,
		&a.Balance,
		&a.CreatedAt,
	)

	if err != nil {
		l.Error().Err(err).Msgf("Create(ctx, %v, %v)", id, balance)

		switch dbpkg.Constraint(err) {
		case "accounts_pkey":
			return a, domain.ErrAccountAlreadyExists
		case "accounts_id_fkey":
			return a, domain.ErrUserNotFound
		case "accounts_balance_check":
			return a, domain.ErrInvalidAmount
		}

		return a, errorspkg.ErrInternal
	}

	return a, nil
}

const getQuery = `
SELECT
	id, balance, created_at
FROM accounts
WHERE id = $1
`

// Get returns the committed state of the account with the given id.
func (r *RepoPGS) Get(ctx context.Context, id string) (domain.Account, error) {
	l := zerolog.Ctx(ctx)

	var a domain.Account

	if !validID(id) {
		return a, domain.ErrAccountNotFound
	}

	row := r.db.QueryRowContext(ctx, getQuery, id)

	err := row.Scan(
		&a.ID,
		&a.Balance,
		&a.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return a, domain.ErrAccountNotFound
		}

		l.Error().Err(err).Send()

		return a, errorspkg.ErrInternal
	}

	return a, nil
}

// Begin opens a ledger transaction.
//
// The transaction is bound to ctx: when ctx is done, database/sql rolls it
// back and every further call fails.
func (r *RepoPGS) Begin(ctx context.Context) (ledger.Tx, error) {
	l := zerolog.Ctx(ctx)

	if r.conn == nil {
		l.Error().Msg("Begin called on a transaction bound repository")
		return nil, errorspkg.ErrInternal
	}

	tx, err := r.conn.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		l.Error().Err(err).Send()
		return nil, errorspkg.ErrInternal
	}

	return &TxPGS{tx: tx, logger: l}, nil
}

// TxPGS is a ledger transaction backed by a Postgres transaction.
type TxPGS struct {
	tx     *sql.Tx
	logger *zerolog.Logger
}

// classify maps a driver error into the ledger error vocabulary.
func classify(err error) error {
	if dbpkg.IsConflict(err) {
		return domain.ErrConflict
	}

	return errorspkg.ErrInternal
}

const getForUpdateQuery = `
SELECT
	id, balance, created_at
FROM accounts
WHERE id = $1
FOR UPDATE
`

// GetForUpdate reads the account and locks its row until the transaction ends.
func (t *TxPGS) GetForUpdate(ctx context.Context, id string) (domain.Account, error) {
	var a domain.Account

	if !validID(id) {
		return a, domain.ErrAccountNotFound
	}

	row := t.tx.QueryRowContext(ctx, getForUpdateQuery, id)

	err := row.Scan(
		&a.ID,
		&a.Balance,
		&a.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return a, domain.ErrAccountNotFound
		}

		t.logger.Error().Err(err).Msgf("GetForUpdate(ctx, %v)", id)

		return a, classify(err)
	}

	return a, nil
}

const addBalanceQuery = `
UPDATE accounts
SET balance = balance + $1
WHERE id = $2
`

// ApplyDelta adds delta to the account balance.
func (t *TxPGS) ApplyDelta(ctx context.Context, id string, delta int64) error {
	if !validID(id) {
		return domain.ErrAccountNotFound
	}

	res, err := t.tx.ExecContext(ctx, addBalanceQuery, delta, id)
	if err != nil {
		t.logger.Error().Err(err).Msgf("ApplyDelta(ctx, %v, %v)", id, delta)

		if dbpkg.Constraint(err) == "accounts_balance_check" {
			return domain.ErrInsufficientBalance
		}

		return classify(err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		t.logger.Error().Err(err).Send()
		return errorspkg.ErrInternal
	}

	if n == 0 {
		return domain.ErrAccountNotFound
	}

	return nil
}

// Commit commits the transaction.
func (t *TxPGS) Commit() error {
	if err := t.tx.Commit(); err != nil {
		t.logger.Error().Err(err).Msg("Commit()")
		return classify(err)
	}

	return nil
}

// Abort rolls the transaction back. It is a no-op after Commit or Abort.
func (t *TxPGS) Abort() error {
	err := t.tx.Rollback()
	if err != nil && !errors.Is(err, sql.ErrTxDone) {
		t.logger.Error().Err(err).Msg("Abort()")
		return errorspkg.ErrInternal
	}

	return nil
}
