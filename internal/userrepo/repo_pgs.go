// Package userrepo manages repository layer of users.
package userrepo

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/go-petr/pet-wallet/internal/accountrepo"
	"github.com/go-petr/pet-wallet/internal/domain"
	"github.com/go-petr/pet-wallet/pkg/dbpkg"
	"github.com/go-petr/pet-wallet/pkg/errorspkg"
)

// RepoPGS facilitates user repository layer logic.
type RepoPGS struct {
	db   dbpkg.SQLInterface
	conn *sql.DB
}

// NewTxRepoPGS returns user RepoPGS bound to an existing transaction or
// connection. It cannot start new transactions.
func NewTxRepoPGS(db dbpkg.SQLInterface) *RepoPGS {
	return &RepoPGS{
		db: db,
	}
}

// NewRepoPGS returns user RepoPGS with connection to start transactions.
func NewRepoPGS(db *sql.DB) *RepoPGS {
	return &RepoPGS{
		db:   db,
		conn: db,
	}
}

const userColumns = `id, username, hashed_password, first_name, last_name, password_changed_at, created_at`

func scanUser(row interface{ Scan(...any) error }) (domain.User, error) {
	var u domain.User

	err := row.Scan(
		&u.ID,
		&u.Username,
		&u.HashedPassword,
		&u.FirstName,
		&u.LastName,
		&u.PasswordChangedAt,
		&u.CreatedAt,
	)

	return u, err
}

const createQuery = `
INSERT INTO users (
    id,
    username,
    hashed_password,
    first_name,
    last_name
) VALUES (
    $1, $2, $3, $4, $5
) RETURNING ` + userColumns

// Create creates the user and then returns it.
func (r *RepoPGS) Create(ctx context.Context, arg domain.CreateUserParams) (domain.User, error) {
	l := zerolog.Ctx(ctx)

	row := r.db.QueryRowContext(ctx, createQuery,
		arg.ID,
		arg.Username,
		arg.HashedPassword,
		arg.FirstName,
		arg.LastName,
	)

	u, err := scanUser(row)
	if err != nil {
		l.Error().Err(err).Msgf("Create(ctx, %v)", arg.Username)

		if dbpkg.IsUniqueViolation(err) && dbpkg.Constraint(err) == "users_username_key" {
			return u, domain.ErrUsernameAlreadyExists
		}

		return u, errorspkg.ErrInternal
	}

	return u, nil
}

// CreateWithAccount creates the user and provisions its account with the
// initial balance in one database transaction. The account id equals the
// user id.
func (r *RepoPGS) CreateWithAccount(ctx context.Context, arg domain.CreateUserParams) (domain.User, error) {
	l := zerolog.Ctx(ctx)

	var u domain.User

	if r.conn == nil {
		l.Error().Msg("CreateWithAccount called on a transaction bound repository")
		return u, errorspkg.ErrInternal
	}

	tx, err := r.conn.BeginTx(ctx, nil)
	if err != nil {
		l.Error().Err(err).Send()
		return u, errorspkg.ErrInternal
	}

	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			l.Error().Err(err).Send()
		}
	}()

	u, err = NewTxRepoPGS(tx).Create(ctx, arg)
	if err != nil {
		return domain.User{}, err
	}

	if _, err = accountrepo.NewTxRepoPGS(tx).Create(ctx, u.ID, arg.InitialBalance); err != nil {
		return domain.User{}, err
	}

	if err = tx.Commit(); err != nil {
		l.Error().Err(err).Send()
		return domain.User{}, errorspkg.ErrInternal
	}

	return u, nil
}

const getQuery = `
SELECT ` + userColumns + `
FROM users
WHERE username = $1
`

// Get returns the user with the given username.
func (r *RepoPGS) Get(ctx context.Context, username string) (domain.User, error) {
	l := zerolog.Ctx(ctx)

	u, err := scanUser(r.db.QueryRowContext(ctx, getQuery, username))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return u, domain.ErrUserNotFound
		}

		l.Error().Err(err).Send()

		return u, errorspkg.ErrInternal
	}

	return u, nil
}

const getByIDQuery = `
SELECT ` + userColumns + `
FROM users
WHERE id = $1
`

// GetByID returns the user with the given id.
func (r *RepoPGS) GetByID(ctx context.Context, id string) (domain.User, error) {
	l := zerolog.Ctx(ctx)

	if _, err := uuid.Parse(id); err != nil {
		return domain.User{}, domain.ErrUserNotFound
	}

	u, err := scanUser(r.db.QueryRowContext(ctx, getByIDQuery, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return u, domain.ErrUserNotFound
		}

		l.Error().Err(err).Send()

		return u, errorspkg.ErrInternal
	}

	return u, nil
}

const updateQuery = `
UPDATE users
SET
    hashed_password = COALESCE($2::varchar, hashed_password),
    password_changed_at = CASE WHEN $2::varchar IS NULL THEN password_changed_at ELSE now() END,
    first_name = COALESCE($3::varchar, first_name),
    last_name = COALESCE($4::varchar, last_name)
WHERE id = $1
RETURNING ` + userColumns

// Update applies the non-nil fields of arg to the user with the given id.
func (r *RepoPGS) Update(ctx context.Context, id string, arg domain.UpdateUserParams) (domain.User, error) {
	l := zerolog.Ctx(ctx)

	if _, err := uuid.Parse(id); err != nil {
		return domain.User{}, domain.ErrUserNotFound
	}

	row := r.db.QueryRowContext(ctx, updateQuery,
		id,
		nullString(arg.HashedPassword),
		nullString(arg.FirstName),
		nullString(arg.LastName),
	)

	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return u, domain.ErrUserNotFound
		}

		l.Error().Err(err).Msgf("Update(ctx, %v)", id)

		return u, errorspkg.ErrInternal
	}

	return u, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}

	return sql.NullString{String: *s, Valid: true}
}

const listQuery = `
SELECT ` + userColumns + `
FROM users
WHERE first_name ILIKE $1 OR last_name ILIKE $1
ORDER BY last_name, first_name, id
LIMIT $2 OFFSET $3
`

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// List returns users whose first or last name contains filter, ignoring case.
func (r *RepoPGS) List(ctx context.Context, filter string, limit, offset int32) ([]domain.User, error) {
	l := zerolog.Ctx(ctx)

	pattern := "%" + likeEscaper.Replace(filter) + "%"

	rows, err := r.db.QueryContext(ctx, listQuery, pattern, limit, offset)
	if err != nil {
		l.Error().Err(err).Send()
		return nil, errorspkg.ErrInternal
	}
	defer rows.Close()

	items := []domain.User{}

	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			l.Error().Err(err).Send()
			return nil, errorspkg.ErrInternal
		}

		items = append(items, u)
	}

	if err := rows.Err(); err != nil {
		l.Error().Err(err).Send()
		return nil, errorspkg.ErrInternal
	}

	return items, nil
}
