package accounts

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/authflow/pkg/pg"
)

// Postgres is a Directory backed by the accounts table.
type Postgres struct {
	db  *pgxpool.Pool
	now func() time.Time
}

var _ Directory = (*Postgres)(nil)

// NewPostgres expects the schema from Migrations to be applied.
func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db, now: time.Now}
}

const selectColumns = `
	id, login, provider, COALESCE(external_id, ''), name, nickname, email, phone,
	COALESCE(to_char(birth_date, 'YYYY-MM-DD'), ''), address, avatar_url, verified,
	created_at, updated_at`

// constraintFields maps unique constraints to the field names callers report.
var constraintFields = map[string]string{
	"accounts_login_key":    "login",
	"accounts_nickname_key": "nickname",
	"accounts_phone_key":    "phone_number",
	"accounts_email_key":    "email",
	"accounts_external_key": "external_id",
}

func (p *Postgres) ByExternalID(ctx context.Context, provider, externalID string) (Account, error) {
	return p.queryOne(ctx, `SELECT `+selectColumns+` FROM accounts WHERE provider = $1 AND external_id = $2`, provider, externalID)
}

func (p *Postgres) ByEmail(ctx context.Context, email string) (Account, error) {
	return p.queryOne(ctx, `SELECT `+selectColumns+` FROM accounts WHERE lower(email) = lower($1)`, email)
}

func (p *Postgres) ByPhone(ctx context.Context, phone string) (Account, error) {
	return p.queryOne(ctx, `SELECT `+selectColumns+` FROM accounts WHERE phone = $1`, phone)
}

func (p *Postgres) NicknameTaken(ctx context.Context, nickname string) (bool, error) {
	var exists bool
	err := p.db.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM accounts WHERE nickname = $1)", nickname).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check nickname: %w", err)
	}
	return exists, nil
}

func (p *Postgres) Create(ctx context.Context, a Account) (Account, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	now := p.now().UTC()

	row := p.db.QueryRow(ctx, `
		INSERT INTO accounts (id, login, provider, external_id, name, nickname, email, phone,
		                      birth_date, address, avatar_url, verified, created_at, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, NULLIF($9, '')::date, $10, $11, $12, $13, $13)
		RETURNING `+selectColumns,
		a.ID, a.Login, a.Provider, a.ExternalID, a.Name, a.Nickname, a.Email, a.Phone,
		a.BirthDate, a.Address, a.AvatarURL, a.Verified, now,
	)

	out, err := scanAccount(row)
	if err != nil {
		return Account{}, p.mapWriteError("create", err)
	}
	return out, nil
}

func (p *Postgres) Update(ctx context.Context, a Account) (Account, error) {
	row := p.db.QueryRow(ctx, `
		UPDATE accounts SET
			login = $2, provider = $3, external_id = NULLIF($4, ''), name = $5, nickname = $6,
			email = $7, phone = $8, birth_date = NULLIF($9, '')::date, address = $10,
			avatar_url = $11, verified = $12, updated_at = $13
		WHERE id = $1
		RETURNING `+selectColumns,
		a.ID, a.Login, a.Provider, a.ExternalID, a.Name, a.Nickname, a.Email, a.Phone,
		a.BirthDate, a.Address, a.AvatarURL, a.Verified, p.now().UTC(),
	)

	out, err := scanAccount(row)
	if err != nil {
		return Account{}, p.mapWriteError("update", err)
	}
	return out, nil
}

func (p *Postgres) queryOne(ctx context.Context, query string, args ...any) (Account, error) {
	a, err := scanAccount(p.db.QueryRow(ctx, query, args...))
	if err != nil {
		if pg.IsNotFoundError(err) {
			return Account{}, ErrNotFound
		}
		return Account{}, fmt.Errorf("failed to get account: %w", err)
	}
	return a, nil
}

func (p *Postgres) mapWriteError(op string, err error) error {
	switch {
	case pg.IsNotFoundError(err):
		return ErrNotFound
	case pg.IsDuplicateKeyError(err):
		field, ok := constraintFields[pg.ConstraintName(err)]
		if !ok {
			field = "account"
		}
		return &DuplicateError{Fields: map[string]string{field: field + " is already in use"}}
	default:
		return fmt.Errorf("failed to %s account: %w", op, err)
	}
}

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(
		&a.ID, &a.Login, &a.Provider, &a.ExternalID, &a.Name, &a.Nickname, &a.Email, &a.Phone,
		&a.BirthDate, &a.Address, &a.AvatarURL, &a.Verified, &a.CreatedAt, &a.UpdatedAt,
	)
	return a, err
}
