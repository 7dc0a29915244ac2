package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/inkwell/account-service/internal/core/domain"
	"github.com/inkwell/account-service/internal/core/ports"
)

const (
	tableAccounts = "accounts"

	constraintEmail    = "accounts_email_key"
	constraintUsername = "accounts_username_key"
	constraintCode     = "accounts_confirmation_token_key"
)

var accountColumns = []string{
	"id",
	"email",
	"username",
	"name",
	"last_name",
	"password_hash",
	"role",
	"permissions",
	"active",
	"email_confirmed",
	"confirmation_token",
	"confirmation_sent_at",
	"confirmation_expires",
	"created_at",
	"updated_at",
	"last_login",
}

// AccountRepository implements ports.AccountRepository on PostgreSQL. Ids
// come from the BIGSERIAL primary key.
type AccountRepository struct {
	db    *sql.DB
	sb    sq.StatementBuilderType
	types *pgtype.Map
}

func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{
		db:    db,
		sb:    sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		types: pgtype.NewMap(),
	}
}

func (r *AccountRepository) Create(ctx context.Context, acc *domain.Account) (*domain.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	query, args, err := r.sb.Insert(tableAccounts).
		Columns(accountColumns[1:]...).
		Values(
			acc.Email,
			nullString(acc.Username),
			acc.Name,
			acc.LastName,
			acc.PasswordHash,
			acc.Role,
			permissionsArg(acc.Permissions),
			acc.Active,
			acc.EmailConfirmed,
			nullString(acc.ConfirmationToken),
			nullTime(acc.ConfirmationSentAt),
			nullTime(acc.ConfirmationExpires),
			acc.CreatedAt.UTC(),
			acc.UpdatedAt.UTC(),
			nullTime(acc.LastLogin),
		).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build insert: %w", err)
	}

	var id int64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return nil, mapWriteError("insert account", err)
	}

	created := acc.Clone()
	created.ID = id
	return created, nil
}

func mapWriteError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		switch pgErr.ConstraintName {
		case constraintUsername:
			return domain.ErrUsernameTaken
		case constraintCode:
			return domain.ErrConfirmationCodeTaken
		}
		return domain.ErrEmailTaken
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (r *AccountRepository) findOne(ctx context.Context, where sq.Sqlizer) (*domain.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	query, args, err := r.sb.Select(accountColumns...).From(tableAccounts).Where(where).Limit(1).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	acc, err := r.scan(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("find account: %w", err)
	}
	return acc, nil
}

func (r *AccountRepository) FindByID(ctx context.Context, id int64) (*domain.Account, error) {
	return r.findOne(ctx, sq.Eq{"id": id})
}

func (r *AccountRepository) FindByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return r.findOne(ctx, sq.Eq{"email": email})
}

func (r *AccountRepository) FindByUsername(ctx context.Context, username string) (*domain.Account, error) {
	if username == "" {
		return nil, domain.ErrAccountNotFound
	}
	return r.findOne(ctx, sq.Eq{"username": username})
}

func (r *AccountRepository) FindByConfirmationToken(ctx context.Context, token string) (*domain.Account, error) {
	if token == "" {
		return nil, domain.ErrAccountNotFound
	}
	return r.findOne(ctx, sq.Eq{"confirmation_token": token})
}

func (r *AccountRepository) Update(ctx context.Context, acc *domain.Account) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	query, args, err := r.sb.Update(tableAccounts).
		Set("email", acc.Email).
		Set("username", nullString(acc.Username)).
		Set("name", acc.Name).
		Set("last_name", acc.LastName).
		Set("password_hash", acc.PasswordHash).
		Set("role", acc.Role).
		Set("permissions", permissionsArg(acc.Permissions)).
		Set("active", acc.Active).
		Set("email_confirmed", acc.EmailConfirmed).
		Set("confirmation_token", nullString(acc.ConfirmationToken)).
		Set("confirmation_sent_at", nullTime(acc.ConfirmationSentAt)).
		Set("confirmation_expires", nullTime(acc.ConfirmationExpires)).
		Set("updated_at", acc.UpdatedAt.UTC()).
		Set("last_login", nullTime(acc.LastLogin)).
		Where(sq.Eq{"id": acc.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return mapWriteError("update account", err)
	}
	return requireAffected(res)
}

func (r *AccountRepository) Delete(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	query, args, err := r.sb.Delete(tableAccounts).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

func (r *AccountRepository) List(ctx context.Context, f ports.ListAccountsFilter) ([]*domain.Account, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	where := sq.And{}
	if f.Role != "" {
		where = append(where, sq.Eq{"role": f.Role})
	}
	if f.Permission != "" {
		where = append(where, sq.Expr("? = ANY(permissions)", f.Permission))
	}
	if f.Active != nil {
		where = append(where, sq.Eq{"active": *f.Active})
	}

	countQ := r.sb.Select("COUNT(*)").From(tableAccounts)
	listQ := r.sb.Select(accountColumns...).From(tableAccounts)
	if len(where) > 0 {
		countQ = countQ.Where(where)
		listQ = listQ.Where(where)
	}

	query, args, err := countQ.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count: %w", err)
	}
	var total int64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count accounts: %w", err)
	}

	query, args, err = listQ.
		OrderBy("id ASC").
		Offset(uint64(f.Skip)).
		Limit(uint64(f.Limit)).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build list: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	out := make([]*domain.Account, 0, f.Limit)
	for rows.Next() {
		acc, err := r.scan(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan account: %w", err)
		}
		out = append(out, acc)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list accounts: %w", err)
	}
	return out, total, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *AccountRepository) scan(row rowScanner) (*domain.Account, error) {
	var (
		acc                    domain.Account
		username, token        sql.NullString
		sentAt, expires, login sql.NullTime
		permissions            []string
	)
	err := row.Scan(
		&acc.ID,
		&acc.Email,
		&username,
		&acc.Name,
		&acc.LastName,
		&acc.PasswordHash,
		&acc.Role,
		r.types.SQLScanner(&permissions),
		&acc.Active,
		&acc.EmailConfirmed,
		&token,
		&sentAt,
		&expires,
		&acc.CreatedAt,
		&acc.UpdatedAt,
		&login,
	)
	if err != nil {
		return nil, err
	}

	acc.Username = username.String
	acc.ConfirmationToken = token.String
	if len(permissions) > 0 {
		acc.Permissions = permissions
	}
	acc.ConfirmationSentAt = timePtr(sentAt)
	acc.ConfirmationExpires = timePtr(expires)
	acc.LastLogin = timePtr(login)
	acc.CreatedAt = acc.CreatedAt.UTC()
	acc.UpdatedAt = acc.UpdatedAt.UTC()
	return &acc, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

// permissionsArg never yields nil so the NOT NULL column receives '{}'.
func permissionsArg(p []string) []string {
	if p == nil {
		return []string{}
	}
	return p
}
