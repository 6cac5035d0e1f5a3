package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/parceltrack/internal/model"
	"github.com/mmeshcher/parceltrack/internal/validation"
)

const selectAccount = `
	SELECT id, kind, name, document, rg, email, phone, login, password_hash, is_active,
	       license_category, license_number, vehicle, created_at
	FROM accounts`

func scanAccount(row pgx.Row) (*model.Account, error) {
	var (
		a    model.Account
		kind string
	)

	err := row.Scan(
		&a.ID, &kind, &a.Name, &a.Document, &a.RG, &a.Email, &a.Phone, &a.Login, &a.PasswordHash, &a.IsActive,
		&a.License.Category, &a.License.Number, &a.License.Vehicle, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.Kind = model.AccountKind(kind)
	if !a.Kind.Valid() {
		return nil, fmt.Errorf("account %s: unknown kind %q", a.ID, kind)
	}
	a.CreatedAt = a.CreatedAt.UTC()

	return &a, nil
}

func accountError(err error, op string) error {
	if c, ok := uniqueViolation(err); ok {
		switch c {
		case constraintLogin:
			return ErrLoginExists
		case constraintDocument:
			return ErrDocumentExists
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// CreateAccount сохраняет новую учётную запись.
func (r *PostgresRepository) CreateAccount(ctx context.Context, a *model.Account) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO accounts (
			id, kind, name, document, document_digits, rg, email, phone, login, password_hash, is_active,
			license_category, license_number, vehicle, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		a.ID, string(a.Kind), a.Name, a.Document, validation.DigitsOnly(a.Document), a.RG, a.Email, a.Phone,
		a.Login, a.PasswordHash, a.IsActive,
		a.License.Category, a.License.Number, a.License.Vehicle, a.CreatedAt,
	)
	if err != nil {
		return accountError(err, "create account")
	}
	return nil
}

// GetAccount возвращает учётную запись по идентификатору.
func (r *PostgresRepository) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	a, err := scanAccount(r.pool.QueryRow(ctx, selectAccount+` WHERE id::text = $1`, id))
	if err != nil {
		if isNotFound(err) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

// GetAccountByLogin возвращает учётную запись по логину без учёта регистра.
func (r *PostgresRepository) GetAccountByLogin(ctx context.Context, login string) (*model.Account, error) {
	a, err := scanAccount(r.pool.QueryRow(ctx, selectAccount+` WHERE login <> '' AND lower(login) = lower($1)`, login))
	if err != nil {
		if isNotFound(err) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("get account by login: %w", err)
	}
	return a, nil
}

// ListAccounts возвращает учётные записи указанного вида, упорядоченные по имени.
func (r *PostgresRepository) ListAccounts(ctx context.Context, filter model.AccountFilter) ([]model.Account, error) {
	pattern := ""
	if filter.Query != "" {
		pattern = "%" + escapeLike(filter.Query) + "%"
	}

	rows, err := r.pool.Query(ctx, selectAccount+`
		 WHERE ($1 = '' OR kind = $1)
		   AND ($2 = '' OR name ILIKE $2 OR document ILIKE $2 OR email ILIKE $2 OR vehicle ILIKE $2)
		 ORDER BY name, created_at`,
		string(filter.Kind), pattern,
	)
	if err != nil {
		return nil, fmt.Errorf("select accounts: %w", err)
	}
	defer rows.Close()

	var res []model.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		res = append(res, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// CountAccounts возвращает число учётных записей указанного вида.
func (r *PostgresRepository) CountAccounts(ctx context.Context, kind model.AccountKind) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM accounts WHERE kind = $1`, string(kind)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count accounts: %w", err)
	}
	return n, nil
}

// DocumentExists сообщает, зарегистрирован ли документ у учётной записи указанного вида.
// Сравнение ведётся только по цифрам; excludeID исключает саму редактируемую запись.
func (r *PostgresRepository) DocumentExists(ctx context.Context, kind model.AccountKind, document, excludeID string) (bool, error) {
	digits := validation.DigitsOnly(document)
	if digits == "" {
		return false, nil
	}

	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM accounts
			WHERE kind = $1 AND document_digits = $2 AND ($3 = '' OR id::text <> $3))`,
		string(kind), digits, excludeID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("document exists: %w", err)
	}
	return exists, nil
}

// UpdateAccount обновляет профиль учётной записи. Пустой PasswordHash оставляет
// пароль прежним; вид, активность и дата создания не меняются.
func (r *PostgresRepository) UpdateAccount(ctx context.Context, a *model.Account) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE accounts
		 SET name = $2, document = $3, document_digits = $4, rg = $5, email = $6, phone = $7,
		     login = $8, license_category = $9, license_number = $10, vehicle = $11,
		     password_hash = COALESCE(NULLIF($12, ''), password_hash)
		 WHERE id::text = $1`,
		a.ID, a.Name, a.Document, validation.DigitsOnly(a.Document), a.RG, a.Email, a.Phone,
		a.Login, a.License.Category, a.License.Number, a.License.Vehicle, a.PasswordHash,
	)
	if err != nil {
		return accountError(err, "update account")
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// SetAccountActive включает или отключает учётную запись.
func (r *PostgresRepository) SetAccountActive(ctx context.Context, id string, active bool) error {
	cmdTag, err := r.pool.Exec(ctx, `UPDATE accounts SET is_active = $2 WHERE id::text = $1`, id, active)
	if err != nil {
		return fmt.Errorf("set account active: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// SetPasswordHash сохраняет новый хеш пароля.
func (r *PostgresRepository) SetPasswordHash(ctx context.Context, id, hash string) error {
	cmdTag, err := r.pool.Exec(ctx, `UPDATE accounts SET password_hash = $2 WHERE id::text = $1`, id, hash)
	if err != nil {
		return fmt.Errorf("set password hash: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}
