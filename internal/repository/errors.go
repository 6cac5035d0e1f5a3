package repository

import (
	"errors"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrDeliveryNotFound возвращается, если доставка с указанным номером не найдена.
	ErrDeliveryNotFound = errors.New("delivery not found")
	// ErrOrderNumberTaken возвращается, если номер заказа уже занят другой доставкой.
	ErrOrderNumberTaken = errors.New("order number already taken")
	// ErrConcurrentUpdate возвращается, если запись изменилась между чтением и условным обновлением.
	ErrConcurrentUpdate = errors.New("delivery changed concurrently")
	// ErrAccountNotFound возвращается, если учётная запись не найдена.
	ErrAccountNotFound = errors.New("account not found")
	// ErrLoginExists возвращается при попытке занять логин, принадлежащий другой учётной записи.
	ErrLoginExists = errors.New("login already exists")
	// ErrDocumentExists возвращается при повторной регистрации документа.
	ErrDocumentExists = errors.New("document already registered")
)

const (
	constraintOrderNumber = "deliveries_order_number_key"
	constraintLogin       = "accounts_login_uidx"
	constraintDocument    = "accounts_document_uidx"
)

func uniqueViolation(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return pgErr.ConstraintName, true
	}
	return "", false
}

func isNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func isConnectionError(err error) bool {
	// Упрощенная проверка на ошибки соединения
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// escapeLike экранирует спецсимволы шаблона LIKE.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
