package model

import "time"

// AccountKind различает учётные записи водителей и операторов.
type AccountKind string

const (
	AccountKindDriver AccountKind = "driver"
	AccountKindUser   AccountKind = "user"
)

// Valid проверяет, что вид учётной записи известен.
func (k AccountKind) Valid() bool {
	return k == AccountKindDriver || k == AccountKindUser
}

// DriverLicense содержит данные водительского удостоверения и транспорта.
type DriverLicense struct {
	Category string
	Number   string
	Vehicle  string
}

// Account описывает учётную запись водителя или пользователя системы.
type Account struct {
	ID           string
	Kind         AccountKind
	Name         string
	Document     string
	RG           string
	Email        string
	Phone        string
	Login        string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time

	License DriverLicense
}

// AccountFilter задаёт параметры выборки учётных записей.
type AccountFilter struct {
	Kind  AccountKind
	Query string
}

// Identity содержит результат успешной аутентификации, из которого выпускается токен сессии.
type Identity struct {
	AccountID string
	Login     string
	Name      string
	Roles     []string
}
