package validation

import (
	"errors"
	"fmt"
	"strings"
)

const (
	orderNumberWidth = 4
	// MaxOrderNumber задаёт наибольший номер заказа, представимый четырьмя цифрами.
	MaxOrderNumber = 9999
)

// ErrInvalidOrderNumber возвращается, если номер заказа нельзя привести к четырём цифрам.
var ErrInvalidOrderNumber = errors.New("invalid order number")

// FormatOrderNumber форматирует номер заказа в каноническую четырёхзначную строку.
func FormatOrderNumber(n int) string {
	return fmt.Sprintf("%0*d", orderNumberWidth, n)
}

// IsCanonicalOrderNumber сообщает, состоит ли номер ровно из четырёх цифр.
func IsCanonicalOrderNumber(s string) bool {
	return len(s) == orderNumberWidth && DigitsOnly(s) == s
}

// NormalizeOrderNumber приводит введённый пользователем номер к каноническому виду:
// "7", "#7" и "ENT0007" превращаются в "0007". Номера без цифр и длиннее четырёх
// значащих цифр отклоняются.
func NormalizeOrderNumber(raw string) (string, error) {
	digits := DigitsOnly(raw)
	if digits == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidOrderNumber, raw)
	}

	significant := strings.TrimLeft(digits, "0")
	if len(significant) > orderNumberWidth {
		return "", fmt.Errorf("%w: %q", ErrInvalidOrderNumber, raw)
	}

	return strings.Repeat("0", orderNumberWidth-len(significant)) + significant, nil
}
