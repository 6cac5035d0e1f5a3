// Package validation содержит функции валидации входных данных.
package validation

import (
	"strings"
	"unicode"
)

const cpfLength = 11

// DigitsOnly возвращает строку, из которой удалены все символы, кроме десятичных цифр.
func DigitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// IsValidCPF проверяет контрольные цифры CPF.
// Пустое значение считается корректным: обязательность проверяется отдельно.
func IsValidCPF(raw string) (valid bool) {
	if strings.TrimFunc(raw, unicode.IsSpace) == "" {
		return true
	}

	defer func() {
		if recover() != nil {
			valid = false
		}
	}()

	digits := DigitsOnly(raw)
	if len(digits) != cpfLength {
		return false
	}

	nums := make([]int, cpfLength)
	same := true
	for i := range digits {
		nums[i] = int(digits[i] - '0')
		if nums[i] != nums[0] {
			same = false
		}
	}
	if same {
		return false
	}

	return nums[9] == cpfCheckDigit(nums[:9]) && nums[10] == cpfCheckDigit(nums[:10])
}

// cpfCheckDigit вычисляет контрольную цифру по весам len(nums)+1..2.
func cpfCheckDigit(nums []int) int {
	sum := 0
	weight := len(nums) + 1
	for _, n := range nums {
		sum += n * weight
		weight--
	}

	rem := sum % 11
	if rem < 2 {
		return 0
	}
	return 11 - rem
}
