// Package password реализует хеширование и проверку паролей на основе PBKDF2.
//
// Хеш самодостаточен: в нём закодированы алгоритм, число итераций и соль, поэтому
// для проверки не нужно хранить ничего, кроме строки хеша. Формат совместим с
// хешами ASP.NET Identity v3 (маркер 0x01) и v2 (маркер 0x00), которыми подписаны
// учётные записи, перенесённые из прежней системы.
package password

import (
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"

	"golang.org/x/crypto/pbkdf2"
)

// Result описывает исход проверки пароля.
type Result int

const (
	Failed Result = iota
	Success
	SuccessRehashNeeded
)

func (r Result) String() string {
	switch r {
	case Success:
		return "success"
	case SuccessRehashNeeded:
		return "success_rehash_needed"
	default:
		return "failed"
	}
}

// OK сообщает, совпал ли пароль.
func (r Result) OK() bool {
	return r == Success || r == SuccessRehashNeeded
}

// PRF задаёт псевдослучайную функцию PBKDF2. В хеше она кодируется как uint32.
type PRF uint32

const (
	HMACSHA1 PRF = iota
	HMACSHA256
	HMACSHA512
)

func (p PRF) hash() (func() hash.Hash, bool) {
	switch p {
	case HMACSHA1:
		return sha1.New, true
	case HMACSHA256:
		return sha256.New, true
	case HMACSHA512:
		return sha512.New, true
	}
	return nil, false
}

const (
	formatV2 = 0x00
	formatV3 = 0x01

	v2Iterations = 1000
	v2SaltSize   = 16
	v2SubkeySize = 32

	v3HeaderSize  = 13
	minSaltSize   = 16
	minSubkeySize = 16

	// DefaultIterations задаёт число итераций для новых хешей.
	DefaultIterations = 100_000
	// MaxIterations ограничивает число итераций, принимаемое из сохранённого хеша.
	MaxIterations = 10 * DefaultIterations
	saltSize          = 16
	subkeySize        = 32
)

// ErrEmptyPassword возвращается при попытке захешировать пустой пароль.
var ErrEmptyPassword = errors.New("empty password")

// Hasher хеширует пароли с заданными параметрами.
type Hasher struct {
	prf        PRF
	iterations int
}

// NewHasher создаёт Hasher. Нулевые параметры заменяются значениями по умолчанию,
// значения больше MaxIterations уменьшаются до него.
func NewHasher(iterations int) *Hasher {
	if iterations <= 0 {
		iterations = DefaultIterations
	}
	iterations = min(iterations, MaxIterations)
	return &Hasher{prf: HMACSHA512, iterations: iterations}
}

var defaultHasher = NewHasher(DefaultIterations)

// Hash хеширует пароль параметрами по умолчанию.
func Hash(secret string) (string, error) {
	return defaultHasher.Hash(secret)
}

// Verify проверяет пароль по хешу параметрами по умолчанию.
func Verify(encoded, secret string) Result {
	return defaultHasher.Verify(encoded, secret)
}

// Hash возвращает base64-представление хеша в формате v3.
func (h *Hasher) Hash(secret string) (string, error) {
	if secret == "" {
		return "", ErrEmptyPassword
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	fn, _ := h.prf.hash()
	subkey := pbkdf2.Key([]byte(secret), salt, h.iterations, subkeySize, fn)

	out := make([]byte, v3HeaderSize+len(salt)+len(subkey))
	out[0] = formatV3
	binary.BigEndian.PutUint32(out[1:], uint32(h.prf))
	binary.BigEndian.PutUint32(out[5:], uint32(h.iterations))
	binary.BigEndian.PutUint32(out[9:], uint32(len(salt)))
	copy(out[v3HeaderSize:], salt)
	copy(out[v3HeaderSize+len(salt):], subkey)

	return base64.StdEncoding.EncodeToString(out), nil
}

// Verify сравнивает пароль с хешем за время, не зависящее от позиции расхождения.
// Повреждённый хеш считается несовпадением.
func (h *Hasher) Verify(encoded, secret string) Result {
	if encoded == "" || secret == "" {
		return Failed
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(raw) == 0 {
		return Failed
	}

	switch raw[0] {
	case formatV2:
		if verifyV2(raw, secret) {
			return SuccessRehashNeeded
		}
	case formatV3:
		prf, iterations, ok := verifyV3(raw, secret)
		if !ok {
			return Failed
		}
		if prf != h.prf || iterations < h.iterations {
			return SuccessRehashNeeded
		}
		return Success
	}

	return Failed
}

func verifyV2(raw []byte, secret string) bool {
	if len(raw) != 1+v2SaltSize+v2SubkeySize {
		return false
	}
	salt := raw[1 : 1+v2SaltSize]
	expected := raw[1+v2SaltSize:]

	actual := pbkdf2.Key([]byte(secret), salt, v2Iterations, v2SubkeySize, sha1.New)
	return subtle.ConstantTimeCompare(actual, expected) == 1
}

func verifyV3(raw []byte, secret string) (PRF, int, bool) {
	if len(raw) < v3HeaderSize {
		return 0, 0, false
	}

	prf := PRF(binary.BigEndian.Uint32(raw[1:]))
	iterations := int(binary.BigEndian.Uint32(raw[5:]))
	saltLen := int(binary.BigEndian.Uint32(raw[9:]))

	fn, ok := prf.hash()
	if !ok || iterations <= 0 || iterations > MaxIterations || saltLen < minSaltSize {
		return 0, 0, false
	}
	if len(raw) < v3HeaderSize+saltLen+minSubkeySize {
		return 0, 0, false
	}

	salt := raw[v3HeaderSize : v3HeaderSize+saltLen]
	expected := raw[v3HeaderSize+saltLen:]

	actual := pbkdf2.Key([]byte(secret), salt, iterations, len(expected), fn)
	return prf, iterations, subtle.ConstantTimeCompare(actual, expected) == 1
}
