// Package middleware содержит HTTP middleware сервиса учёта доставок.
package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/mmeshcher/parceltrack/internal/model"
)

type contextKey string

const identityKey contextKey = "identity"

const (
	// TokenCookieName задаёт имя cookie с токеном сессии.
	TokenCookieName = "access_token"
	defaultTokenTTL = 8 * time.Hour
)

var (
	// ErrInvalidToken возвращается для токена с неверным форматом или подписью.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired возвращается для просроченного токена.
	ErrTokenExpired = errors.New("token expired")
)

type claims struct {
	Subject   string   `json:"sub"`
	Login     string   `json:"login"`
	Name      string   `json:"name"`
	Roles     []string `json:"roles,omitempty"`
	ExpiresAt int64    `json:"exp"`
}

// TokenIssuer выпускает и проверяет подписанные токены сессии и выполняет
// аутентификацию запросов.
type TokenIssuer struct {
	secretKey []byte
	ttl       time.Duration
	now       func() time.Time
}

// NewTokenIssuer создаёт TokenIssuer. При пустом секрете генерируется случайный
// ключ, и токены перестают действовать после перезапуска.
func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	key := []byte(secret)
	if len(key) == 0 {
		randomKey := make([]byte, 32)
		if _, err := rand.Read(randomKey); err == nil {
			key = randomKey
		} else {
			key = []byte("default-secret-key")
		}
	}
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}

	return &TokenIssuer{
		secretKey: key,
		ttl:       ttl,
		now:       time.Now,
	}
}

// Issue выпускает токен для identity и возвращает его вместе со сроком действия.
func (a *TokenIssuer) Issue(identity model.Identity) (string, time.Time, error) {
	expires := a.now().Add(a.ttl)

	payload, err := json.Marshal(claims{
		Subject:   identity.AccountID,
		Login:     identity.Login,
		Name:      identity.Name,
		Roles:     identity.Roles,
		ExpiresAt: expires.Unix(),
	})
	if err != nil {
		return "", time.Time{}, err
	}

	encoded := base64.RawURLEncoding.EncodeToString(payload)
	return encoded + "." + a.sign(encoded), expires, nil
}

// Parse проверяет подпись и срок действия токена.
func (a *TokenIssuer) Parse(token string) (model.Identity, error) {
	encoded, signature, ok := strings.Cut(token, ".")
	if !ok || encoded == "" {
		return model.Identity{}, ErrInvalidToken
	}

	if !hmac.Equal([]byte(signature), []byte(a.sign(encoded))) {
		return model.Identity{}, ErrInvalidToken
	}

	payload, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return model.Identity{}, ErrInvalidToken
	}

	var c claims
	if err := json.Unmarshal(payload, &c); err != nil || c.Subject == "" {
		return model.Identity{}, ErrInvalidToken
	}
	if !a.now().Before(time.Unix(c.ExpiresAt, 0)) {
		return model.Identity{}, ErrTokenExpired
	}

	return model.Identity{
		AccountID: c.Subject,
		Login:     c.Login,
		Name:      c.Name,
		Roles:     c.Roles,
	}, nil
}

func (a *TokenIssuer) sign(encoded string) string {
	mac := hmac.New(sha256.New, a.secretKey)
	mac.Write([]byte(encoded))
	return hex.EncodeToString(mac.Sum(nil))
}

func tokenFromRequest(r *http.Request) (string, bool) {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") && token != "" {
			return strings.TrimSpace(token), true
		}
	}

	cookie, err := r.Cookie(TokenCookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}

// Middleware проверяет токен из заголовка Authorization или cookie и добавляет
// личность пользователя в контекст запроса.
func (a *TokenIssuer) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := tokenFromRequest(r)
		if !ok {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		identity, err := a.Parse(token)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
	})
}

// RequireRole пропускает только запросы пользователей с одной из ролей roles.
// Должен стоять после Middleware.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := IdentityFromContext(r.Context())
			if !ok {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			for _, role := range roles {
				if slices.Contains(identity.Roles, role) {
					next.ServeHTTP(w, r)
					return
				}
			}
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		})
	}
}

// SetTokenCookie устанавливает cookie с токеном сессии.
func SetTokenCookie(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     TokenCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

// ClearTokenCookie удаляет cookie с токеном сессии.
func ClearTokenCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     TokenCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

// WithIdentity возвращает контекст с личностью пользователя.
func WithIdentity(ctx context.Context, identity model.Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// IdentityFromContext извлекает личность пользователя из контекста запроса.
func IdentityFromContext(ctx context.Context) (model.Identity, bool) {
	id, ok := ctx.Value(identityKey).(model.Identity)
	return id, ok
}
