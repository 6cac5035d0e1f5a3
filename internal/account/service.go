// Package account управляет учётными записями водителей и операторов и проверяет
// учётные данные при входе.
package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/parceltrack/internal/model"
	"github.com/mmeshcher/parceltrack/internal/password"
	"github.com/mmeshcher/parceltrack/internal/repository"
	"github.com/mmeshcher/parceltrack/internal/validation"
)

var (
	// ErrInvalidCredentials возвращается при неизвестном логине, отключённой учётной
	// записи или неверном пароле. Причина наружу не раскрывается.
	ErrInvalidCredentials = errors.New("invalid login or password")
	// ErrWrongPassword возвращается, если при смене пароля неверно указан текущий.
	ErrWrongPassword = errors.New("current password is incorrect")
	// ErrInvalidDocument возвращается, если CPF не проходит проверку контрольных цифр.
	ErrInvalidDocument = errors.New("invalid CPF")
	// ErrInvalidKind возвращается для неизвестного вида учётной записи.
	ErrInvalidKind = errors.New("invalid account kind")
)

// Роли, выдаваемые в токене сессии.
const (
	RoleDriver   = "driver"
	RoleOperator = "user"
)

const defaultOperationTimeout = 3 * time.Second

// Repository описывает хранилище учётных записей.
type Repository interface {
	CreateAccount(ctx context.Context, a *model.Account) error
	GetAccount(ctx context.Context, id string) (*model.Account, error)
	GetAccountByLogin(ctx context.Context, login string) (*model.Account, error)
	ListAccounts(ctx context.Context, filter model.AccountFilter) ([]model.Account, error)
	CountAccounts(ctx context.Context, kind model.AccountKind) (int, error)
	DocumentExists(ctx context.Context, kind model.AccountKind, document, excludeID string) (bool, error)
	UpdateAccount(ctx context.Context, a *model.Account) error
	SetAccountActive(ctx context.Context, id string, active bool) error
	SetPasswordHash(ctx context.Context, id, hash string) error
}

// Metrics учитывает попытки входа. Может быть nil.
type Metrics interface {
	LoginAttempt(ok bool)
}

// Profile содержит редактируемые поля учётной записи. Пустой Password при
// обновлении оставляет пароль без изменений. IsActive учитывается только при
// регистрации.
type Profile struct {
	Name     string
	Document string
	RG       string
	Email    string
	Phone    string
	Login    string
	Password string
	IsActive bool
	License  model.DriverLicense
}

// Service реализует операции над учётными записями.
type Service struct {
	repo             Repository
	hasher           *password.Hasher
	metrics          Metrics
	logger           *zap.Logger
	operationTimeout time.Duration
	now              func() time.Time
}

// NewService создаёт сервис учётных записей.
func NewService(repo Repository, logger *zap.Logger, metrics Metrics, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = defaultOperationTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:             repo,
		hasher:           password.NewHasher(password.DefaultIterations),
		metrics:          metrics,
		logger:           logger,
		operationTimeout: timeout,
		now:              func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.operationTimeout)
}

func checkDocument(document string) error {
	if !validation.IsValidCPF(document) {
		return fmt.Errorf("%w: %s", ErrInvalidDocument, document)
	}
	return nil
}

// Register создаёт учётную запись вида kind. Документ проверяется по контрольным
// цифрам и на уникальность среди записей того же вида.
func (s *Service) Register(ctx context.Context, kind model.AccountKind, p Profile) (*model.Account, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	if err := checkDocument(p.Document); err != nil {
		return nil, err
	}
	return s.create(ctx, kind, p)
}

func (s *Service) create(ctx context.Context, kind model.AccountKind, p Profile) (*model.Account, error) {
	// Хеш считается до обращения к хранилищу и вне таймаута операции.
	hash, err := s.hasher.Hash(p.Password)
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if p.Document != "" {
		exists, err := s.repo.DocumentExists(ctx, kind, p.Document, "")
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, fmt.Errorf("%w: %s", repository.ErrDocumentExists, p.Document)
		}
	}

	a := &model.Account{
		ID:           uuid.NewString(),
		Kind:         kind,
		Name:         strings.TrimSpace(p.Name),
		Document:     p.Document,
		RG:           p.RG,
		Email:        strings.TrimSpace(p.Email),
		Phone:        p.Phone,
		Login:        strings.TrimSpace(p.Login),
		PasswordHash: hash,
		IsActive:     p.IsActive,
		CreatedAt:    s.now(),
	}
	if kind == model.AccountKindDriver {
		a.License = p.License
	}

	if err := s.repo.CreateAccount(ctx, a); err != nil {
		return nil, err
	}

	s.logger.Info("account registered", zap.String("id", a.ID), zap.String("kind", string(kind)), zap.String("login", a.Login))
	return a, nil
}

// Get возвращает учётную запись указанного вида.
func (s *Service) Get(ctx context.Context, kind model.AccountKind, id string) (*model.Account, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	a, err := s.repo.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Kind != kind {
		return nil, repository.ErrAccountNotFound
	}
	return a, nil
}

// List возвращает учётные записи вида kind, отфильтрованные по строке query.
func (s *Service) List(ctx context.Context, kind model.AccountKind, query string) ([]model.Account, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	return s.repo.ListAccounts(ctx, model.AccountFilter{Kind: kind, Query: strings.TrimSpace(query)})
}

// Update изменяет профиль учётной записи одной записью в хранилище. Непустой
// Password задаёт новый пароль без проверки текущего. Признак активности не
// меняется, для этого есть SetActive.
func (s *Service) Update(ctx context.Context, kind model.AccountKind, id string, p Profile) (*model.Account, error) {
	if err := checkDocument(p.Document); err != nil {
		return nil, err
	}

	var hash string
	if p.Password != "" {
		var err error
		if hash, err = s.hasher.Hash(p.Password); err != nil {
			return nil, err
		}
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	a, err := s.repo.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Kind != kind {
		return nil, repository.ErrAccountNotFound
	}

	exists, err := s.repo.DocumentExists(ctx, kind, p.Document, id)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: %s", repository.ErrDocumentExists, p.Document)
	}

	a.Name = strings.TrimSpace(p.Name)
	a.Document = p.Document
	a.RG = p.RG
	a.Email = strings.TrimSpace(p.Email)
	a.Phone = p.Phone
	a.Login = strings.TrimSpace(p.Login)
	if kind == model.AccountKindDriver {
		a.License = p.License
	}
	// Пустой хеш хранилище не записывает, старый пароль остаётся.
	a.PasswordHash = hash

	if err := s.repo.UpdateAccount(ctx, a); err != nil {
		return nil, err
	}

	return s.repo.GetAccount(ctx, id)
}

// SetActive включает или отключает учётную запись.
func (s *Service) SetActive(ctx context.Context, kind model.AccountKind, id string, active bool) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	a, err := s.repo.GetAccount(ctx, id)
	if err != nil {
		return err
	}
	if a.Kind != kind {
		return repository.ErrAccountNotFound
	}

	if err := s.repo.SetAccountActive(ctx, id, active); err != nil {
		return err
	}
	s.logger.Info("account activity changed", zap.String("id", id), zap.Bool("active", active))
	return nil
}

// ChangePassword меняет пароль после проверки текущего.
func (s *Service) ChangePassword(ctx context.Context, kind model.AccountKind, id, current, next string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	a, err := s.repo.GetAccount(ctx, id)
	if err != nil {
		return err
	}
	if a.Kind != kind {
		return repository.ErrAccountNotFound
	}

	if !s.hasher.Verify(a.PasswordHash, current).OK() {
		return ErrWrongPassword
	}

	hash, err := s.hasher.Hash(next)
	if err != nil {
		return err
	}
	return s.repo.SetPasswordHash(ctx, id, hash)
}

// ExistsByDocument сообщает, зарегистрирован ли CPF у учётной записи вида kind.
// Форматирование документа не учитывается.
func (s *Service) ExistsByDocument(ctx context.Context, kind model.AccountKind, document string) (bool, error) {
	if strings.TrimSpace(document) == "" {
		return false, nil
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	return s.repo.DocumentExists(ctx, kind, document, "")
}

// Authenticate проверяет логин и пароль. Хеш, записанный с устаревшими
// параметрами, после успешной проверки пересчитывается.
func (s *Service) Authenticate(ctx context.Context, login, secret string) (model.Identity, error) {
	identity, err := s.authenticate(ctx, login, secret)
	if s.metrics != nil {
		s.metrics.LoginAttempt(err == nil)
	}
	return identity, err
}

func (s *Service) authenticate(ctx context.Context, login, secret string) (model.Identity, error) {
	login = strings.TrimSpace(login)
	if login == "" || secret == "" {
		return model.Identity{}, ErrInvalidCredentials
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	a, err := s.repo.GetAccountByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return model.Identity{}, ErrInvalidCredentials
		}
		return model.Identity{}, err
	}
	if !a.IsActive {
		return model.Identity{}, ErrInvalidCredentials
	}

	switch s.hasher.Verify(a.PasswordHash, secret) {
	case password.Failed:
		return model.Identity{}, ErrInvalidCredentials
	case password.SuccessRehashNeeded:
		s.rehash(ctx, a.ID, secret)
	}

	return model.Identity{
		AccountID: a.ID,
		Login:     a.Login,
		Name:      a.Name,
		Roles:     []string{roleFor(a.Kind)},
	}, nil
}

func (s *Service) rehash(ctx context.Context, id, secret string) {
	hash, err := s.hasher.Hash(secret)
	if err == nil {
		err = s.repo.SetPasswordHash(ctx, id, hash)
	}
	if err != nil {
		s.logger.Warn("failed to upgrade password hash", zap.String("id", id), zap.Error(err))
		return
	}
	s.logger.Info("password hash upgraded", zap.String("id", id))
}

func roleFor(kind model.AccountKind) string {
	if kind == model.AccountKindDriver {
		return RoleDriver
	}
	return RoleOperator
}

// EnsureAdmin создаёт учётную запись оператора с указанным логином, если в системе
// ещё нет ни одного оператора. Возвращает true, если запись создана.
func (s *Service) EnsureAdmin(ctx context.Context, login, secret string) (bool, error) {
	if login == "" || secret == "" {
		return false, nil
	}

	lookupCtx, cancel := s.withTimeout(ctx)
	defer cancel()

	operators, err := s.repo.CountAccounts(lookupCtx, model.AccountKindUser)
	if err != nil {
		return false, err
	}
	if operators > 0 {
		return false, nil
	}

	_, err = s.repo.GetAccountByLogin(lookupCtx, login)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, repository.ErrAccountNotFound) {
		return false, err
	}

	// У служебной записи нет документа, поэтому проверка CPF не выполняется.
	_, err = s.create(ctx, model.AccountKindUser, Profile{
		Name:     "Administrator",
		Login:    login,
		Password: secret,
		IsActive: true,
	})
	if err != nil {
		return false, fmt.Errorf("seed admin: %w", err)
	}
	return true, nil
}
