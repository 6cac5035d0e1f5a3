package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/mmeshcher/parceltrack/internal/model"
	"github.com/mmeshcher/parceltrack/internal/validation"
)

// MemoryRepository хранит данные в памяти процесса. Используется, когда база данных
// недоступна при старте, и в тестах. Данные не переживают перезапуск.
type MemoryRepository struct {
	mu         sync.RWMutex
	deliveries []*model.Delivery
	byNumber   map[string]*model.Delivery
	accounts   map[string]*model.Account
}

// NewMemoryRepository создаёт пустое хранилище в памяти.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byNumber: make(map[string]*model.Delivery),
		accounts: make(map[string]*model.Account),
	}
}

// Close ничего не делает и нужен для совместимости с PostgresRepository.
func (r *MemoryRepository) Close() error {
	return nil
}

func cloneDelivery(d *model.Delivery, withMovements bool) model.Delivery {
	c := *d
	c.Movements = nil
	if withMovements && len(d.Movements) > 0 {
		c.Movements = make([]model.Movement, len(d.Movements))
		copy(c.Movements, d.Movements)
	}
	return c
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func matchesDelivery(d *model.Delivery, filter model.DeliveryFilter) bool {
	if filter.PendingOnly && d.HasDriver() {
		return false
	}
	q := strings.TrimSpace(filter.Query)
	if q == "" {
		return true
	}
	return containsFold(d.OrderNumber, q) ||
		containsFold(d.RecipientName, q) ||
		containsFold(d.SenderName, q) ||
		containsFold(d.Address.Street, q) ||
		containsFold(d.Address.City, q)
}

// CountDeliveries возвращает общее число доставок.
func (r *MemoryRepository) CountDeliveries(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.deliveries), nil
}

// InsertDelivery сохраняет новую доставку. Занятый номер заказа приводит к ErrOrderNumberTaken.
func (r *MemoryRepository) InsertDelivery(ctx context.Context, d *model.Delivery) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byNumber[d.OrderNumber]; ok {
		return fmt.Errorf("%w: %s", ErrOrderNumberTaken, d.OrderNumber)
	}

	stored := cloneDelivery(d, true)
	r.deliveries = append(r.deliveries, &stored)
	r.byNumber[stored.OrderNumber] = &stored
	return nil
}

// GetDelivery возвращает копию доставки по номеру заказа.
func (r *MemoryRepository) GetDelivery(ctx context.Context, orderNumber string) (*model.Delivery, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.byNumber[orderNumber]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDeliveryNotFound, orderNumber)
	}
	c := cloneDelivery(d, true)
	return &c, nil
}

// ListDeliveries возвращает доставки без журнала перемещений, от новых к старым.
func (r *MemoryRepository) ListDeliveries(ctx context.Context, filter model.DeliveryFilter) ([]model.Delivery, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	var res []model.Delivery
	for _, d := range r.deliveries {
		if matchesDelivery(d, filter) {
			res = append(res, cloneDelivery(d, false))
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(res, func(i, j int) bool {
		return res[i].CreatedAt.After(res[j].CreatedAt)
	})
	return res, nil
}

// UpdateDeliveryDetails обновляет редактируемые поля доставки.
func (r *MemoryRepository) UpdateDeliveryDetails(ctx context.Context, orderNumber string, details model.DeliveryDetails) (*model.Delivery, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.byNumber[orderNumber]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDeliveryNotFound, orderNumber)
	}
	d.DeliveryDetails = details

	c := cloneDelivery(d, true)
	return &c, nil
}

// TransitionDelivery применяет переход, вычисленный fn, под эксклюзивной блокировкой.
func (r *MemoryRepository) TransitionDelivery(
	ctx context.Context,
	orderNumber string,
	fn func(current model.Delivery) (model.Transition, error),
) (*model.Delivery, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.byNumber[orderNumber]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDeliveryNotFound, orderNumber)
	}

	t, err := fn(cloneDelivery(d, true))
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.Status = t.Status
	d.DriverID = t.DriverID
	d.DriverName = t.DriverName
	d.Movements = append([]model.Movement{t.Movement}, d.Movements...)

	c := cloneDelivery(d, true)
	return &c, nil
}

// RenumberDelivery меняет номер заказа доставки.
func (r *MemoryRepository) RenumberDelivery(ctx context.Context, id, orderNumber string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byNumber[orderNumber]; ok {
		return fmt.Errorf("%w: %s", ErrOrderNumberTaken, orderNumber)
	}

	for _, d := range r.deliveries {
		if d.ID == id {
			delete(r.byNumber, d.OrderNumber)
			d.OrderNumber = orderNumber
			r.byNumber[orderNumber] = d
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrDeliveryNotFound, id)
}

func (r *MemoryRepository) checkAccountUniqueness(a *model.Account) error {
	digits := validation.DigitsOnly(a.Document)
	for _, other := range r.accounts {
		if other.ID == a.ID {
			continue
		}
		if a.Login != "" && strings.EqualFold(other.Login, a.Login) {
			return ErrLoginExists
		}
		if digits != "" && other.Kind == a.Kind && validation.DigitsOnly(other.Document) == digits {
			return ErrDocumentExists
		}
	}
	return nil
}

// CreateAccount сохраняет новую учётную запись.
func (r *MemoryRepository) CreateAccount(ctx context.Context, a *model.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkAccountUniqueness(a); err != nil {
		return err
	}

	stored := *a
	r.accounts[stored.ID] = &stored
	return nil
}

// GetAccount возвращает учётную запись по идентификатору.
func (r *MemoryRepository) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	c := *a
	return &c, nil
}

// GetAccountByLogin возвращает учётную запись по логину без учёта регистра.
func (r *MemoryRepository) GetAccountByLogin(ctx context.Context, login string) (*model.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, a := range r.accounts {
		if a.Login != "" && strings.EqualFold(a.Login, login) {
			c := *a
			return &c, nil
		}
	}
	return nil, ErrAccountNotFound
}

// ListAccounts возвращает учётные записи, упорядоченные по имени.
func (r *MemoryRepository) ListAccounts(ctx context.Context, filter model.AccountFilter) ([]model.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q := strings.TrimSpace(filter.Query)

	r.mu.RLock()
	var res []model.Account
	for _, a := range r.accounts {
		if filter.Kind != "" && a.Kind != filter.Kind {
			continue
		}
		if q != "" && !containsFold(a.Name, q) && !containsFold(a.Document, q) &&
			!containsFold(a.Email, q) && !containsFold(a.License.Vehicle, q) {
			continue
		}
		res = append(res, *a)
	}
	r.mu.RUnlock()

	sort.Slice(res, func(i, j int) bool {
		if res[i].Name != res[j].Name {
			return res[i].Name < res[j].Name
		}
		return res[i].CreatedAt.Before(res[j].CreatedAt)
	})
	return res, nil
}

// CountAccounts возвращает число учётных записей указанного вида.
func (r *MemoryRepository) CountAccounts(ctx context.Context, kind model.AccountKind) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, a := range r.accounts {
		if a.Kind == kind {
			n++
		}
	}
	return n, nil
}

// DocumentExists сообщает, зарегистрирован ли документ у учётной записи указанного вида.
func (r *MemoryRepository) DocumentExists(ctx context.Context, kind model.AccountKind, document, excludeID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	digits := validation.DigitsOnly(document)
	if digits == "" {
		return false, nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, a := range r.accounts {
		if a.Kind == kind && a.ID != excludeID && validation.DigitsOnly(a.Document) == digits {
			return true, nil
		}
	}
	return false, nil
}

// UpdateAccount обновляет профиль учётной записи. Пустой PasswordHash оставляет
// пароль прежним; вид, активность и дата создания не меняются.
func (r *MemoryRepository) UpdateAccount(ctx context.Context, a *model.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.accounts[a.ID]
	if !ok {
		return ErrAccountNotFound
	}
	if err := r.checkAccountUniqueness(a); err != nil {
		return err
	}

	hash, kind, active, createdAt := stored.PasswordHash, stored.Kind, stored.IsActive, stored.CreatedAt
	*stored = *a
	if stored.PasswordHash == "" {
		stored.PasswordHash = hash
	}
	stored.Kind = kind
	stored.IsActive = active
	stored.CreatedAt = createdAt
	return nil
}

// SetAccountActive включает или отключает учётную запись.
func (r *MemoryRepository) SetAccountActive(ctx context.Context, id string, active bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	a.IsActive = active
	return nil
}

// SetPasswordHash сохраняет новый хеш пароля.
func (r *MemoryRepository) SetPasswordHash(ctx context.Context, id, hash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	a.PasswordHash = hash
	return nil
}
