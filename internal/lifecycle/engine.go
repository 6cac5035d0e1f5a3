// Package lifecycle реализует жизненный цикл доставки: регистрацию с выдачей
// номера заказа, привязку водителя и подтверждение вручения.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/parceltrack/internal/model"
	"github.com/mmeshcher/parceltrack/internal/repository"
	"github.com/mmeshcher/parceltrack/internal/validation"
)

var (
	// ErrAlreadyAssigned возвращается, если к доставке уже привязан водитель.
	ErrAlreadyAssigned = errors.New("delivery already assigned to a driver")
	// ErrAlreadyDelivered возвращается при повторном подтверждении вручения.
	ErrAlreadyDelivered = errors.New("delivery already delivered")
	// ErrNotDispatched возвращается при попытке вручить доставку, которая ещё не в пути.
	ErrNotDispatched = errors.New("delivery is not dispatched yet")
	// ErrOrderNumbersExhausted возвращается, когда заняты все номера заказов.
	ErrOrderNumbersExhausted = errors.New("order numbers exhausted")
	// ErrDriverRequired возвращается, если не указан водитель.
	ErrDriverRequired = errors.New("driver is required")
	// ErrInvalidDetails возвращается при отрицательном числе мест или весе.
	ErrInvalidDetails = errors.New("invalid delivery details")
)

const (
	systemAuthor = "System"

	noteRegistered = "Delivery registered"
	noteDispatched = "Dispatched"
	noteDelivered  = "Delivered"

	defaultOperationTimeout = 3 * time.Second
)

// Repository описывает хранилище доставок, необходимое движку.
type Repository interface {
	CountDeliveries(ctx context.Context) (int, error)
	InsertDelivery(ctx context.Context, d *model.Delivery) error
	GetDelivery(ctx context.Context, orderNumber string) (*model.Delivery, error)
	ListDeliveries(ctx context.Context, filter model.DeliveryFilter) ([]model.Delivery, error)
	UpdateDeliveryDetails(ctx context.Context, orderNumber string, details model.DeliveryDetails) (*model.Delivery, error)
	TransitionDelivery(ctx context.Context, orderNumber string, fn func(current model.Delivery) (model.Transition, error)) (*model.Delivery, error)
	RenumberDelivery(ctx context.Context, id, orderNumber string) error
}

// Metrics принимает события жизненного цикла. Может быть nil.
type Metrics interface {
	DeliveryCreated()
	DeliveryTransitioned(to model.DeliveryStatus)
}

// Engine единственный, кто меняет статус, водителя и журнал перемещений доставки.
type Engine struct {
	repo             Repository
	metrics          Metrics
	logger           *zap.Logger
	operationTimeout time.Duration
	now              func() time.Time

	// mu защищает счётчик номеров заказов.
	mu     sync.Mutex
	last   int
	seeded bool
}

// NewEngine создаёт движок жизненного цикла поверх хранилища repo.
func NewEngine(repo Repository, logger *zap.Logger, metrics Metrics, timeout time.Duration) *Engine {
	if timeout <= 0 {
		timeout = defaultOperationTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		repo:             repo,
		metrics:          metrics,
		logger:           logger,
		operationTimeout: timeout,
		now:              func() time.Time { return time.Now().UTC() },
	}
}

func (e *Engine) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.operationTimeout)
}

func validateDetails(d model.DeliveryDetails) error {
	if d.Volumes < 0 {
		return fmt.Errorf("%w: volumes must not be negative", ErrInvalidDetails)
	}
	if d.WeightKg < 0 {
		return fmt.Errorf("%w: weight must not be negative", ErrInvalidDetails)
	}
	return nil
}

func actorOrSystem(actor string) string {
	if actor == "" {
		return systemAuthor
	}
	return actor
}

// Create регистрирует доставку: выдаёт следующий свободный номер заказа, ставит
// статус Created и записывает первое перемещение.
func (e *Engine) Create(ctx context.Context, details model.DeliveryDetails) (*model.Delivery, error) {
	if err := validateDetails(details); err != nil {
		return nil, err
	}

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.seeded {
		n, err := e.repo.CountDeliveries(ctx)
		if err != nil {
			return nil, fmt.Errorf("seed order numbers: %w", err)
		}
		e.last = n
		e.seeded = true
	}

	now := e.now()
	d := &model.Delivery{
		ID:              uuid.NewString(),
		DeliveryDetails: details,
		Status:          model.DeliveryStatusCreated,
		CreatedAt:       now,
		Movements: []model.Movement{{
			Status: model.DeliveryStatusCreated,
			At:     now,
			Author: systemAuthor,
			Note:   noteRegistered,
		}},
	}

	candidate := e.last
	for attempt := 0; attempt < validation.MaxOrderNumber; attempt++ {
		candidate = candidate%validation.MaxOrderNumber + 1
		d.OrderNumber = validation.FormatOrderNumber(candidate)

		err := e.repo.InsertDelivery(ctx, d)
		if errors.Is(err, repository.ErrOrderNumberTaken) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("insert delivery: %w", err)
		}

		e.last = candidate
		if e.metrics != nil {
			e.metrics.DeliveryCreated()
		}
		e.logger.Info("delivery registered",
			zap.String("order", d.OrderNumber),
			zap.String("recipient", d.RecipientName),
		)
		return d, nil
	}

	return nil, ErrOrderNumbersExhausted
}

// AssignDriver привязывает водителя к доставке и переводит её в статус InTransit.
// Повторная привязка запрещена.
func (e *Engine) AssignDriver(ctx context.Context, orderNumber, driverID, driverName, actor string) (*model.Delivery, error) {
	if driverID == "" {
		return nil, ErrDriverRequired
	}
	number, err := validation.NormalizeOrderNumber(orderNumber)
	if err != nil {
		return nil, err
	}
	actor = actorOrSystem(actor)

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	d, err := e.repo.TransitionDelivery(ctx, number, func(cur model.Delivery) (model.Transition, error) {
		if cur.HasDriver() || cur.Status == model.DeliveryStatusInTransit {
			return model.Transition{}, fmt.Errorf("%w: %s", ErrAlreadyAssigned, number)
		}
		if cur.Status == model.DeliveryStatusDelivered {
			return model.Transition{}, fmt.Errorf("%w: %s", ErrAlreadyDelivered, number)
		}
		return model.Transition{
			Status:     model.DeliveryStatusInTransit,
			DriverID:   driverID,
			DriverName: driverName,
			Movement: model.Movement{
				Status: model.DeliveryStatusInTransit,
				At:     e.now(),
				Author: actor,
				Note:   noteDispatched,
			},
		}, nil
	})
	if err != nil {
		return nil, err
	}

	e.transitioned(d, actor)
	return d, nil
}

// MarkDelivered подтверждает вручение доставки, находящейся в пути.
func (e *Engine) MarkDelivered(ctx context.Context, orderNumber, actor string) (*model.Delivery, error) {
	number, err := validation.NormalizeOrderNumber(orderNumber)
	if err != nil {
		return nil, err
	}
	actor = actorOrSystem(actor)

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	d, err := e.repo.TransitionDelivery(ctx, number, func(cur model.Delivery) (model.Transition, error) {
		switch cur.Status {
		case model.DeliveryStatusDelivered:
			return model.Transition{}, fmt.Errorf("%w: %s", ErrAlreadyDelivered, number)
		case model.DeliveryStatusCreated:
			return model.Transition{}, fmt.Errorf("%w: %s", ErrNotDispatched, number)
		}
		return model.Transition{
			Status:     model.DeliveryStatusDelivered,
			DriverID:   cur.DriverID,
			DriverName: cur.DriverName,
			Movement: model.Movement{
				Status: model.DeliveryStatusDelivered,
				At:     e.now(),
				Author: actor,
				Note:   noteDelivered,
			},
		}, nil
	})
	if err != nil {
		return nil, err
	}

	e.transitioned(d, actor)
	return d, nil
}

func (e *Engine) transitioned(d *model.Delivery, actor string) {
	if e.metrics != nil {
		e.metrics.DeliveryTransitioned(d.Status)
	}
	e.logger.Info("delivery status changed",
		zap.String("order", d.OrderNumber),
		zap.String("status", string(d.Status)),
		zap.String("driver", d.DriverName),
		zap.String("actor", actor),
	)
}

// Get возвращает доставку с журналом перемещений.
func (e *Engine) Get(ctx context.Context, orderNumber string) (*model.Delivery, error) {
	number, err := validation.NormalizeOrderNumber(orderNumber)
	if err != nil {
		return nil, err
	}

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	return e.repo.GetDelivery(ctx, number)
}

// Exists сообщает, зарегистрирована ли доставка с указанным номером.
func (e *Engine) Exists(ctx context.Context, orderNumber string) (bool, error) {
	_, err := e.Get(ctx, orderNumber)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, repository.ErrDeliveryNotFound) || errors.Is(err, validation.ErrInvalidOrderNumber) {
		return false, nil
	}
	return false, err
}

// List возвращает доставки по фильтру, от новых к старым.
func (e *Engine) List(ctx context.Context, filter model.DeliveryFilter) ([]model.Delivery, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	return e.repo.ListDeliveries(ctx, filter)
}

// UpdateDetails меняет данные получателя, отправителя и груза. Статус и водитель не меняются.
func (e *Engine) UpdateDetails(ctx context.Context, orderNumber string, details model.DeliveryDetails) (*model.Delivery, error) {
	if err := validateDetails(details); err != nil {
		return nil, err
	}
	number, err := validation.NormalizeOrderNumber(orderNumber)
	if err != nil {
		return nil, err
	}

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	return e.repo.UpdateDeliveryDetails(ctx, number, details)
}
