// Package dispatch передаёт пакет заказов водителю, собирая ошибки по каждому заказу.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/parceltrack/internal/lifecycle"
	"github.com/mmeshcher/parceltrack/internal/model"
	"github.com/mmeshcher/parceltrack/internal/repository"
	"github.com/mmeshcher/parceltrack/internal/validation"
)

var (
	// ErrDriverRequired возвращается, если водитель не указан.
	ErrDriverRequired = lifecycle.ErrDriverRequired
	// ErrDriverNotFound возвращается, если водитель не зарегистрирован.
	ErrDriverNotFound = errors.New("driver not found")
	// ErrDriverInactive возвращается, если учётная запись водителя отключена.
	ErrDriverInactive = errors.New("driver is inactive")
	// ErrNoOrders возвращается, если в запросе нет ни одного номера заказа.
	ErrNoOrders = errors.New("no orders to dispatch")
)

const defaultConcurrency = 4

// Assigner привязывает водителя к одной доставке.
type Assigner interface {
	AssignDriver(ctx context.Context, orderNumber, driverID, driverName, actor string) (*model.Delivery, error)
}

// Drivers ищет учётную запись водителя.
type Drivers interface {
	GetAccount(ctx context.Context, id string) (*model.Account, error)
}

// Metrics принимает результат обработки каждого заказа. Может быть nil.
type Metrics interface {
	DispatchItem(err error)
}

// Request описывает передачу заказов водителю.
type Request struct {
	DriverID     string
	Actor        string
	OrderNumbers []string
}

// Coordinator выполняет рассылку заказов.
type Coordinator struct {
	assigner    Assigner
	drivers     Drivers
	metrics     Metrics
	logger      *zap.Logger
	concurrency int
}

// NewCoordinator создаёт координатор. concurrency ограничивает число заказов,
// обрабатываемых одновременно.
func NewCoordinator(assigner Assigner, drivers Drivers, logger *zap.Logger, metrics Metrics, concurrency int) *Coordinator {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		assigner:    assigner,
		drivers:     drivers,
		metrics:     metrics,
		logger:      logger,
		concurrency: concurrency,
	}
}

// ItemError связывает ошибку с номером заказа, на котором она произошла.
type ItemError struct {
	OrderNumber string
	Err         error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("order %s: %v", e.OrderNumber, e.Err)
}

func (e *ItemError) Unwrap() error {
	return e.Err
}

// Dispatch переводит каждый из заказов в статус InTransit с указанным водителем.
// Ошибки проверки запроса возвращаются вторым значением, и тогда ни один заказ не
// обрабатывается. Ошибки отдельных заказов не прерывают пакет и возвращаются
// первым значением в порядке запроса; пустой список означает полный успех.
func (c *Coordinator) Dispatch(ctx context.Context, req Request) ([]error, error) {
	if req.DriverID == "" {
		return nil, ErrDriverRequired
	}

	driver, err := c.drivers.GetAccount(ctx, req.DriverID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrDriverNotFound, req.DriverID)
		}
		return nil, fmt.Errorf("get driver: %w", err)
	}
	if driver.Kind != model.AccountKindDriver {
		return nil, fmt.Errorf("%w: %s", ErrDriverNotFound, req.DriverID)
	}
	if !driver.IsActive {
		return nil, fmt.Errorf("%w: %s", ErrDriverInactive, driver.Name)
	}

	numbers, results := c.prepare(req.OrderNumbers)
	if len(numbers) == 0 && len(results) == 0 {
		return nil, ErrNoOrders
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for _, item := range numbers {
		item := item
		g.Go(func() error {
			_, err := c.assigner.AssignDriver(gctx, item.number, driver.ID, driver.Name, req.Actor)
			if c.metrics != nil {
				c.metrics.DispatchItem(err)
			}
			if err != nil {
				results[item.index] = &ItemError{OrderNumber: item.number, Err: err}
			}
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	for _, err := range results {
		if err != nil {
			errs = append(errs, err)
		}
	}

	c.logger.Info("dispatch finished",
		zap.String("driver", driver.Name),
		zap.String("actor", req.Actor),
		zap.Int("orders", len(numbers)),
		zap.Int("failed", len(errs)),
	)

	return errs, nil
}

type dispatchItem struct {
	index  int
	number string
}

// prepare пропускает пустые строки, нормализует номера и убирает повторы, сохраняя порядок первого вхождения.
// Ошибки нормализации попадают в results на позицию исходного номера.
func (c *Coordinator) prepare(raw []string) ([]dispatchItem, []error) {
	results := make([]error, 0, len(raw))
	seen := make(map[string]bool, len(raw))

	var items []dispatchItem
	for _, r := range raw {
		if strings.TrimSpace(r) == "" {
			continue
		}
		number, err := validation.NormalizeOrderNumber(r)
		if err != nil {
			results = append(results, &ItemError{OrderNumber: r, Err: err})
			continue
		}
		if seen[number] {
			continue
		}
		seen[number] = true
		items = append(items, dispatchItem{index: len(results), number: number})
		results = append(results, nil)
	}

	if len(items) == 0 && len(results) == 0 {
		return nil, nil
	}
	return items, results
}
