package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mmeshcher/parceltrack/internal/model"
	"github.com/mmeshcher/parceltrack/internal/repository"
	"github.com/mmeshcher/parceltrack/internal/validation"
)

// ReconcileOrderNumbers приводит номера заказов, записанные старой версией приложения
// (например, "ENT0007"), к четырёхзначному виду. Если номер из цифр исходного уже занят
// или не помещается в четыре цифры, выдаётся ближайший свободный. Возвращает число
// перенумерованных доставок.
func (e *Engine) ReconcileOrderNumbers(ctx context.Context) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	listCtx, cancel := e.withTimeout(ctx)
	all, err := e.repo.ListDeliveries(listCtx, model.DeliveryFilter{})
	cancel()
	if err != nil {
		return 0, fmt.Errorf("list deliveries: %w", err)
	}

	taken := make(map[string]bool, len(all))
	var legacy []model.Delivery
	for _, d := range all {
		if validation.IsCanonicalOrderNumber(d.OrderNumber) {
			taken[d.OrderNumber] = true
			continue
		}
		legacy = append(legacy, d)
	}
	if len(legacy) == 0 {
		return 0, nil
	}

	// Список отсортирован от новых к старым, старые записи получают номера первыми.
	renumbered := 0
	free := 1
	for i := len(legacy) - 1; i >= 0; i-- {
		d := legacy[i]

		number, err := validation.NormalizeOrderNumber(d.OrderNumber)
		if err != nil || taken[number] {
			for free <= validation.MaxOrderNumber && taken[validation.FormatOrderNumber(free)] {
				free++
			}
			if free > validation.MaxOrderNumber {
				return renumbered, ErrOrderNumbersExhausted
			}
			number = validation.FormatOrderNumber(free)
		}

		opCtx, cancel := e.withTimeout(ctx)
		err = e.repo.RenumberDelivery(opCtx, d.ID, number)
		cancel()
		if errors.Is(err, repository.ErrOrderNumberTaken) {
			// Номер заняли параллельно; запись будет сверена при следующем запуске.
			taken[number] = true
			e.logger.Warn("order number taken during reconciliation",
				zap.String("id", d.ID), zap.String("order", number))
			continue
		}
		if err != nil {
			return renumbered, fmt.Errorf("renumber delivery %s: %w", d.ID, err)
		}

		taken[number] = true
		renumbered++
		e.logger.Info("legacy order number reconciled",
			zap.String("id", d.ID),
			zap.String("from", d.OrderNumber),
			zap.String("to", number),
		)
	}

	// Счётчик пересчитывается при следующей регистрации.
	e.seeded = false
	return renumbered, nil
}
