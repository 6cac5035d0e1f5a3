// Package model содержит доменные сущности сервиса учёта доставок.
package model

import (
	"fmt"
	"time"
)

// DeliveryStatus описывает этап жизненного цикла доставки.
type DeliveryStatus string

const (
	DeliveryStatusCreated   DeliveryStatus = "Created"
	DeliveryStatusInTransit DeliveryStatus = "InTransit"
	DeliveryStatusDelivered DeliveryStatus = "Delivered"
)

// Метки статусов, записанные старой версией приложения.
var legacyStatuses = map[string]DeliveryStatus{
	"Criada":   DeliveryStatusCreated,
	"Em rota":  DeliveryStatusInTransit,
	"Entregue": DeliveryStatusDelivered,
}

// ParseDeliveryStatus разбирает статус из хранилища. Для неизвестного значения возвращается ошибка.
func ParseDeliveryStatus(s string) (DeliveryStatus, error) {
	switch st := DeliveryStatus(s); st {
	case DeliveryStatusCreated, DeliveryStatusInTransit, DeliveryStatusDelivered:
		return st, nil
	}
	if st, ok := legacyStatuses[s]; ok {
		return st, nil
	}
	return "", fmt.Errorf("unknown delivery status %q", s)
}

// Movement описывает неизменяемую запись журнала перемещений доставки.
type Movement struct {
	Status DeliveryStatus
	At     time.Time
	Author string
	Note   string
}

// Address описывает адрес получателя.
type Address struct {
	Street     string
	Number     string
	Complement string
	District   string
	City       string
}

// DeliveryDetails содержит редактируемые поля доставки.
// Статус, водитель и журнал перемещений сюда не входят.
type DeliveryDetails struct {
	RecipientName     string
	RecipientDocument string
	Address           Address
	SenderName        string
	Volumes           int
	WeightKg          float64
}

// Delivery описывает доставку и её текущее состояние.
type Delivery struct {
	ID          string
	OrderNumber string
	DeliveryDetails

	Status     DeliveryStatus
	DriverID   string
	DriverName string
	CreatedAt  time.Time

	// Movements хранятся от новых к старым.
	Movements []Movement
}

// HasDriver сообщает, привязан ли к доставке водитель.
func (d *Delivery) HasDriver() bool {
	return d.DriverID != ""
}

// Transition описывает изменение состояния доставки, вычисленное движком жизненного цикла.
type Transition struct {
	Status     DeliveryStatus
	DriverID   string
	DriverName string
	Movement   Movement
}

// DeliveryFilter задаёт параметры выборки доставок.
type DeliveryFilter struct {
	Query       string
	PendingOnly bool
}
