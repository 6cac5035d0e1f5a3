// Package metrics содержит prometheus-метрики предметной области.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mmeshcher/parceltrack/internal/model"
)

// Delivery собирает счётчики жизненного цикла доставок, рассылки и входа в систему.
type Delivery struct {
	created       prometheus.Counter
	transitions   *prometheus.CounterVec
	dispatchItems *prometheus.CounterVec
	logins        *prometheus.CounterVec
}

// NewDelivery создаёт метрики и регистрирует их в reg.
func NewDelivery(reg prometheus.Registerer) *Delivery {
	m := &Delivery{
		created: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "deliveries_created_total",
			Help: "Total number of registered deliveries",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "delivery_transitions_total",
			Help: "Total number of applied delivery status transitions",
		}, []string{"status"}),
		dispatchItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_items_total",
			Help: "Total number of processed dispatch items by outcome",
		}, []string{"outcome"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "login_attempts_total",
			Help: "Total number of login attempts by outcome",
		}, []string{"outcome"}),
	}

	reg.MustRegister(m.created, m.transitions, m.dispatchItems, m.logins)
	return m
}

// DeliveryCreated учитывает регистрацию доставки.
func (m *Delivery) DeliveryCreated() {
	m.created.Inc()
}

// DeliveryTransitioned учитывает переход доставки в статус to.
func (m *Delivery) DeliveryTransitioned(to model.DeliveryStatus) {
	m.transitions.WithLabelValues(string(to)).Inc()
}

// DispatchItem учитывает результат обработки одного заказа в рассылке.
func (m *Delivery) DispatchItem(err error) {
	outcome := "assigned"
	if err != nil {
		outcome = "failed"
	}
	m.dispatchItems.WithLabelValues(outcome).Inc()
}

// LoginAttempt учитывает попытку входа.
func (m *Delivery) LoginAttempt(ok bool) {
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	m.logins.WithLabelValues(outcome).Inc()
}
