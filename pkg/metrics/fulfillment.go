package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// FulfillmentMetrics counts reservation, transition and sweep outcomes and
// exposes the hosted gateway breaker state.
type FulfillmentMetrics struct {
	reservations *prometheus.CounterVec
	transitions  *prometheus.CounterVec
	swept        *prometheus.CounterVec
	breaker      *prometheus.GaugeVec
}

// NewFulfillmentMetrics registers the fulfillment metrics on the provided registerer.
func NewFulfillmentMetrics(reg prometheus.Registerer) *FulfillmentMetrics {
	if reg == nil {
		return &FulfillmentMetrics{}
	}
	reservations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "reservation",
		Name:      "outcomes_total",
		Help:      "Reservation attempts by outcome.",
	}, []string{"outcome"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "order",
		Name:      "transitions_total",
		Help:      "Order status transition attempts by target status and result.",
	}, []string{"target", "result"})
	swept := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sweep",
		Name:      "items_total",
		Help:      "Stale reservations released and orders cancelled by the sweep.",
	}, []string{"kind"})
	breaker := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "gateway",
		Name:      "breaker_state",
		Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open).",
	}, []string{"breaker"})
	reg.MustRegister(reservations, transitions, swept, breaker)
	return &FulfillmentMetrics{
		reservations: reservations,
		transitions:  transitions,
		swept:        swept,
		breaker:      breaker,
	}
}

// IncReservation counts a reservation outcome such as "reserved" or "insufficient_stock".
func (m *FulfillmentMetrics) IncReservation(outcome string) {
	if m == nil || m.reservations == nil {
		return
	}
	m.reservations.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncTransition counts a transition attempt.
func (m *FulfillmentMetrics) IncTransition(target, result string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(target), normalizeLabel(result)).Inc()
}

// AddSwept adds n items of the given kind to the sweep counter.
func (m *FulfillmentMetrics) AddSwept(kind string, n int) {
	if m == nil || m.swept == nil || n <= 0 {
		return
	}
	m.swept.WithLabelValues(normalizeLabel(kind)).Add(float64(n))
}

// SetBreakerState records the numeric breaker state.
func (m *FulfillmentMetrics) SetBreakerState(name string, state int) {
	if m == nil || m.breaker == nil {
		return
	}
	m.breaker.WithLabelValues(normalizeLabel(name)).Set(float64(state))
}
