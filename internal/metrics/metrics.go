// Package metrics owns the Prometheus registry of the service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is a private registry plus the domain counters. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	LedgerEntries     *prometheus.CounterVec
	Reconciliations   *prometheus.CounterVec
	TradeTransitions  *prometheus.CounterVec
	ProcessorCalls    *prometheus.CounterVec
	HTTPRequestsTotal *prometheus.CounterVec
}

// New creates the registry with Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{registry: reg}
	m.LedgerEntries = m.counter("ledger_entries_total", "Wallet transactions settled, by direction and kind", "direction", "kind")
	m.Reconciliations = m.counter("reconciliations_total", "Payment reconciliation attempts, by source and outcome", "source", "outcome")
	m.TradeTransitions = m.counter("trade_transitions_total", "Trade order status transitions", "type", "to")
	m.ProcessorCalls = m.counter("processor_calls_total", "Calls to the payment processor", "op", "outcome")
	m.HTTPRequestsTotal = m.counter("http_server_requests_total", "HTTP requests served", "method", "path", "status")
	return m
}

func (m *Metrics) counter(name, help string, labels ...string) *prometheus.CounterVec {
	cv := prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help}, labels)
	m.registry.MustRegister(cv)
	return cv
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// LedgerEntry counts a settled wallet transaction.
func (m *Metrics) LedgerEntry(direction, kind string) {
	if m == nil {
		return
	}
	m.LedgerEntries.WithLabelValues(direction, kind).Inc()
}

// Reconciled counts one reconciliation outcome.
func (m *Metrics) Reconciled(source, outcome string) {
	if m == nil {
		return
	}
	m.Reconciliations.WithLabelValues(source, outcome).Inc()
}

// Transition counts a trade order status change.
func (m *Metrics) Transition(orderType, to string) {
	if m == nil {
		return
	}
	m.TradeTransitions.WithLabelValues(orderType, to).Inc()
}

// ProcessorCall counts a call to the payment processor.
func (m *Metrics) ProcessorCall(op, outcome string) {
	if m == nil {
		return
	}
	m.ProcessorCalls.WithLabelValues(op, outcome).Inc()
}

// HTTPRequest counts a served request.
func (m *Metrics) HTTPRequest(method, path, status string) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
}
