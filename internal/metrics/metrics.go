// Package metrics счетчики Prometheus для бота.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Виды обработанных событий
const (
	EventText         = "text"
	EventImage        = "image"
	EventContinuation = "continuation"
	EventCommand      = "command"
	EventIgnored      = "ignored"
)

// Metrics набор метрик одного экземпляра бота
type Metrics struct {
	Events              *prometheus.CounterVec
	ExpensesRegistered  prometheus.Counter
	ExtractionFailures  *prometheus.CounterVec
	DispatchDuration    prometheus.Histogram
	Panics              prometheus.Counter
	VocabularyRefreshes prometheus.Counter
}

// New создает метрики и регистрирует их в reg; nil reg означает без регистрации
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "expense_bot",
			Name:      "events_total",
			Help:      "Inbound events by kind.",
		}, []string{"kind"}),
		ExpensesRegistered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "expense_bot",
			Name:      "expenses_registered_total",
			Help:      "Expense records written to the store.",
		}),
		ExtractionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "expense_bot",
			Name:      "extraction_failures_total",
			Help:      "Failed extractions by reason.",
		}, []string{"reason"}),
		DispatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "expense_bot",
			Name:      "dispatch_duration_seconds",
			Help:      "Time spent handling one inbound event.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		Panics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "expense_bot",
			Name:      "handler_panics_total",
			Help:      "Recovered panics in update handlers.",
		}),
		VocabularyRefreshes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "expense_bot",
			Name:      "vocabulary_refreshes_total",
			Help:      "Explicit vocabulary cache invalidations.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.Events,
			m.ExpensesRegistered,
			m.ExtractionFailures,
			m.DispatchDuration,
			m.Panics,
			m.VocabularyRefreshes,
		)
	}
	return m
}

// Discard метрики без регистрации, для тестов и одноразовых команд
func Discard() *Metrics {
	return New(nil)
}
