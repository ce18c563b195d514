/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package evals

import (
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	evaluations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agent_evaluations_total",
		Help: "Completed traces evaluated by each check.",
	}, []string{"check"})

	evaluationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agent_evaluation_failures_total",
		Help: "Completed traces that failed each check.",
	}, []string{"check"})

	evaluationGrade = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "agent_evaluation_grade",
		Help: "Most recent grade (0.0-1.0) reported by each check.",
	}, []string{"check"})
)

// MetricsObserver reports check outcomes as Prometheus metrics and logs
// failures.
type MetricsObserver struct {
	check string
	evals prometheus.Counter
	fails prometheus.Counter
	grade prometheus.Gauge
}

// NewMetricsObserver returns the observer for the named check. Its
// signature fits Suite.Callbacks.
func NewMetricsObserver(check string) Observer {
	return &MetricsObserver{
		check: check,
		evals: evaluations.WithLabelValues(check),
		fails: evaluationFailures.WithLabelValues(check),
		grade: evaluationGrade.WithLabelValues(check),
	}
}

func (m *MetricsObserver) Increment() { m.evals.Inc() }

func (m *MetricsObserver) Fail(msg string) {
	m.fails.Inc()
	slog.Warn("Evaluation failed", "check", m.check, "reason", msg)
}

func (m *MetricsObserver) Log(string) {}

func (m *MetricsObserver) Grade(score float64, _ string) { m.grade.Set(score) }

// Failure is one failed check.
type Failure struct {
	Check   string
	Message string
}

// Collector records failures across every check of a suite.
type Collector struct {
	mu       sync.Mutex
	failures []Failure
	total    int
}

// Observer returns the observer for the named check. Its signature fits
// Suite.Callbacks.
func (c *Collector) Observer(check string) Observer {
	return &collected{c: c, check: check}
}

// Failures returns the failures recorded so far.
func (c *Collector) Failures() []Failure {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Failure(nil), c.failures...)
}

// Total returns the number of check evaluations.
func (c *Collector) Total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

type collected struct {
	c     *Collector
	check string
}

func (o *collected) Increment() {
	o.c.mu.Lock()
	defer o.c.mu.Unlock()
	o.c.total++
}

func (o *collected) Fail(msg string) {
	o.c.mu.Lock()
	defer o.c.mu.Unlock()
	o.c.failures = append(o.c.failures, Failure{Check: o.check, Message: msg})
}

func (o *collected) Log(string) {}

func (o *collected) Grade(float64, string) {}
