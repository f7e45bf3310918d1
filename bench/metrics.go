// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bench

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports the progress of a sweep to prometheus. A nil
// *Metrics records nothing.
type Metrics struct {
	// Seconds is the most recent measurement at each swept value.
	Seconds *prometheus.GaugeVec
	// Repetitions counts completed sweep repetitions.
	Repetitions *prometheus.CounterVec
}

// NewMetrics creates the sweep metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Seconds: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "bigscan_measurement_seconds",
				Help: "Most recent elapsed time of a measurement, by strategy and swept value",
			},
			[]string{"strategy", "variable", "value"},
		),
		Repetitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bigscan_repetitions_total",
				Help: "Total number of completed sweep repetitions",
			},
			[]string{"strategy", "variable"},
		),
	}
	reg.MustRegister(m.Seconds, m.Repetitions)
	return m
}

func (m *Metrics) observe(strategy string, v Variable, value int, d time.Duration) {
	if m == nil {
		return
	}
	m.Seconds.WithLabelValues(strategy, string(v), strconv.Itoa(value)).Set(d.Seconds())
}

func (m *Metrics) repetition(strategy string, v Variable) {
	if m == nil {
		return
	}
	m.Repetitions.WithLabelValues(strategy, string(v)).Inc()
}
