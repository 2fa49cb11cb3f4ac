//
// Copyright 2019 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS-IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
//
package convert

import (
	"strconv"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts what a conversion went through.
type Metrics struct {
	registry  *prometheus.Registry
	events    *prometheus.CounterVec
	skipped   *prometheus.CounterVec
	anomalies *prometheus.CounterVec
	channels  prometheus.Gauge
	tasks     prometheus.Gauge
}

// NewMetrics returns a Metrics registered in its own registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "schedwave",
			Name:      "events_dispatched_total",
			Help:      "Events handed to a handler, by pass.",
		}, []string{"pass"}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "schedwave",
			Name:      "events_skipped_total",
			Help:      "Events not handed to any handler, by reason.",
		}, []string{"reason"}),
		anomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "schedwave",
			Name:      "anomalies_total",
			Help:      "Malformed trace conditions, by kind.",
		}, []string{"kind"}),
		channels: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "schedwave",
			Name:      "channels",
			Help:      "Channels created.",
		}),
		tasks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "schedwave",
			Name:      "tasks",
			Help:      "Tasks seen.",
		}),
	}
	m.registry.MustRegister(m.events, m.skipped, m.anomalies, m.channels, m.tasks)
	return m
}

// Registry returns the registry holding the metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) dispatched(pass int) {
	m.events.WithLabelValues(strconv.Itoa(pass)).Inc()
}

func (m *Metrics) skip(reason string) {
	m.skipped.WithLabelValues(reason).Inc()
}

func (m *Metrics) anomaly(k AnomalyKind) {
	m.anomalies.WithLabelValues(k.String()).Inc()
}

// WriteFile writes the metrics at path in the Prometheus text format.
func (m *Metrics) WriteFile(path string) error {
	return errors.Wrapf(prometheus.WriteToTextfile(path, m.registry), "failed to write metrics to %s", path)
}
