// Copyright 2021 FerretDB Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package serialization

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "bsonmap"
	subsystem = "serialization"
)

// registryMetrics represents registry metrics.
type registryMetrics struct {
	lookups       *prometheus.CounterVec
	constructions prometheus.Counter
	cached        atomic.Int64
}

// newRegistryMetrics creates registry metrics.
func newRegistryMetrics() *registryMetrics {
	return &registryMetrics{
		lookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "lookups_total",
				Help:      "Total number of serializer lookups.",
			},
			[]string{"result"},
		),
		constructions: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "constructions_total",
				Help:      "Total number of constructed and cached serializers.",
			},
		),
	}
}

// cachedDesc describes the gauge of cached serializers.
var cachedDesc = prometheus.NewDesc(
	prometheus.BuildFQName(namespace, subsystem, "cached"),
	"The current number of cached serializers.",
	nil, nil,
)

// Describe implements prometheus.Collector.
func (r *Registry) Describe(ch chan<- *prometheus.Desc) {
	r.m.lookups.Describe(ch)
	r.m.constructions.Describe(ch)
	ch <- cachedDesc
}

// Collect implements prometheus.Collector.
func (r *Registry) Collect(ch chan<- prometheus.Metric) {
	r.m.lookups.Collect(ch)
	r.m.constructions.Collect(ch)
	ch <- prometheus.MustNewConstMetric(cachedDesc, prometheus.GaugeValue, float64(r.m.cached.Load()))
}

// check interfaces
var (
	_ prometheus.Collector = (*Registry)(nil)
)
