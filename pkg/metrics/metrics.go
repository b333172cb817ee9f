/*
Copyright 2025 The Weft Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Pool metrics
	PoolConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "weft_pool_connections",
			Help: "Number of pool connections by state (idle, in_use)",
		},
		[]string{"pool", "state"},
	)

	PoolWaiters = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "weft_pool_waiters",
			Help: "Number of acquirers waiting for a pool connection",
		},
		[]string{"pool"},
	)

	PoolConnectionsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weft_pool_connections_created_total",
			Help: "Total number of connections created by the provider",
		},
		[]string{"pool"},
	)

	PoolConnectionsInvalidated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weft_pool_connections_invalidated_total",
			Help: "Total number of connections destroyed via the provider invalidate hook",
		},
		[]string{"pool"},
	)

	PoolAcquireFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weft_pool_acquire_failures_total",
			Help: "Total number of failed acquisitions by reason (closed, provider)",
		},
		[]string{"pool", "reason"},
	)

	// Virtual interface metrics
	InterfaceConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "weft_virtual_interface_pending_connections",
			Help: "Number of pending connection submissions on a virtual interface",
		},
		[]string{"interface"},
	)
)

func init() {
	prometheus.MustRegister(
		PoolConnections,
		PoolWaiters,
		PoolConnectionsCreated,
		PoolConnectionsInvalidated,
		PoolAcquireFailures,
		InterfaceConnections,
	)
}
