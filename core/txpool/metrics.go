// Copyright 2025 The corvid Authors
// This file is part of the corvid library.
//
// The corvid library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The corvid library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the corvid library. If not, see <http://www.gnu.org/licenses/>.

package txpool

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	submittedCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "txpool_submitted_total",
		Help: "Transactions accepted into the pool",
	})
	rejectedCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "txpool_rejected_total",
		Help: "Transactions rejected at submission",
	})
	invalidCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "txpool_invalid_total",
		Help: "Transactions removed as invalid",
	})
	usurpedCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "txpool_usurped_total",
		Help: "Transactions evicted by a higher priority provider of the same tag",
	})
	droppedCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "txpool_dropped_total",
		Help: "Transactions dropped by capacity or promotion conflicts",
	})
	prunedCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "txpool_pruned_total",
		Help: "Transactions pruned by block inclusion",
	})
	retractedCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "txpool_retracted_total",
		Help: "Transactions re-entering the pool from retracted blocks",
	})

	readyGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "txpool_ready",
		Help: "Transactions in the ready partition",
	})
	readyBytesGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "txpool_ready_bytes",
		Help: "Cumulative payload size of the ready partition",
	})
	futureGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "txpool_future",
		Help: "Transactions in the future partition",
	})
	futureBytesGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "txpool_future_bytes",
		Help: "Cumulative payload size of the future partition",
	})
)

// reportStatus mirrors the partition occupancy into the gauges.
func reportStatus(s PoolStatus) {
	readyGauge.Set(float64(s.Ready))
	readyBytesGauge.Set(float64(s.ReadyBytes))
	futureGauge.Set(float64(s.Future))
	futureBytesGauge.Set(float64(s.FutureBytes))
}
