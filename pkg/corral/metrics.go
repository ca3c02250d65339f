// Copyright 2022-2024 Boris HUISGEN. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package corral

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace string = "corral"

	acceptErrorTemporary string = "temporary"
	acceptErrorFatal     string = "fatal"
)

// metrics implements the collectors of a manager.
type metrics struct {
	listeners         prometheus.Gauge
	acceptedConns     *prometheus.CounterVec
	activeConns       *prometheus.GaugeVec
	acceptErrors      *prometheus.CounterVec
	acceptorRestarts  *prometheus.CounterVec
	handlerPanics     *prometheus.CounterVec
	protocolReconfigs *prometheus.CounterVec
}

// newMetrics creates the collectors and registers them.
func newMetrics(registerer prometheus.Registerer) *metrics {
	m := &metrics{
		listeners: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "listeners",
			Help:      "Number of registered listeners.",
		}),
		acceptedConns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "accepted_connections_total",
			Help:      "Number of connections handed off to a handler.",
		}, []string{"listener"}),
		activeConns: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "active_connections",
			Help:      "Number of running connection handlers.",
		}, []string{"listener"}),
		acceptErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "accept_errors_total",
			Help:      "Number of accept errors by kind.",
		}, []string{"listener", "kind"}),
		acceptorRestarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "acceptor_restarts_total",
			Help:      "Number of acceptor restarts after a failure.",
		}, []string{"listener"}),
		handlerPanics: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "handler_panics_total",
			Help:      "Number of connection handlers which panicked.",
		}, []string{"listener"}),
		protocolReconfigs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "protocol_reconfigurations_total",
			Help:      "Number of protocol options updates.",
		}, []string{"listener"}),
	}

	registerer.MustRegister(
		m.listeners,
		m.acceptedConns,
		m.activeConns,
		m.acceptErrors,
		m.acceptorRestarts,
		m.handlerPanics,
		m.protocolReconfigs,
	)

	return m
}
