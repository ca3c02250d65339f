// Copyright 2022-2024 Boris HUISGEN. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package corral

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bhuisgen/corral/pkg/log"
)

// metricsServer implements the metrics endpoint.
type metricsServer struct {
	logger    *slog.Logger
	server    *http.Server
	ln        net.Listener
	netListen func(network, address string) (net.Listener, error)
}

const (
	metricsLogger string = "metrics"

	metricsConfigDefaultListenAddr string = "127.0.0.1"
	metricsConfigDefaultListenPort int    = 9090
	metricsConfigDefaultPath       string = "/metrics"

	metricsReadHeaderTimeout time.Duration = 10 * time.Second
)

// newMetricsRegistry creates the registry of the instance metrics.
func newMetricsRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return registry
}

// newMetricsServer creates a new metrics server exposing the gatherer.
func newMetricsServer(c *configMetrics, gatherer prometheus.Gatherer) *metricsServer {
	addr := metricsConfigDefaultListenAddr
	if c.ListenAddr != nil {
		addr = *c.ListenAddr
	}
	port := metricsConfigDefaultListenPort
	if c.ListenPort != nil {
		port = *c.ListenPort
	}
	path := metricsConfigDefaultPath
	if c.Path != nil {
		path = *c.Path
	}

	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return &metricsServer{
		logger: log.New(metricsLogger),
		server: &http.Server{
			Addr:              net.JoinHostPort(addr, fmt.Sprint(port)),
			Handler:           mux,
			ReadHeaderTimeout: metricsReadHeaderTimeout,
		},
		netListen: net.Listen,
	}
}

// checkMetrics checks the metrics configuration.
func checkMetrics(c *configMetrics) []string {
	var report []string

	if c.ListenPort != nil && (*c.ListenPort < 0 || *c.ListenPort > 65535) {
		report = append(report, fmt.Sprintf("metrics: option '%s', invalid value '%d'", "ListenPort", *c.ListenPort))
	}
	if c.Path != nil && (*c.Path == "" || (*c.Path)[0] != '/') {
		report = append(report, fmt.Sprintf("metrics: option '%s', invalid value '%s'", "Path", *c.Path))
	}

	return report
}

// Start starts serving the metrics.
func (s *metricsServer) Start() error {
	ln, err := s.netListen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	s.ln = ln

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Failed to serve metrics", "err", err)
		}
	}()
	s.logger.Info("Metrics endpoint started", "addr", ln.Addr().String())

	return nil
}

// Stop stops serving the metrics.
func (s *metricsServer) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Addr returns the address of the endpoint.
func (s *metricsServer) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}
