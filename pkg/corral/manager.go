// Copyright 2022-2024 Boris HUISGEN. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package corral

import (
	"log/slog"
	"net"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bhuisgen/corral/pkg/core"
	"github.com/bhuisgen/corral/pkg/log"
)

// Manager manages the listeners registered under its references.
type Manager struct {
	config   Config
	logger   *slog.Logger
	registry *registry
	metrics  *metrics
	gatherer prometheus.Gatherer
}

// Config implements the manager configuration.
type Config struct {
	// Logger is the parent logger of the listeners.
	Logger *slog.Logger
	// Registerer receives the collectors of the manager. A private registry
	// is used when nil.
	Registerer prometheus.Registerer
	// MaxRestarts is the number of acceptor restarts allowed in a burst
	// before the listener is torn down. Zero tears the listener down on the
	// first acceptor failure.
	MaxRestarts int
	// RestartPeriod is the period over which MaxRestarts restarts are
	// allowed.
	RestartPeriod time.Duration
	// RestartBackoff is the initial delay before restarting an acceptor.
	RestartBackoff time.Duration
	// MaxRestartBackoff is the maximum delay before restarting an acceptor.
	MaxRestartBackoff time.Duration
}

const (
	managerLogger string = "corral"

	managerDefaultMaxRestarts       int           = 5
	managerDefaultRestartPeriod     time.Duration = 10 * time.Second
	managerDefaultRestartBackoff    time.Duration = 10 * time.Millisecond
	managerDefaultMaxRestartBackoff time.Duration = time.Second
)

// DefaultConfig returns the default manager configuration.
func DefaultConfig() Config {
	return Config{
		MaxRestarts:       managerDefaultMaxRestarts,
		RestartPeriod:     managerDefaultRestartPeriod,
		RestartBackoff:    managerDefaultRestartBackoff,
		MaxRestartBackoff: managerDefaultMaxRestartBackoff,
	}
}

// NewManager creates a new manager.
func NewManager(config Config) *Manager {
	if config.Logger == nil {
		config.Logger = log.New(managerLogger)
	}
	if config.RestartBackoff <= 0 {
		config.RestartBackoff = managerDefaultRestartBackoff
	}
	if config.MaxRestartBackoff < config.RestartBackoff {
		config.MaxRestartBackoff = config.RestartBackoff
	}

	m := &Manager{
		config:   config,
		logger:   config.Logger,
		registry: newRegistry(),
	}

	registerer := config.Registerer
	if registerer == nil {
		reg := prometheus.NewRegistry()
		registerer = reg
		m.gatherer = reg
	} else if g, ok := registerer.(prometheus.Gatherer); ok {
		m.gatherer = g
	}
	m.metrics = newMetrics(registerer)

	return m
}

// Gatherer returns the gatherer of the manager metrics, or nil when the
// configured registerer can't gather.
func (m *Manager) Gatherer() prometheus.Gatherer {
	return m.gatherer
}

// StartListener starts a listener with acceptors acceptor workers sharing one
// listening socket opened by transport, each accepted connection being
// served by a handler of protocol.
func (m *Manager) StartListener(ref any, acceptors int, transport core.Transport, transportOptions map[string]interface{},
	protocol core.Protocol, protocolOptions core.ProtocolOptions) (*Listener, error) {
	return m.start(ref, ListenerSpec{
		Acceptors:        acceptors,
		Transport:        transport,
		TransportOptions: transportOptions,
		Protocol:         protocol,
		ProtocolOptions:  protocolOptions,
	})
}

// start registers and starts the listener. The reference is reserved before
// the socket is opened.
func (m *Manager) start(ref any, spec ListenerSpec) (*Listener, error) {
	if err := validRef(ref); err != nil {
		return nil, err
	}
	if err := spec.validate(); err != nil {
		return nil, err
	}

	l := newListener(m, ref, spec)
	if err := m.registry.register(ref, l); err != nil {
		l.coordinator.stop()
		return nil, err
	}
	if err := l.start(); err != nil {
		m.registry.unregister(ref, l)
		l.logger.Error("Failed to start listener", "err", err)
		return nil, err
	}
	m.metrics.listeners.Inc()

	return l, nil
}

// StopListener stops the listener. The connections already handed off are
// not closed.
func (m *Manager) StopListener(ref any) error {
	l, err := m.registry.resolve(ref)
	if err != nil {
		return err
	}
	return l.stop()
}

// SuspendListener closes the listening socket of the listener and stops its
// acceptors. Its protocol options stay readable and writable.
func (m *Manager) SuspendListener(ref any) error {
	l, err := m.registry.resolve(ref)
	if err != nil {
		return err
	}
	return l.suspend()
}

// ResumeListener reopens the listening socket of a suspended listener.
func (m *Manager) ResumeListener(ref any) error {
	l, err := m.registry.resolve(ref)
	if err != nil {
		return err
	}
	return l.resume()
}

// GetProtocolOptions returns a copy of the current protocol options of the
// listener.
func (m *Manager) GetProtocolOptions(ref any) (core.ProtocolOptions, error) {
	l, err := m.registry.resolve(ref)
	if err != nil {
		return nil, err
	}
	options, err := l.coordinator.fetch()
	if err != nil {
		return nil, err
	}
	return copyOptions(options), nil
}

// SetProtocolOptions replaces the protocol options of the listener. Only the
// connections accepted after the call returns use the new options.
func (m *Manager) SetProtocolOptions(ref any, options core.ProtocolOptions) error {
	l, err := m.registry.resolve(ref)
	if err != nil {
		return err
	}
	if err := l.coordinator.store(options); err != nil {
		return err
	}
	m.metrics.protocolReconfigs.WithLabelValues(l.label).Inc()
	l.logger.Info("Protocol options updated")

	return nil
}

// GetAddr returns the address of the listening socket of the listener.
func (m *Manager) GetAddr(ref any) (net.Addr, error) {
	l, err := m.registry.resolve(ref)
	if err != nil {
		return nil, err
	}
	addr := l.Addr()
	if addr == nil {
		return nil, ErrNotListening
	}
	return addr, nil
}

// Info returns the description of the listener.
func (m *Manager) Info(ref any) (ListenerInfo, error) {
	l, err := m.registry.resolve(ref)
	if err != nil {
		return ListenerInfo{}, err
	}
	return l.info()
}

// Listeners returns the description of every registered listener.
func (m *Manager) Listeners() []ListenerInfo {
	var infos []ListenerInfo
	for _, l := range m.registry.list() {
		info, err := l.info()
		if err != nil {
			continue
		}
		infos = append(infos, info)
	}
	return infos
}

// StopAll stops every registered listener.
func (m *Manager) StopAll() {
	for _, l := range m.registry.list() {
		_ = l.stop()
	}
}
