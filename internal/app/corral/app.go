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
	"os"
	"os/signal"
	"reflect"
	"sort"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/bhuisgen/corral/pkg/corral"
	"github.com/bhuisgen/corral/pkg/log"
)

// App implements the application.
type App struct {
	config     *config
	logger     *slog.Logger
	state      *appState
	netListen  func(network, address string) (net.Listener, error)
	loadConfig func() (*config, error)
}

// appState implements the application state.
type appState struct {
	manager   *corral.Manager
	listeners map[string]*appListener
	group     *errgroup.Group
	ctx       context.Context
	admin     *grpc.Server
	adminLn   net.Listener
	metrics   *metricsServer
}

// appListener implements a listener run by the application.
type appListener struct {
	listener *listener
	cancel   context.CancelFunc
	done     chan struct{}
}

const (
	appLogger string = "app"

	appStopTimeout time.Duration = 10 * time.Second
)

// newApp creates a new application.
func newApp(config *config) *App {
	return &App{
		config: config,
		logger: log.New(appLogger),
		state: &appState{
			listeners: make(map[string]*appListener),
		},
		netListen:  net.Listen,
		loadConfig: LoadConfig,
	}
}

// Check checks the instance configuration and returns the report of the
// problems found.
func (a *App) Check() ([]string, error) {
	var report []string

	if a.config.Manager != nil {
		report = append(report, checkManager(a.config.Manager)...)
	}
	if a.config.Admin != nil {
		report = append(report, checkAdmin(a.config.Admin)...)
	}
	if a.config.Metrics != nil {
		report = append(report, checkMetrics(a.config.Metrics)...)
	}
	_, r, _ := loadListeners(a.config)
	report = append(report, r...)

	if len(report) > 0 {
		return report, errors.New("check failure")
	}

	return nil, nil
}

// Describe returns one line per valid configured listener.
func (a *App) Describe() []string {
	listeners, _, err := loadListeners(a.config)
	if err != nil {
		return nil
	}

	lines := make([]string, 0, len(listeners))
	for _, name := range listenerNames(listeners) {
		l := listeners[name]
		lines = append(lines, fmt.Sprintf("listener '%s': transport '%s', protocol '%s', %d acceptors", name,
			l.transportName, l.protocolName, l.acceptors))
	}

	return lines
}

// Serve executes the instance until it is stopped by a signal, ctx is done
// or a listener fails.
func (a *App) Serve(ctx context.Context) error {
	if DEBUG {
		a.logger.Warn("Debug enabled")
	}

	a.logger.Info("Starting instance")

	if err := a.start(ctx); err != nil {
		a.logger.Error("Failed to start instance", "err", err)
		return fmt.Errorf("start instance: %v", err)
	}

	a.logger.Info("Instance ready")

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, syscall.SIGINT, syscall.SIGTERM)
	reload := make(chan os.Signal, 1)
	signal.Notify(reload, syscall.SIGHUP)

loop:
	for {
		select {
		case <-ctx.Done():
			a.logger.Info("Context done, stopping instance")
			break loop
		case <-a.state.ctx.Done():
			a.logger.Error("Listener failure, stopping instance")
			break loop
		case <-exit:
			a.logger.Info("Signal SIGINT/SIGTERM received, stopping instance")
			break loop
		case <-reload:
			a.logger.Info("Signal SIGHUP received, reloading instance")
			config, err := a.loadConfig()
			if err != nil {
				a.logger.Error("Failed to load configuration", "err", err)
				continue
			}
			if err := a.reload(config); err != nil {
				a.logger.Error("Failed to reload instance", "err", err)
				continue
			}
			a.logger.Info("Instance reloaded")
		}
	}

	signal.Stop(exit)
	signal.Stop(reload)

	err := a.stop()
	if err != nil {
		a.logger.Error("Instance stopped with error", "err", err)
	}

	a.logger.Info("Instance terminated")

	return err
}

// start starts the instance.
func (a *App) start(ctx context.Context) error {
	listeners, _, err := loadListeners(a.config)
	if err != nil {
		return fmt.Errorf("load listeners: %w", err)
	}

	registry := newMetricsRegistry()
	managerConfig := newManagerConfig(a.config.Manager)
	managerConfig.Registerer = registry
	a.state.manager = corral.NewManager(managerConfig)
	a.state.group, a.state.ctx = errgroup.WithContext(ctx)

	if a.config.Metrics != nil {
		a.state.metrics = newMetricsServer(a.config.Metrics, registry)
		a.state.metrics.netListen = a.netListen
		if err := a.state.metrics.Start(); err != nil {
			return fmt.Errorf("start metrics: %w", err)
		}
	}

	if a.config.Admin != nil {
		if err := a.startAdmin(); err != nil {
			a.stopMetrics()
			return fmt.Errorf("start admin: %w", err)
		}
	}

	for _, name := range listenerNames(listeners) {
		a.startListener(listeners[name])
	}

	return nil
}

// stop stops the instance.
func (a *App) stop() error {
	for _, l := range a.state.listeners {
		l.cancel()
	}
	err := a.state.group.Wait()

	if a.state.admin != nil {
		a.state.admin.GracefulStop()
	}
	a.stopMetrics()

	return err
}

// stopMetrics stops the metrics endpoint if started.
func (a *App) stopMetrics() {
	if a.state.metrics == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), appStopTimeout)
	defer cancel()
	if err := a.state.metrics.Stop(ctx); err != nil {
		a.logger.Error("Failed to stop metrics", "err", err)
	}
}

// startAdmin starts the admin service.
func (a *App) startAdmin() error {
	ln, err := a.netListen("tcp", adminAddress(a.config.Admin))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	server := grpc.NewServer()
	RegisterAdminServer(server, newAdminService(a.state.manager))
	a.state.admin = server
	a.state.adminLn = ln

	go func() {
		if err := server.Serve(ln); err != nil {
			a.logger.Error("Failed to serve admin", "err", err)
		}
	}()
	a.logger.Info("Admin service started", "addr", ln.Addr().String())

	return nil
}

// startListener runs the listener under the instance group. A listener
// which stops by itself with an error stops the instance.
func (a *App) startListener(l *listener) {
	ctx, cancel := context.WithCancel(a.state.ctx)
	al := &appListener{
		listener: l,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	a.state.listeners[l.name] = al

	spec := l.childSpec(a.state.manager)
	a.state.group.Go(func() error {
		defer close(al.done)
		defer cancel()

		if err := spec.Run(ctx); err != nil {
			a.logger.Error("Listener failed", "listener", l.name, "err", err)
			return fmt.Errorf("listener %s: %w", l.name, err)
		}
		return nil
	})
	a.logger.Debug("Listener started", "listener", l.name)
}

// stopListener stops the listener and waits for its termination.
func (a *App) stopListener(name string) {
	al, ok := a.state.listeners[name]
	if !ok {
		return
	}
	al.cancel()
	<-al.done
	delete(a.state.listeners, name)
	a.logger.Debug("Listener stopped", "listener", name)
}

// reload applies the listeners of the new configuration: removed listeners
// are stopped, added ones started, listeners whose socket changed are
// restarted and the others get the new protocol options. The connections
// already accepted keep their options.
func (a *App) reload(c *config) error {
	listeners, _, err := loadListeners(c)
	if err != nil {
		return fmt.Errorf("load listeners: %w", err)
	}

	for name, al := range a.state.listeners {
		l, ok := listeners[name]
		if ok && al.running() && al.listener.sameSocket(l) {
			continue
		}
		a.stopListener(name)
	}

	for _, name := range listenerNames(listeners) {
		l := listeners[name]
		al, ok := a.state.listeners[name]
		if !ok {
			a.startListener(l)
			a.logger.Info("Listener added", "listener", name)
			continue
		}

		current, err := a.state.manager.GetProtocolOptions(name)
		if err != nil {
			return fmt.Errorf("get protocol options of listener %s: %w", name, err)
		}
		if reflect.DeepEqual(current, l.protocolOptions) {
			continue
		}
		if err := a.state.manager.SetProtocolOptions(name, l.protocolOptions); err != nil {
			return fmt.Errorf("set protocol options of listener %s: %w", name, err)
		}
		al.listener.protocolOptions = l.protocolOptions
	}

	a.config.Listeners = c.Listeners

	return nil
}

// running reports whether the listener is still running.
func (al *appListener) running() bool {
	select {
	case <-al.done:
		return false
	default:
		return true
	}
}

// loadListeners loads every configured listener.
func loadListeners(c *config) (map[string]*listener, []string, error) {
	var report []string

	listeners := make(map[string]*listener, len(c.Listeners))
	names := make([]string, 0, len(c.Listeners))
	for name := range c.Listeners {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		l, r, err := loadListener(name, c.Listeners[name])
		if err != nil {
			report = append(report, r...)
			continue
		}
		listeners[name] = l
	}

	if len(report) > 0 {
		return nil, report, errors.New("check failure")
	}

	return listeners, nil, nil
}

// listenerNames returns the sorted names of the listeners.
func listenerNames(listeners map[string]*listener) []string {
	names := make([]string, 0, len(listeners))
	for name := range listeners {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// newManagerConfig returns the listener manager configuration.
func newManagerConfig(c *configManager) corral.Config {
	config := corral.DefaultConfig()
	if c == nil {
		return config
	}

	if c.MaxRestarts != nil {
		config.MaxRestarts = *c.MaxRestarts
	}
	if c.RestartPeriod != nil {
		config.RestartPeriod = time.Duration(*c.RestartPeriod) * time.Second
	}
	if c.RestartBackoff != nil {
		config.RestartBackoff = time.Duration(*c.RestartBackoff) * time.Millisecond
	}
	if c.MaxRestartBackoff != nil {
		config.MaxRestartBackoff = time.Duration(*c.MaxRestartBackoff) * time.Millisecond
	}

	return config
}

// checkManager checks the manager configuration.
func checkManager(c *configManager) []string {
	var report []string

	for _, option := range []struct {
		name  string
		value *int
	}{
		{"MaxRestarts", c.MaxRestarts},
		{"RestartPeriod", c.RestartPeriod},
		{"RestartBackoff", c.RestartBackoff},
		{"MaxRestartBackoff", c.MaxRestartBackoff},
	} {
		if option.value != nil && *option.value < 0 {
			report = append(report, fmt.Sprintf("manager: option '%s', invalid value '%d'", option.name, *option.value))
		}
	}

	return report
}

// checkAdmin checks the admin configuration.
func checkAdmin(c *configAdmin) []string {
	var report []string

	if c.ListenPort != nil && (*c.ListenPort < 0 || *c.ListenPort > 65535) {
		report = append(report, fmt.Sprintf("admin: option '%s', invalid value '%d'", "ListenPort", *c.ListenPort))
	}

	return report
}

// adminAddress returns the address of the admin service.
func adminAddress(c *configAdmin) string {
	addr := adminConfigDefaultListenAddr
	if c.ListenAddr != nil {
		addr = *c.ListenAddr
	}
	port := adminConfigDefaultListenPort
	if c.ListenPort != nil {
		port = *c.ListenPort
	}

	return net.JoinHostPort(addr, fmt.Sprint(port))
}
