// Copyright 2022-2024 Boris HUISGEN. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package corral

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/bhuisgen/corral/pkg/core"
)

// State is the lifecycle state of a listener.
type State int

const (
	StateStarting State = iota
	StateRunning
	StateSuspended
	StateStopping
	StateStopped
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateSuspended:
		return "suspended"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ListenerSpec is the immutable specification of a listener.
type ListenerSpec struct {
	Acceptors        int
	Transport        core.Transport
	TransportOptions map[string]interface{}
	Protocol         core.Protocol
	ProtocolOptions  core.ProtocolOptions
}

// validate checks the specification.
func (s ListenerSpec) validate() error {
	if s.Acceptors < 0 {
		return fmt.Errorf("%w: negative acceptor count %d", ErrInvalidSpec, s.Acceptors)
	}
	if s.Transport == nil {
		return fmt.Errorf("%w: missing transport", ErrInvalidSpec)
	}
	if s.Protocol == nil {
		return fmt.Errorf("%w: missing protocol", ErrInvalidSpec)
	}
	return nil
}

// Listener supervises the coordinator and the acceptor pool of one listener
// reference.
type Listener struct {
	ref         any
	label       string
	spec        ListenerSpec
	manager     *Manager
	logger      *slog.Logger
	coordinator *coordinator
	intensity   *rate.Limiter
	active      atomic.Int64
	opMu        sync.Mutex
	mu          sync.RWMutex
	state       State
	gen         *generation
	err         error
	done        chan struct{}
}

// generation is one listening socket and the acceptor pool serving it.
type generation struct {
	ln        net.Listener
	cancel    context.CancelFunc
	closeOnce sync.Once
	requested atomic.Bool
	done      chan struct{}
	err       error
}

// newListener creates a new listener in the starting state. Its coordinator
// runs from the start so the options are readable as soon as the reference
// is registered.
func newListener(m *Manager, ref any, spec ListenerSpec) *Listener {
	label := refLabel(ref)
	return &Listener{
		ref:         ref,
		label:       label,
		spec:        spec,
		manager:     m,
		logger:      m.logger.With("listener", label),
		coordinator: newCoordinator(spec.ProtocolOptions),
		intensity:   newIntensityLimiter(m.config.MaxRestarts, m.config.RestartPeriod),
		state:       StateStarting,
		done:        make(chan struct{}),
	}
}

// refLabel returns the metrics and log label of a reference. String
// references are used as is, other references are prefixed by their type so
// that "1" and 1 get distinct series.
func refLabel(ref any) string {
	if s, ok := ref.(string); ok {
		return s
	}
	return fmt.Sprintf("%T:%v", ref, ref)
}

// newIntensityLimiter allows maxRestarts restarts in a burst, refilled over
// period. No restart is allowed when maxRestarts is zero.
func newIntensityLimiter(maxRestarts int, period time.Duration) *rate.Limiter {
	if maxRestarts < 1 || period <= 0 {
		return rate.NewLimiter(0, 0)
	}
	return rate.NewLimiter(rate.Every(period/time.Duration(maxRestarts)), maxRestarts)
}

// Ref returns the listener reference.
func (l *Listener) Ref() any {
	return l.ref
}

// State returns the listener state.
func (l *Listener) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.state
}

// Addr returns the address of the listening socket, or nil when the
// listener is not listening.
func (l *Listener) Addr() net.Addr {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.gen == nil {
		return nil
	}
	return l.gen.ln.Addr()
}

// ActiveConnections returns the number of running connection handlers.
func (l *Listener) ActiveConnections() int64 {
	return l.active.Load()
}

// Done returns a channel closed once the listener is stopped.
func (l *Listener) Done() <-chan struct{} {
	return l.done
}

// Err returns the reason of the teardown of a listener which stopped by
// itself. It returns nil while the listener runs or after a requested stop.
func (l *Listener) Err() error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.err
}

func (l *Listener) setState(state State) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.logger.Debug("Listener state changed", "from", l.state.String(), "to", state.String())
	l.state = state
}

// start opens the listening socket and starts the acceptors. The coordinator
// is stopped if the socket can't be opened.
func (l *Listener) start() error {
	l.opMu.Lock()
	defer l.opMu.Unlock()

	if err := l.listen(); err != nil {
		l.coordinator.stop()
		l.mu.Lock()
		l.state = StateStopped
		l.err = err
		l.mu.Unlock()
		close(l.done)
		return err
	}

	l.setState(StateRunning)
	l.logger.Info("Listener started", "addr", addrString(l.Addr()), "acceptors", l.spec.Acceptors)

	return nil
}

// listen opens a new socket generation. The caller holds opMu.
func (l *Listener) listen() error {
	ln, err := l.spec.Transport.Listen(context.Background(), l.spec.TransportOptions)
	if err != nil {
		return &TransportError{
			Transport: string(l.spec.Transport.ModuleInfo().ID),
			Err:       err,
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	gen := &generation{
		ln:     ln,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	var g errgroup.Group
	g.Go(func() error {
		<-ctx.Done()
		l.closeSocket(gen)
		return nil
	})
	for i := 0; i < l.spec.Acceptors; i++ {
		id := i
		g.Go(func() error {
			return l.superviseAcceptor(ctx, gen, id)
		})
	}
	go func() {
		l.poolExited(gen, g.Wait())
	}()

	l.mu.Lock()
	l.gen = gen
	l.mu.Unlock()

	return nil
}

// unlisten cancels the current socket generation and waits for its
// acceptors. The caller holds opMu.
func (l *Listener) unlisten() {
	l.mu.Lock()
	gen := l.gen
	l.gen = nil
	l.mu.Unlock()

	if gen == nil {
		return
	}
	gen.requested.Store(true)
	gen.cancel()
	<-gen.done
}

// closeSocket closes the listening socket of the generation once.
func (l *Listener) closeSocket(gen *generation) {
	gen.closeOnce.Do(func() {
		if err := l.spec.Transport.Close(gen.ln); err != nil && !core.IsClosed(err) {
			l.logger.Warn("Failed to close listening socket", "err", err)
		}
	})
}

// poolExited is called once every acceptor of the generation has exited.
func (l *Listener) poolExited(gen *generation, err error) {
	gen.err = err
	close(gen.done)

	if gen.requested.Load() {
		return
	}
	if err == nil {
		err = ErrSocketClosed
	}
	l.fail(gen, err)
}

// fail tears the listener down after a failure of its acceptor pool.
func (l *Listener) fail(gen *generation, err error) {
	l.opMu.Lock()
	defer l.opMu.Unlock()

	l.mu.RLock()
	current := l.gen == gen && l.state == StateRunning
	l.mu.RUnlock()
	if !current {
		return
	}

	l.logger.Error("Listener failed", "err", err)
	l.terminate(err)
}

// terminate stops the acceptors, closes the socket, stops the coordinator
// and unregisters the listener. The caller holds opMu.
func (l *Listener) terminate(reason error) {
	l.setState(StateStopping)

	l.unlisten()
	l.coordinator.stop()
	l.manager.registry.unregister(l.ref, l)
	l.manager.metrics.listeners.Dec()

	l.mu.Lock()
	l.err = reason
	l.state = StateStopped
	l.mu.Unlock()
	close(l.done)

	l.logger.Info("Listener stopped", "active", l.active.Load())
}

// stop stops a running or suspended listener. Established connections are
// left to their handlers.
func (l *Listener) stop() error {
	l.opMu.Lock()
	defer l.opMu.Unlock()

	switch l.State() {
	case StateRunning, StateSuspended:
	default:
		return ErrNotFound
	}

	l.terminate(nil)

	return nil
}

// suspend closes the listening socket and stops the acceptors while keeping
// the listener registered.
func (l *Listener) suspend() error {
	l.opMu.Lock()
	defer l.opMu.Unlock()

	switch l.State() {
	case StateRunning:
	case StateStopping, StateStopped:
		return ErrNotFound
	default:
		return ErrNotRunning
	}

	l.unlisten()
	l.setState(StateSuspended)
	l.logger.Info("Listener suspended")

	return nil
}

// resume opens a new listening socket and restarts the acceptors.
func (l *Listener) resume() error {
	l.opMu.Lock()
	defer l.opMu.Unlock()

	switch l.State() {
	case StateSuspended:
	case StateStopping, StateStopped:
		return ErrNotFound
	default:
		return ErrNotSuspended
	}

	if err := l.listen(); err != nil {
		return err
	}
	l.setState(StateRunning)
	l.logger.Info("Listener resumed", "addr", addrString(l.Addr()))

	return nil
}

// ListenerInfo describes a listener.
type ListenerInfo struct {
	Ref               any
	State             State
	Addr              net.Addr
	Acceptors         int
	ActiveConnections int64
	Transport         string
	Protocol          string
	ProtocolOptions   core.ProtocolOptions
}

// info returns the listener description.
func (l *Listener) info() (ListenerInfo, error) {
	options, err := l.coordinator.fetch()
	if err != nil {
		return ListenerInfo{}, err
	}

	return ListenerInfo{
		Ref:               l.ref,
		State:             l.State(),
		Addr:              l.Addr(),
		Acceptors:         l.spec.Acceptors,
		ActiveConnections: l.active.Load(),
		Transport:         string(l.spec.Transport.ModuleInfo().ID),
		Protocol:          string(l.spec.Protocol.ModuleInfo().ID),
		ProtocolOptions:   copyOptions(options),
	}, nil
}
