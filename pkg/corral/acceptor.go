// Copyright 2022-2024 Boris HUISGEN. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package corral

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/bhuisgen/corral/pkg/core"
)

// acceptor implements an acceptor worker of a listener.
type acceptor struct {
	id       int
	listener *Listener
	ln       net.Listener
	backoff  backoff.BackOff
	logger   *slog.Logger
}

// superviseAcceptor runs the acceptor of the given slot and restarts it after
// a failure, until the socket generation is cancelled or the restart
// intensity of the listener is reached.
func (l *Listener) superviseAcceptor(ctx context.Context, gen *generation, id int) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = l.manager.config.RestartBackoff
	b.MaxInterval = l.manager.config.MaxRestartBackoff
	b.MaxElapsedTime = 0
	b.Reset()

	a := &acceptor{
		id:       id,
		listener: l,
		ln:       gen.ln,
		backoff:  b,
		logger:   l.logger.With("acceptor", id),
	}

	for {
		err := a.run()
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			// the socket was closed behind our back
			gen.cancel()
			return ErrSocketClosed
		}

		a.logger.Error("Acceptor failed", "err", err)
		l.manager.metrics.acceptorRestarts.WithLabelValues(l.label).Inc()

		if !l.intensity.Allow() {
			gen.cancel()
			return fmt.Errorf("acceptor %d: %w: %v", id, ErrRestartIntensity, err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(b.NextBackOff()):
		}

		a.logger.Info("Restarting acceptor")
	}
}

// run accepts connections until the listening socket is closed. A nil error
// means that the socket was closed.
func (a *acceptor) run() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	transport := a.listener.spec.Transport
	for {
		conn, err := transport.Accept(a.ln)
		if err != nil {
			switch {
			case core.IsClosed(err):
				return nil
			case core.IsTemporary(err):
				a.listener.manager.metrics.acceptErrors.WithLabelValues(a.listener.label, acceptErrorTemporary).Inc()
				a.logger.Debug("Temporary accept error", "err", err)
				continue
			}
			a.listener.manager.metrics.acceptErrors.WithLabelValues(a.listener.label, acceptErrorFatal).Inc()
			return fmt.Errorf("accept: %w", err)
		}

		a.dispatch(conn)
		a.backoff.Reset()
	}
}

// dispatch fetches the current protocol options, starts a handler for conn
// and hands the connection off to it.
func (a *acceptor) dispatch(conn net.Conn) {
	l := a.listener

	options, err := l.coordinator.fetch()
	if err != nil {
		_ = conn.Close()
		return
	}

	ack := core.NewHandoff()
	logger := a.logger.With("conn", ack.ID().String(), "remote", addrString(conn.RemoteAddr()))

	started := false
	defer func() {
		if r := recover(); r != nil {
			if started {
				ack.Abort(fmt.Errorf("acceptor failure: %v", r))
			} else {
				_ = conn.Close()
			}
			panic(r)
		}
	}()

	handler, err := l.spec.Protocol.StartHandler(conn, options, ack)
	if err != nil {
		logger.Error("Failed to start handler", "err", err)
		_ = conn.Close()
		return
	}

	l.serve(conn, handler, logger)
	started = true

	if err := l.spec.Transport.Handoff(conn, handler); err != nil {
		logger.Error("Failed to hand off connection", "err", err)
		ack.Abort(fmt.Errorf("handoff: %w", err))
		return
	}
	ack.Grant()

	l.manager.metrics.acceptedConns.WithLabelValues(l.label).Inc()
	logger.Debug("Connection handed off")
}

// serve runs the handler on its own goroutine. The connection is closed once
// the handler returns.
func (l *Listener) serve(conn net.Conn, handler core.Handler, logger *slog.Logger) {
	l.active.Add(1)
	l.manager.metrics.activeConns.WithLabelValues(l.label).Inc()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("Handler panic", "panic", r)
				l.manager.metrics.handlerPanics.WithLabelValues(l.label).Inc()
			}
			_ = conn.Close()
			l.active.Add(-1)
			l.manager.metrics.activeConns.WithLabelValues(l.label).Dec()
		}()

		if err := handler.Serve(); err != nil {
			logger.Debug("Handler stopped", "err", err)
		}
	}()
}

func addrString(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	return addr.String()
}
