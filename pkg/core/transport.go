// Copyright 2022-2024 Boris HUISGEN. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package core

import (
	"context"
	"errors"
	"net"
	"syscall"
)

// Transport is the capability used to open a listening socket and accept
// connections on it.
type Transport interface {
	Module

	// Listen opens a listening socket configured by options.
	Listen(ctx context.Context, options map[string]interface{}) (net.Listener, error)
	// Accept blocks until a connection is accepted on the listening socket.
	//
	// Errors satisfying IsClosed end the acceptor, errors satisfying
	// IsTemporary are retried and any other error is an acceptor failure.
	Accept(ln net.Listener) (net.Conn, error)
	// Handoff transfers the control of the accepted connection to the
	// handler. It is called before the handler is allowed to use it.
	Handoff(conn net.Conn, handler Handler) error
	// Close closes the listening socket.
	Close(ln net.Listener) error
}

// ErrTemporary can be wrapped by transports to report a transient accept
// failure.
var ErrTemporary = errors.New("temporary accept failure")

// IsClosed reports whether err means that the listening socket is closed.
func IsClosed(err error) bool {
	return errors.Is(err, net.ErrClosed)
}

// IsTemporary reports whether err is a transient accept failure which must
// be retried immediately.
func IsTemporary(err error) bool {
	if errors.Is(err, ErrTemporary) {
		return true
	}
	for _, errno := range []syscall.Errno{
		syscall.EAGAIN,
		syscall.ECONNABORTED,
		syscall.ECONNRESET,
		syscall.EINTR,
		syscall.EMFILE,
		syscall.ENFILE,
		syscall.ENOBUFS,
		syscall.ENOMEM,
	} {
		if errors.Is(err, errno) {
			return true
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return false
}
