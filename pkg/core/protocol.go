// Copyright 2022-2024 Boris HUISGEN. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package core

import (
	"net"
)

// ProtocolOptions holds the protocol configuration of a listener. The value
// given to a handler must be treated as read-only.
type ProtocolOptions map[string]interface{}

// Protocol is the capability used to create a connection handler.
type Protocol interface {
	Module

	// StartHandler creates the handler of an accepted connection. It must not
	// perform any I/O on conn: the handler owns it only once ack is granted.
	StartHandler(conn net.Conn, options ProtocolOptions, ack *Handoff) (Handler, error)
}

// Handler is a connection handler.
type Handler interface {
	// Serve runs the handler on its own goroutine. It must wait for the
	// handoff acknowledgement before touching the connection.
	Serve() error
}
