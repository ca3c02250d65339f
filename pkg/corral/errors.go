// Copyright 2022-2024 Boris HUISGEN. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package corral

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyRegistered is returned when starting a listener whose
	// reference is already in use.
	ErrAlreadyRegistered = errors.New("listener already registered")
	// ErrNotFound is returned when no active listener has the reference.
	ErrNotFound = errors.New("listener not found")
	// ErrInvalidRef is returned for a reference which can't be used as a
	// map key.
	ErrInvalidRef = errors.New("invalid listener reference")
	// ErrInvalidSpec is returned for an unusable listener specification.
	ErrInvalidSpec = errors.New("invalid listener specification")
	// ErrNotListening is returned when the listener has no listening socket.
	ErrNotListening = errors.New("listener not listening")
	// ErrNotSuspended is returned when resuming a listener which is not
	// suspended.
	ErrNotSuspended = errors.New("listener not suspended")
	// ErrNotRunning is returned when suspending a listener which is not
	// running.
	ErrNotRunning = errors.New("listener not running")
	// ErrRestartIntensity is the reason of a listener teardown after too many
	// acceptor restarts.
	ErrRestartIntensity = errors.New("acceptor restart intensity reached")
	// ErrSocketClosed is the reason of a listener teardown after its listening
	// socket was closed by a third party.
	ErrSocketClosed = errors.New("listening socket closed")
)

// TransportError reports a failure of the transport to open the listening
// socket.
type TransportError struct {
	Transport string
	Err       error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Transport, e.Err)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}
