// Copyright 2022-2024 Boris HUISGEN. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package core

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrHandoffAborted is returned by Wait when the acceptor gave up the
// connection without a reason.
var ErrHandoffAborted = errors.New("handoff aborted")

// Handoff is the single-use signal granting the ownership of an accepted
// connection to its handler.
type Handoff struct {
	id   uuid.UUID
	once sync.Once
	done chan struct{}
	err  error
}

// NewHandoff creates a new pending handoff.
func NewHandoff() *Handoff {
	return &Handoff{
		id:   uuid.New(),
		done: make(chan struct{}),
	}
}

// ID returns the handoff id.
func (h *Handoff) ID() uuid.UUID {
	return h.id
}

// Grant signals the handler that it owns the connection. Only the first call
// to Grant or Abort has an effect.
func (h *Handoff) Grant() {
	h.once.Do(func() {
		close(h.done)
	})
}

// Abort signals the handler that the connection will never be handed to it.
func (h *Handoff) Abort(err error) {
	if err == nil {
		err = ErrHandoffAborted
	}
	h.once.Do(func() {
		h.err = err
		close(h.done)
	})
}

// Done returns a channel closed once the handoff is granted or aborted.
func (h *Handoff) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the handoff is granted or aborted. There is no timeout.
func (h *Handoff) Wait() error {
	<-h.done
	return h.err
}
