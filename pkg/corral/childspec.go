// Copyright 2022-2024 Boris HUISGEN. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package corral

import (
	"context"
	"errors"

	"github.com/bhuisgen/corral/pkg/core"
)

// ChildSpec describes a listener for an external supervisor. Building it
// starts nothing.
type ChildSpec struct {
	ID      any
	Spec    ListenerSpec
	manager *Manager
}

// ChildSpec returns the child specification of a listener.
func (m *Manager) ChildSpec(ref any, acceptors int, transport core.Transport, transportOptions map[string]interface{},
	protocol core.Protocol, protocolOptions core.ProtocolOptions) ChildSpec {
	return ChildSpec{
		ID: ref,
		Spec: ListenerSpec{
			Acceptors:        acceptors,
			Transport:        transport,
			TransportOptions: transportOptions,
			Protocol:         protocol,
			ProtocolOptions:  protocolOptions,
		},
		manager: m,
	}
}

// Start starts and registers the listener.
func (c ChildSpec) Start() (*Listener, error) {
	m := c.manager
	if m == nil {
		m = Default()
	}
	return m.start(c.ID, c.Spec)
}

// Run starts the listener and blocks until ctx is done, in which case the
// listener is stopped and nil is returned, or until the listener stops by
// itself, in which case the reason is returned.
func (c ChildSpec) Run(ctx context.Context) error {
	l, err := c.Start()
	if err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		if err := l.stop(); err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		return nil

	case <-l.Done():
		if err := l.Err(); err != nil {
			return err
		}
		return nil
	}
}
