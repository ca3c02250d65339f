// Copyright 2022-2024 Boris HUISGEN. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package corral runs pools of acceptors which accept connections on a
// shared listening socket and hand each of them off to a new protocol
// handler.
//
// Listeners are named by a caller-chosen comparable reference. The protocol
// options of a listener can be replaced at runtime: connections accepted
// before the change keep the options they were started with.
package corral

import (
	"net"
	"sync"

	"github.com/bhuisgen/corral/pkg/core"
)

var (
	defaultManager     *Manager
	defaultManagerOnce sync.Once
)

// Default returns the process-wide manager used by the package functions.
func Default() *Manager {
	defaultManagerOnce.Do(func() {
		defaultManager = NewManager(DefaultConfig())
	})
	return defaultManager
}

// StartListener starts a listener on the default manager.
func StartListener(ref any, acceptors int, transport core.Transport, transportOptions map[string]interface{},
	protocol core.Protocol, protocolOptions core.ProtocolOptions) (*Listener, error) {
	return Default().StartListener(ref, acceptors, transport, transportOptions, protocol, protocolOptions)
}

// StopListener stops a listener of the default manager.
func StopListener(ref any) error {
	return Default().StopListener(ref)
}

// SuspendListener suspends a listener of the default manager.
func SuspendListener(ref any) error {
	return Default().SuspendListener(ref)
}

// ResumeListener resumes a listener of the default manager.
func ResumeListener(ref any) error {
	return Default().ResumeListener(ref)
}

// NewChildSpec returns the child specification of a listener of the default
// manager.
func NewChildSpec(ref any, acceptors int, transport core.Transport, transportOptions map[string]interface{},
	protocol core.Protocol, protocolOptions core.ProtocolOptions) ChildSpec {
	return Default().ChildSpec(ref, acceptors, transport, transportOptions, protocol, protocolOptions)
}

// GetProtocolOptions returns the protocol options of a listener of the
// default manager.
func GetProtocolOptions(ref any) (core.ProtocolOptions, error) {
	return Default().GetProtocolOptions(ref)
}

// SetProtocolOptions replaces the protocol options of a listener of the
// default manager.
func SetProtocolOptions(ref any, options core.ProtocolOptions) error {
	return Default().SetProtocolOptions(ref, options)
}

// GetAddr returns the listening address of a listener of the default
// manager.
func GetAddr(ref any) (net.Addr, error) {
	return Default().GetAddr(ref)
}

// Info returns the description of a listener of the default manager.
func Info(ref any) (ListenerInfo, error) {
	return Default().Info(ref)
}

// Listeners returns the description of the listeners of the default manager.
func Listeners() []ListenerInfo {
	return Default().Listeners()
}

// AcceptAck blocks until the connection of the handler is handed off. It is
// called by each handler before touching its connection and returns an
// error if the acceptor gave the connection up.
func AcceptAck(ack *core.Handoff) error {
	return ack.Wait()
}
