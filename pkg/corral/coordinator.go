// Copyright 2022-2024 Boris HUISGEN. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package corral

import (
	"github.com/mohae/deepcopy"

	"github.com/bhuisgen/corral/pkg/core"
)

// coordinator owns the protocol options of a listener. Every read and write
// goes through its event loop.
type coordinator struct {
	options core.ProtocolOptions
	get     chan chan core.ProtocolOptions
	set     chan coordinatorUpdate
	quit    chan struct{}
	done    chan struct{}
}

// coordinatorUpdate is a request to replace the options.
type coordinatorUpdate struct {
	options core.ProtocolOptions
	applied chan struct{}
}

// newCoordinator creates a coordinator seeded with a copy of options and
// starts its event loop.
func newCoordinator(options core.ProtocolOptions) *coordinator {
	c := &coordinator{
		options: copyOptions(options),
		get:     make(chan chan core.ProtocolOptions),
		set:     make(chan coordinatorUpdate),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}

	go c.waitForEvents()

	return c
}

// waitForEvents serves the requests until the coordinator is stopped.
func (c *coordinator) waitForEvents() {
	defer close(c.done)

	for {
		select {
		case <-c.quit:
			return

		case reply := <-c.get:
			reply <- c.options

		case update := <-c.set:
			c.options = update.options
			close(update.applied)
		}
	}
}

// fetch returns the current options.
func (c *coordinator) fetch() (core.ProtocolOptions, error) {
	reply := make(chan core.ProtocolOptions, 1)
	select {
	case c.get <- reply:
		return <-reply, nil
	case <-c.done:
		return nil, ErrNotFound
	}
}

// store replaces the options and returns once the new value is visible to
// every later fetch.
func (c *coordinator) store(options core.ProtocolOptions) error {
	update := coordinatorUpdate{
		options: copyOptions(options),
		applied: make(chan struct{}),
	}
	select {
	case c.set <- update:
		<-update.applied
		return nil
	case <-c.done:
		return ErrNotFound
	}
}

// stop stops the event loop and waits for it.
func (c *coordinator) stop() {
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.quit <- struct{}{}:
	case <-c.done:
	}
	<-c.done
}

// copyOptions returns a deep copy of options which is never nil.
func copyOptions(options core.ProtocolOptions) core.ProtocolOptions {
	if options == nil {
		return core.ProtocolOptions{}
	}
	cp, ok := deepcopy.Copy(map[string]interface{}(options)).(map[string]interface{})
	if !ok || cp == nil {
		return core.ProtocolOptions{}
	}
	return core.ProtocolOptions(cp)
}
