// Copyright 2022-2024 Boris HUISGEN. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package corral

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// registry maps listener references to their listener.
type registry struct {
	listeners map[any]*Listener
	mu        sync.RWMutex
}

// newRegistry creates a new registry.
func newRegistry() *registry {
	return &registry{
		listeners: make(map[any]*Listener),
	}
}

// validRef checks that the reference can be used as a map key. Interface
// fields are checked on their dynamic value.
func validRef(ref any) error {
	if ref == nil {
		return fmt.Errorf("%w: nil", ErrInvalidRef)
	}
	if v := reflect.ValueOf(ref); !v.Comparable() {
		return fmt.Errorf("%w: value of type %s is not comparable", ErrInvalidRef, v.Type())
	}
	return nil
}

// register registers the listener under ref.
func (r *registry) register(ref any, l *Listener) error {
	if err := validRef(ref); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.listeners[ref]; ok {
		return ErrAlreadyRegistered
	}
	r.listeners[ref] = l

	return nil
}

// resolve returns the listener registered under ref.
func (r *registry) resolve(ref any) (*Listener, error) {
	if err := validRef(ref); err != nil {
		return nil, ErrNotFound
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	l, ok := r.listeners[ref]
	if !ok {
		return nil, ErrNotFound
	}

	return l, nil
}

// unregister removes ref if it is still bound to l. Removing an absent
// entry is a no-op.
func (r *registry) unregister(ref any, l *Listener) {
	if validRef(ref) != nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.listeners[ref]; ok && (l == nil || current == l) {
		delete(r.listeners, ref)
	}
}

// list returns the registered listeners ordered by reference.
func (r *registry) list() []*Listener {
	r.mu.RLock()
	listeners := make([]*Listener, 0, len(r.listeners))
	for _, l := range r.listeners {
		listeners = append(listeners, l)
	}
	r.mu.RUnlock()

	sort.Slice(listeners, func(i, j int) bool {
		return fmt.Sprint(listeners[i].ref) < fmt.Sprint(listeners[j].ref)
	})

	return listeners
}
