// Copyright 2022-2024 Boris HUISGEN. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package module

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
)

// Module is the interface of module.
type Module interface {
	// ModuleInfo returns the module information.
	ModuleInfo() ModuleInfo
}

// ModuleID is the module id.
//
// Identifiers are namespaced by capability, e.g. "transport.tcp" or
// "protocol.echo".
type ModuleID string

// Namespace returns the capability part of the module id.
func (id ModuleID) Namespace() string {
	ns, _, found := strings.Cut(string(id), ".")
	if !found {
		return ""
	}
	return ns
}

// Name returns the module id without its namespace.
func (id ModuleID) Name() string {
	_, name, found := strings.Cut(string(id), ".")
	if !found {
		return string(id)
	}
	return name
}

// ModuleInfo implements the module information.
type ModuleInfo struct {
	// ID is the module ID.
	ID ModuleID
	// NewInstance returns a new module instance.
	NewInstance func() Module
}

var (
	modules     = make(map[ModuleID]ModuleInfo)
	modulesLock sync.RWMutex
)

// Register registers a module.
func Register(module Module) {
	modulesLock.Lock()
	defer modulesLock.Unlock()

	info := module.ModuleInfo()
	if _, ok := modules[info.ID]; ok {
		log.Fatalf("Module '%s' already registered", info.ID)
	}
	modules[info.ID] = info
}

// Unregister unregisters a module.
func Unregister(module Module) {
	modulesLock.Lock()
	defer modulesLock.Unlock()

	delete(modules, module.ModuleInfo().ID)
}

// Lookup returns the module information if found.
func Lookup(id ModuleID) (ModuleInfo, error) {
	modulesLock.RLock()
	defer modulesLock.RUnlock()

	mi, ok := modules[id]
	if !ok {
		return ModuleInfo{}, fmt.Errorf("module '%s' not registered", id)
	}

	return mi, nil
}

// List returns the sorted ids of the registered modules in the given
// namespace. An empty namespace lists every module.
func List(namespace string) []ModuleID {
	modulesLock.RLock()
	defer modulesLock.RUnlock()

	ids := make([]ModuleID, 0, len(modules))
	for id := range modules {
		if namespace != "" && id.Namespace() != namespace {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return ids
}
