// Copyright 2022-2024 Boris HUISGEN. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package core

import (
	"github.com/bhuisgen/corral/pkg/module"
)

const (
	// TransportNamespace is the module namespace of the transports.
	TransportNamespace string = "transport"
	// ProtocolNamespace is the module namespace of the protocols.
	ProtocolNamespace string = "protocol"
)

// Module is the interface of a capability module.
type Module interface {
	// Module is the base interface of a module.
	module.Module

	// Check checks the options the module would be used with and returns a
	// report of the problems found.
	Check(options map[string]interface{}) ([]string, error)
}
