// Copyright 2022-2024 Boris HUISGEN. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package corral

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/bhuisgen/corral/pkg/core"
	"github.com/bhuisgen/corral/pkg/corral"
	"github.com/bhuisgen/corral/pkg/module"
)

// listener implements a configured listener.
type listener struct {
	name             string
	acceptors        int
	transportName    string
	transport        core.Transport
	transportOptions map[string]interface{}
	protocolName     string
	protocol         core.Protocol
	protocolOptions  core.ProtocolOptions
}

const (
	listenerConfigDefaultAcceptors int = 10
)

// loadListener checks the listener configuration and creates the listener
// with its transport and protocol module instances.
func loadListener(name string, c *configListener) (*listener, []string, error) {
	var report []string

	if c == nil {
		c = &configListener{}
	}

	l := listener{
		name: name,
	}

	if c.Acceptors == nil {
		defaultValue := listenerConfigDefaultAcceptors
		c.Acceptors = &defaultValue
	}
	if *c.Acceptors < 0 {
		report = append(report, fmt.Sprintf("listener '%s': option '%s', invalid value '%d'", name, "Acceptors",
			*c.Acceptors))
	}
	l.acceptors = *c.Acceptors

	transportName, transportModule, transportOptions, r := loadModule(name, core.TransportNamespace, c.Transport)
	report = append(report, r...)
	if transportModule != nil {
		transport, ok := transportModule.(core.Transport)
		if !ok {
			report = append(report, fmt.Sprintf("listener '%s': invalid transport module '%s'", name, transportName))
		}
		l.transportName = transportName
		l.transport = transport
		l.transportOptions = transportOptions
	}

	protocolName, protocolModule, protocolOptions, r := loadModule(name, core.ProtocolNamespace, c.Protocol)
	report = append(report, r...)
	if protocolModule != nil {
		protocol, ok := protocolModule.(core.Protocol)
		if !ok {
			report = append(report, fmt.Sprintf("listener '%s': invalid protocol module '%s'", name, protocolName))
		}
		l.protocolName = protocolName
		l.protocol = protocol
		l.protocolOptions = protocolOptions
	}

	if len(report) > 0 {
		return nil, report, errors.New("check failure")
	}

	return &l, nil, nil
}

// loadModule looks up the single module configured in the namespace section
// and checks its options.
func loadModule(name string, namespace string, section map[string]interface{}) (string, core.Module,
	map[string]interface{}, []string) {
	var report []string

	if len(section) == 0 {
		report = append(report, fmt.Sprintf("listener '%s': missing %s", name, namespace))
		return "", nil, nil, report
	}
	if len(section) > 1 {
		report = append(report, fmt.Sprintf("listener '%s': multiple %s modules", name, namespace))
		return "", nil, nil, report
	}

	for moduleName, moduleConfig := range section {
		moduleInfo, err := module.Lookup(module.ModuleID(namespace + "." + moduleName))
		if err != nil {
			report = append(report, fmt.Sprintf("listener '%s': unregistered %s module '%s'", name, namespace,
				moduleName))
			return moduleName, nil, nil, report
		}
		m, ok := moduleInfo.NewInstance().(core.Module)
		if !ok {
			report = append(report, fmt.Sprintf("listener '%s': invalid %s module '%s'", name, namespace, moduleName))
			return moduleName, nil, nil, report
		}
		options, _ := moduleConfig.(map[string]interface{})
		if options == nil {
			options = map[string]interface{}{}
		}
		r, err := m.Check(options)
		if err != nil {
			for _, line := range r {
				report = append(report, fmt.Sprintf("listener '%s': %s '%s': %s", name, namespace, moduleName, line))
			}
			if len(r) == 0 {
				report = append(report, fmt.Sprintf("listener '%s': %s '%s': %s", name, namespace, moduleName, err))
			}
		}

		return moduleName, m, options, report
	}

	return "", nil, nil, report
}

// childSpec returns the child specification of the listener.
func (l *listener) childSpec(m *corral.Manager) corral.ChildSpec {
	return m.ChildSpec(l.name, l.acceptors, l.transport, l.transportOptions, l.protocol, l.protocolOptions)
}

// sameSocket reports whether both listeners open the same socket with the
// same acceptors and serve the same protocol, so that only the protocol
// options may differ.
func (l *listener) sameSocket(o *listener) bool {
	return l.acceptors == o.acceptors &&
		l.transportName == o.transportName &&
		reflect.DeepEqual(l.transportOptions, o.transportOptions) &&
		l.protocolName == o.protocolName
}

// sameProtocolOptions reports whether both listeners use the same protocol
// options.
func (l *listener) sameProtocolOptions(o *listener) bool {
	return reflect.DeepEqual(l.protocolOptions, o.protocolOptions)
}
