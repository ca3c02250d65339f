// Copyright 2022-2024 Boris HUISGEN. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package unix

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
	"golang.org/x/net/netutil"

	"github.com/bhuisgen/corral/pkg/core"
	"github.com/bhuisgen/corral/pkg/module"
)

// unixTransport implements the unix socket transport.
type unixTransport struct {
	osStat    func(name string) (fs.FileInfo, error)
	osRemove  func(name string) error
	osChmod   func(name string, mode fs.FileMode) error
	netListen func(ctx context.Context, lc *net.ListenConfig, network string, address string) (net.Listener, error)
}

// unixTransportConfig implements the unix socket transport configuration.
type unixTransportConfig struct {
	Path           string  `mapstructure:"path"`
	Mode           *string `mapstructure:"mode"`
	MaxConnections *int    `mapstructure:"maxConnections"`
}

const (
	unixModuleID module.ModuleID = "transport.unix"

	unixConfigDefaultMode           string = "0660"
	unixConfigDefaultMaxConnections int    = 0
)

// unixOsStat redirects to os.Stat.
func unixOsStat(name string) (fs.FileInfo, error) {
	return os.Stat(name)
}

// unixOsRemove redirects to os.Remove.
func unixOsRemove(name string) error {
	return os.Remove(name)
}

// unixOsChmod redirects to os.Chmod.
func unixOsChmod(name string, mode fs.FileMode) error {
	return os.Chmod(name, mode)
}

// unixNetListen redirects to net.ListenConfig.Listen.
func unixNetListen(ctx context.Context, lc *net.ListenConfig, network string, address string) (net.Listener, error) {
	return lc.Listen(ctx, network, address)
}

// init initializes the module.
func init() {
	module.Register(unixTransport{})
}

// ModuleInfo returns the module information.
func (t unixTransport) ModuleInfo() module.ModuleInfo {
	return module.ModuleInfo{
		ID: unixModuleID,
		NewInstance: func() module.Module {
			return &unixTransport{
				osStat:    unixOsStat,
				osRemove:  unixOsRemove,
				osChmod:   unixOsChmod,
				netListen: unixNetListen,
			}
		},
	}
}

// Check checks the transport options.
func (t *unixTransport) Check(options map[string]interface{}) ([]string, error) {
	_, _, report, err := parseConfig(options)
	if err != nil {
		return report, err
	}
	if len(report) > 0 {
		return report, errors.New("check failure")
	}

	return nil, nil
}

// parseConfig decodes the options and applies the default values.
func parseConfig(options map[string]interface{}) (*unixTransportConfig, fs.FileMode, []string, error) {
	var report []string

	var c unixTransportConfig
	if err := mapstructure.Decode(options, &c); err != nil {
		report = append(report, "failed to parse configuration")
		return nil, 0, report, err
	}

	if c.Path == "" {
		report = append(report, fmt.Sprintf("option '%s', missing value", "Path"))
	}
	if c.Mode == nil {
		defaultValue := unixConfigDefaultMode
		c.Mode = &defaultValue
	}
	mode, err := strconv.ParseUint(*c.Mode, 8, 32)
	if err != nil || mode > 0o777 {
		report = append(report, fmt.Sprintf("option '%s', invalid value '%s'", "Mode", *c.Mode))
	}
	if c.MaxConnections == nil {
		defaultValue := unixConfigDefaultMaxConnections
		c.MaxConnections = &defaultValue
	}
	if *c.MaxConnections < 0 {
		report = append(report, fmt.Sprintf("option '%s', invalid value '%d'", "MaxConnections", *c.MaxConnections))
	}

	return &c, fs.FileMode(mode), report, nil
}

// Listen opens the listening socket. A stale socket file left at the same
// path is removed first.
func (t *unixTransport) Listen(ctx context.Context, options map[string]interface{}) (net.Listener, error) {
	c, mode, report, err := parseConfig(options)
	if err != nil {
		return nil, fmt.Errorf("parse options: %w", err)
	}
	if len(report) > 0 {
		return nil, fmt.Errorf("invalid options: %s", strings.Join(report, ", "))
	}

	if fi, err := t.osStat(c.Path); err == nil {
		if fi.Mode()&fs.ModeSocket == 0 {
			return nil, fmt.Errorf("%s exists and is not a socket", c.Path)
		}
		if err := t.osRemove(c.Path); err != nil {
			return nil, fmt.Errorf("remove stale socket: %w", err)
		}
	}

	ln, err := t.netListen(ctx, &net.ListenConfig{}, "unix", c.Path)
	if err != nil {
		return nil, err
	}
	if err := t.osChmod(c.Path, mode); err != nil {
		_ = ln.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}

	if *c.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, *c.MaxConnections)
	}

	return ln, nil
}

// Accept accepts a connection.
func (t *unixTransport) Accept(ln net.Listener) (net.Conn, error) {
	return ln.Accept()
}

// Handoff hands the connection off to its handler.
func (t *unixTransport) Handoff(conn net.Conn, handler core.Handler) error {
	if conn == nil || handler == nil {
		return errors.New("nothing to hand off")
	}
	return nil
}

// Close closes the listening socket, which unlinks the socket file.
func (t *unixTransport) Close(ln net.Listener) error {
	return ln.Close()
}

var _ core.Transport = (*unixTransport)(nil)
