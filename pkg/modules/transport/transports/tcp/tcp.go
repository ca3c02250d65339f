// Copyright 2022-2024 Boris HUISGEN. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package tcp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"golang.org/x/net/netutil"

	"github.com/bhuisgen/corral/pkg/core"
	"github.com/bhuisgen/corral/pkg/module"
)

// tcpTransport implements the tcp transport.
type tcpTransport struct {
	netListen func(ctx context.Context, lc *net.ListenConfig, network string, address string) (net.Listener, error)
}

// tcpTransportConfig implements the tcp transport configuration.
type tcpTransportConfig struct {
	ListenAddr     *string `mapstructure:"listenAddr"`
	ListenPort     *int    `mapstructure:"listenPort"`
	ReusePort      *bool   `mapstructure:"reusePort"`
	KeepAlive      *int    `mapstructure:"keepAlive"`
	NoDelay        *bool   `mapstructure:"noDelay"`
	MaxConnections *int    `mapstructure:"maxConnections"`
}

const (
	tcpModuleID module.ModuleID = "transport.tcp"

	tcpConfigDefaultListenAddr     string = ""
	tcpConfigDefaultListenPort     int    = 0
	tcpConfigDefaultReusePort      bool   = false
	tcpConfigDefaultKeepAlive      int    = 15
	tcpConfigDefaultNoDelay        bool   = true
	tcpConfigDefaultMaxConnections int    = 0
)

// tcpNetListen redirects to net.ListenConfig.Listen.
func tcpNetListen(ctx context.Context, lc *net.ListenConfig, network string, address string) (net.Listener, error) {
	return lc.Listen(ctx, network, address)
}

// init initializes the module.
func init() {
	module.Register(tcpTransport{})
}

// ModuleInfo returns the module information.
func (t tcpTransport) ModuleInfo() module.ModuleInfo {
	return module.ModuleInfo{
		ID: tcpModuleID,
		NewInstance: func() module.Module {
			return &tcpTransport{
				netListen: tcpNetListen,
			}
		},
	}
}

// Check checks the transport options.
func (t *tcpTransport) Check(options map[string]interface{}) ([]string, error) {
	_, report, err := parseConfig(options)
	if err != nil {
		return report, err
	}
	if len(report) > 0 {
		return report, errors.New("check failure")
	}

	return nil, nil
}

// parseConfig decodes the options and applies the default values.
func parseConfig(options map[string]interface{}) (*tcpTransportConfig, []string, error) {
	var report []string

	var c tcpTransportConfig
	if err := mapstructure.Decode(options, &c); err != nil {
		report = append(report, "failed to parse configuration")
		return nil, report, err
	}

	if c.ListenAddr == nil {
		defaultValue := tcpConfigDefaultListenAddr
		c.ListenAddr = &defaultValue
	}
	if c.ListenPort == nil {
		defaultValue := tcpConfigDefaultListenPort
		c.ListenPort = &defaultValue
	}
	if *c.ListenPort < 0 || *c.ListenPort > 65535 {
		report = append(report, fmt.Sprintf("option '%s', invalid value '%d'", "ListenPort", *c.ListenPort))
	}
	if c.ReusePort == nil {
		defaultValue := tcpConfigDefaultReusePort
		c.ReusePort = &defaultValue
	}
	if *c.ReusePort && !reusePortSupported {
		report = append(report, fmt.Sprintf("option '%s', unsupported on this platform", "ReusePort"))
	}
	if c.KeepAlive == nil {
		defaultValue := tcpConfigDefaultKeepAlive
		c.KeepAlive = &defaultValue
	}
	if *c.KeepAlive < 0 {
		report = append(report, fmt.Sprintf("option '%s', invalid value '%d'", "KeepAlive", *c.KeepAlive))
	}
	if c.NoDelay == nil {
		defaultValue := tcpConfigDefaultNoDelay
		c.NoDelay = &defaultValue
	}
	if c.MaxConnections == nil {
		defaultValue := tcpConfigDefaultMaxConnections
		c.MaxConnections = &defaultValue
	}
	if *c.MaxConnections < 0 {
		report = append(report, fmt.Sprintf("option '%s', invalid value '%d'", "MaxConnections", *c.MaxConnections))
	}

	return &c, report, nil
}

// Listen opens the listening socket.
func (t *tcpTransport) Listen(ctx context.Context, options map[string]interface{}) (net.Listener, error) {
	c, report, err := parseConfig(options)
	if err != nil {
		return nil, fmt.Errorf("parse options: %w", err)
	}
	if len(report) > 0 {
		return nil, fmt.Errorf("invalid options: %s", strings.Join(report, ", "))
	}

	lc := &net.ListenConfig{
		KeepAlive: time.Duration(*c.KeepAlive) * time.Second,
	}
	if *c.KeepAlive == 0 {
		lc.KeepAlive = -1
	}
	if *c.ReusePort {
		lc.Control = reuseAddrPort
	}

	ln, err := t.netListen(ctx, lc, "tcp", net.JoinHostPort(*c.ListenAddr, fmt.Sprint(*c.ListenPort)))
	if err != nil {
		return nil, err
	}

	var listener net.Listener = &tcpListener{
		Listener: ln,
		noDelay:  *c.NoDelay,
	}
	if *c.MaxConnections > 0 {
		listener = netutil.LimitListener(listener, *c.MaxConnections)
	}

	return listener, nil
}

// Accept accepts a connection.
func (t *tcpTransport) Accept(ln net.Listener) (net.Conn, error) {
	return ln.Accept()
}

// Handoff hands the connection off to its handler.
func (t *tcpTransport) Handoff(conn net.Conn, handler core.Handler) error {
	if conn == nil || handler == nil {
		return errors.New("nothing to hand off")
	}
	return nil
}

// Close closes the listening socket.
func (t *tcpTransport) Close(ln net.Listener) error {
	return ln.Close()
}

// tcpListener applies the connection options to the accepted connections.
type tcpListener struct {
	net.Listener
	noDelay bool
}

// Accept waits for the next connection.
func (l *tcpListener) Accept() (net.Conn, error) {
	conn, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(l.noDelay)
	}
	return conn, nil
}

var _ core.Transport = (*tcpTransport)(nil)
