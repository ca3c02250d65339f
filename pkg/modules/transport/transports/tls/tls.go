// Copyright 2022-2024 Boris HUISGEN. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package tls

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"golang.org/x/net/netutil"

	"github.com/bhuisgen/corral/pkg/core"
	"github.com/bhuisgen/corral/pkg/module"
)

// tlsTransport implements the tls transport.
type tlsTransport struct {
	osStat                         func(name string) (fs.FileInfo, error)
	osReadFile                     func(name string) ([]byte, error)
	x509CertPoolAppendCertsFromPEM func(pool *x509.CertPool, pemCerts []byte) bool
	tlsLoadX509KeyPair             func(certFile string, keyFile string) (tls.Certificate, error)
	netListen                      func(ctx context.Context, lc *net.ListenConfig, network string, address string) (net.Listener, error)
}

// tlsTransportConfig implements the tls transport configuration.
type tlsTransportConfig struct {
	ListenAddr     *string `mapstructure:"listenAddr"`
	ListenPort     *int    `mapstructure:"listenPort"`
	KeepAlive      *int    `mapstructure:"keepAlive"`
	NoDelay        *bool   `mapstructure:"noDelay"`
	MaxConnections *int    `mapstructure:"maxConnections"`
	TLSCertFile    string  `mapstructure:"tlsCertFile"`
	TLSKeyFile     string  `mapstructure:"tlsKeyFile"`
	TLSCAFile      *string `mapstructure:"tlsCAFile"`
	TLSClientAuth  *string `mapstructure:"tlsClientAuth"`
	TLSMinVersion  *string `mapstructure:"tlsMinVersion"`
}

const (
	tlsModuleID module.ModuleID = "transport.tls"

	tlsClientAuthNone             string = "none"
	tlsClientAuthRequest          string = "request"
	tlsClientAuthRequire          string = "require"
	tlsClientAuthVerify           string = "verify"
	tlsClientAuthRequireAndVerify string = "requireAndVerify"

	tlsVersion12 string = "1.2"
	tlsVersion13 string = "1.3"

	tlsConfigDefaultListenAddr     string = ""
	tlsConfigDefaultListenPort     int    = 0
	tlsConfigDefaultKeepAlive      int    = 15
	tlsConfigDefaultNoDelay        bool   = true
	tlsConfigDefaultMaxConnections int    = 0
	tlsConfigDefaultClientAuth     string = tlsClientAuthNone
	tlsConfigDefaultMinVersion     string = tlsVersion12
)

// tlsOsStat redirects to os.Stat.
func tlsOsStat(name string) (fs.FileInfo, error) {
	return os.Stat(name)
}

// tlsOsReadFile redirects to os.ReadFile.
func tlsOsReadFile(name string) ([]byte, error) {
	return os.ReadFile(name)
}

// tlsX509CertPoolAppendCertsFromPEM redirects to x509.CertPool.AppendCertsFromPEM.
func tlsX509CertPoolAppendCertsFromPEM(pool *x509.CertPool, pemCerts []byte) bool {
	return pool.AppendCertsFromPEM(pemCerts)
}

// tlsTLSLoadX509KeyPair redirects to tls.LoadX509KeyPair.
func tlsTLSLoadX509KeyPair(certFile string, keyFile string) (tls.Certificate, error) {
	return tls.LoadX509KeyPair(certFile, keyFile)
}

// tlsNetListen redirects to net.ListenConfig.Listen.
func tlsNetListen(ctx context.Context, lc *net.ListenConfig, network string, address string) (net.Listener, error) {
	return lc.Listen(ctx, network, address)
}

// init initializes the module.
func init() {
	module.Register(tlsTransport{})
}

// ModuleInfo returns the module information.
func (t tlsTransport) ModuleInfo() module.ModuleInfo {
	return module.ModuleInfo{
		ID: tlsModuleID,
		NewInstance: func() module.Module {
			return &tlsTransport{
				osStat:                         tlsOsStat,
				osReadFile:                     tlsOsReadFile,
				x509CertPoolAppendCertsFromPEM: tlsX509CertPoolAppendCertsFromPEM,
				tlsLoadX509KeyPair:             tlsTLSLoadX509KeyPair,
				netListen:                      tlsNetListen,
			}
		},
	}
}

// Check checks the transport options.
func (t *tlsTransport) Check(options map[string]interface{}) ([]string, error) {
	_, report, err := t.parseConfig(options)
	if err != nil {
		return report, err
	}
	if len(report) > 0 {
		return report, errors.New("check failure")
	}

	return nil, nil
}

// checkFile reports a file which can't be used.
func (t *tlsTransport) checkFile(option string, name string) []string {
	fi, err := t.osStat(name)
	if err != nil {
		return []string{fmt.Sprintf("option '%s', failed to stat file '%s'", option, name)}
	}
	if fi.IsDir() {
		return []string{fmt.Sprintf("option '%s', '%s' is a directory", option, name)}
	}
	return nil
}

// parseConfig decodes the options and applies the default values.
func (t *tlsTransport) parseConfig(options map[string]interface{}) (*tlsTransportConfig, []string, error) {
	var report []string

	var c tlsTransportConfig
	if err := mapstructure.Decode(options, &c); err != nil {
		report = append(report, "failed to parse configuration")
		return nil, report, err
	}

	if c.ListenAddr == nil {
		defaultValue := tlsConfigDefaultListenAddr
		c.ListenAddr = &defaultValue
	}
	if c.ListenPort == nil {
		defaultValue := tlsConfigDefaultListenPort
		c.ListenPort = &defaultValue
	}
	if *c.ListenPort < 0 || *c.ListenPort > 65535 {
		report = append(report, fmt.Sprintf("option '%s', invalid value '%d'", "ListenPort", *c.ListenPort))
	}
	if c.KeepAlive == nil {
		defaultValue := tlsConfigDefaultKeepAlive
		c.KeepAlive = &defaultValue
	}
	if *c.KeepAlive < 0 {
		report = append(report, fmt.Sprintf("option '%s', invalid value '%d'", "KeepAlive", *c.KeepAlive))
	}
	if c.NoDelay == nil {
		defaultValue := tlsConfigDefaultNoDelay
		c.NoDelay = &defaultValue
	}
	if c.MaxConnections == nil {
		defaultValue := tlsConfigDefaultMaxConnections
		c.MaxConnections = &defaultValue
	}
	if *c.MaxConnections < 0 {
		report = append(report, fmt.Sprintf("option '%s', invalid value '%d'", "MaxConnections", *c.MaxConnections))
	}
	if c.TLSCertFile == "" {
		report = append(report, fmt.Sprintf("option '%s', missing value", "TLSCertFile"))
	} else {
		report = append(report, t.checkFile("TLSCertFile", c.TLSCertFile)...)
	}
	if c.TLSKeyFile == "" {
		report = append(report, fmt.Sprintf("option '%s', missing value", "TLSKeyFile"))
	} else {
		report = append(report, t.checkFile("TLSKeyFile", c.TLSKeyFile)...)
	}
	if c.TLSCAFile != nil {
		if *c.TLSCAFile == "" {
			report = append(report, fmt.Sprintf("option '%s', invalid value '%s'", "TLSCAFile", *c.TLSCAFile))
		} else {
			report = append(report, t.checkFile("TLSCAFile", *c.TLSCAFile)...)
		}
	}
	if c.TLSClientAuth == nil {
		defaultValue := tlsConfigDefaultClientAuth
		c.TLSClientAuth = &defaultValue
	}
	switch *c.TLSClientAuth {
	case tlsClientAuthNone:
	case tlsClientAuthRequest:
	case tlsClientAuthRequire:
	case tlsClientAuthVerify:
	case tlsClientAuthRequireAndVerify:
	default:
		report = append(report, fmt.Sprintf("option '%s', invalid value '%s'", "TLSClientAuth", *c.TLSClientAuth))
	}
	if c.TLSMinVersion == nil {
		defaultValue := tlsConfigDefaultMinVersion
		c.TLSMinVersion = &defaultValue
	}
	switch *c.TLSMinVersion {
	case tlsVersion12:
	case tlsVersion13:
	default:
		report = append(report, fmt.Sprintf("option '%s', invalid value '%s'", "TLSMinVersion", *c.TLSMinVersion))
	}

	return &c, report, nil
}

// tlsConfig builds the server TLS configuration.
func (t *tlsTransport) tlsConfig(c *tlsTransportConfig) (*tls.Config, error) {
	config := &tls.Config{
		MinVersion: tls.VersionTLS12,
	}
	if *c.TLSMinVersion == tlsVersion13 {
		config.MinVersion = tls.VersionTLS13
	}

	cert, err := t.tlsLoadX509KeyPair(c.TLSCertFile, c.TLSKeyFile)
	if err != nil {
		return nil, fmt.Errorf("load key pair: %w", err)
	}
	config.Certificates = []tls.Certificate{cert}

	if c.TLSCAFile != nil {
		ca, err := t.osReadFile(*c.TLSCAFile)
		if err != nil {
			return nil, fmt.Errorf("read CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !t.x509CertPoolAppendCertsFromPEM(pool, ca) {
			return nil, errors.New("no certificate in CA file")
		}
		config.ClientCAs = pool
	}

	switch *c.TLSClientAuth {
	case tlsClientAuthNone:
		config.ClientAuth = tls.NoClientCert
	case tlsClientAuthRequest:
		config.ClientAuth = tls.RequestClientCert
	case tlsClientAuthRequire:
		config.ClientAuth = tls.RequireAnyClientCert
	case tlsClientAuthVerify:
		config.ClientAuth = tls.VerifyClientCertIfGiven
	case tlsClientAuthRequireAndVerify:
		config.ClientAuth = tls.RequireAndVerifyClientCert
	}

	return config, nil
}

// Listen opens the listening socket. The handshake of each connection is
// done on its first read or write.
func (t *tlsTransport) Listen(ctx context.Context, options map[string]interface{}) (net.Listener, error) {
	c, report, err := t.parseConfig(options)
	if err != nil {
		return nil, fmt.Errorf("parse options: %w", err)
	}
	if len(report) > 0 {
		return nil, fmt.Errorf("invalid options: %s", strings.Join(report, ", "))
	}

	config, err := t.tlsConfig(c)
	if err != nil {
		return nil, err
	}

	lc := &net.ListenConfig{
		KeepAlive: time.Duration(*c.KeepAlive) * time.Second,
	}
	if *c.KeepAlive == 0 {
		lc.KeepAlive = -1
	}

	ln, err := t.netListen(ctx, lc, "tcp", net.JoinHostPort(*c.ListenAddr, fmt.Sprint(*c.ListenPort)))
	if err != nil {
		return nil, err
	}

	var listener net.Listener = &tlsTCPListener{
		Listener: ln,
		noDelay:  *c.NoDelay,
	}
	if *c.MaxConnections > 0 {
		listener = netutil.LimitListener(listener, *c.MaxConnections)
	}

	return tls.NewListener(listener, config), nil
}

// Accept accepts a connection.
func (t *tlsTransport) Accept(ln net.Listener) (net.Conn, error) {
	return ln.Accept()
}

// Handoff hands the connection off to its handler.
func (t *tlsTransport) Handoff(conn net.Conn, handler core.Handler) error {
	if _, ok := conn.(*tls.Conn); !ok {
		return fmt.Errorf("unexpected connection type %T", conn)
	}
	if handler == nil {
		return errors.New("missing handler")
	}
	return nil
}

// Close closes the listening socket.
func (t *tlsTransport) Close(ln net.Listener) error {
	return ln.Close()
}

// tlsTCPListener applies the connection options to the accepted connections.
type tlsTCPListener struct {
	net.Listener
	noDelay bool
}

// Accept waits for the next connection.
func (l *tlsTCPListener) Accept() (net.Conn, error) {
	conn, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(l.noDelay)
	}
	return conn, nil
}

var _ core.Transport = (*tlsTransport)(nil)
