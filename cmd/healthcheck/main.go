// Copyright 2022-2024 Boris HUISGEN. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package main

import (
	"bytes"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"time"
)

// healthcheckOptions holds the probe options.
type healthcheckOptions struct {
	network    string
	address    string
	useTLS     bool
	cacert     string
	cert       string
	key        string
	serverName string
	send       string
	expect     string
	timeout    int
}

// main is the entrypoint.
func main() {
	if err := run(os.Args[1:]); err != nil {
		os.Exit(1)
	}
}

// run parses and executes the command line.
func run(args []string) error {
	var o healthcheckOptions
	var verbose bool
	flagset := flag.NewFlagSet("healthcheck", flag.ContinueOnError)
	flagset.StringVar(&o.network, "network", "tcp", "Network of the listener (tcp or unix)")
	flagset.BoolVar(&o.useTLS, "tls", false, "Use TLS")
	flagset.StringVar(&o.cacert, "cacert", "", "TLS CA file")
	flagset.StringVar(&o.cert, "cert", "", "TLS certificate file")
	flagset.StringVar(&o.key, "key", "", "TLS key file")
	flagset.StringVar(&o.serverName, "servername", "", "TLS server name")
	flagset.StringVar(&o.send, "send", "", "Data to send once connected")
	flagset.StringVar(&o.expect, "expect", "", "Expected prefix of the response")
	flagset.IntVar(&o.timeout, "timeout", 5, "Timeout in seconds")
	flagset.BoolVar(&verbose, "verbose", false, "Use verbose output")
	flagset.Usage = func() {
		fmt.Println()
		fmt.Println("Usage: healthcheck [OPTIONS] address")
		fmt.Println()
		fmt.Println("Options:")
		flagset.PrintDefaults()
		fmt.Println()
		fmt.Println("Run 'healthcheck --help' for more information.")
		fmt.Println()
	}
	if err := flagset.Parse(args); err != nil {
		return err
	}

	if len(flagset.Args()) == 0 {
		flagset.Usage()
		return nil
	}
	o.address = flagset.Arg(0)

	if err := healthcheck(o); err != nil {
		if verbose {
			fmt.Println("Error: ", err)
		}
		return fmt.Errorf("healthcheck: %v", err)
	}

	return nil
}

// healthcheck connects to the listener and checks its response.
func healthcheck(o healthcheckOptions) error {
	timeout := time.Duration(o.timeout) * time.Second
	dialer := &net.Dialer{
		Timeout: timeout,
	}

	var conn net.Conn
	var err error
	if o.useTLS {
		tlsConfig, err := healthcheckTLSConfig(o)
		if err != nil {
			return err
		}
		conn, err = tls.DialWithDialer(dialer, o.network, o.address, tlsConfig)
		if err != nil {
			return fmt.Errorf("dial: %v", err)
		}
	} else {
		conn, err = dialer.Dial(o.network, o.address)
		if err != nil {
			return fmt.Errorf("dial: %v", err)
		}
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return fmt.Errorf("set deadline: %v", err)
	}

	if o.send != "" {
		if _, err := io.WriteString(conn, o.send); err != nil {
			return fmt.Errorf("write: %v", err)
		}
	}

	if o.expect != "" {
		buf := make([]byte, len(o.expect))
		if _, err := io.ReadFull(conn, buf); err != nil {
			return fmt.Errorf("read response: %v", err)
		}
		if !bytes.Equal(buf, []byte(o.expect)) {
			return fmt.Errorf("unexpected response: %q", buf)
		}
	}

	return nil
}

// healthcheckTLSConfig returns the TLS client configuration.
func healthcheckTLSConfig(o healthcheckOptions) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS12,
		ServerName: o.serverName,
	}

	if o.cacert != "" {
		ca, err := os.ReadFile(o.cacert)
		if err != nil {
			return nil, fmt.Errorf("read ca file: %v", err)
		}

		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(ca) {
			return nil, errors.New("append ca")
		}

		tlsConfig.RootCAs = caCertPool
	}

	if o.cert != "" && o.key != "" {
		c, err := tls.LoadX509KeyPair(o.cert, o.key)
		if err != nil {
			return nil, fmt.Errorf("load keypair: %v", err)
		}

		tlsConfig.Certificates = []tls.Certificate{c}
	}

	return tlsConfig, nil
}
