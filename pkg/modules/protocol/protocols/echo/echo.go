// Copyright 2022-2024 Boris HUISGEN. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package echo

import (
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/bhuisgen/corral/pkg/core"
	"github.com/bhuisgen/corral/pkg/corral"
	"github.com/bhuisgen/corral/pkg/module"
)

// echoProtocol implements the echo protocol.
type echoProtocol struct{}

// echoProtocolConfig implements the echo protocol configuration.
type echoProtocolConfig struct {
	BufferSize  *int `mapstructure:"bufferSize"`
	IdleTimeout *int `mapstructure:"idleTimeout"`
	MaxBytes    *int `mapstructure:"maxBytes"`
}

const (
	echoModuleID module.ModuleID = "protocol.echo"

	echoConfigDefaultBufferSize  int = 4096
	echoConfigDefaultIdleTimeout int = 60
	echoConfigDefaultMaxBytes    int = 0
)

// init initializes the module.
func init() {
	module.Register(echoProtocol{})
}

// ModuleInfo returns the module information.
func (p echoProtocol) ModuleInfo() module.ModuleInfo {
	return module.ModuleInfo{
		ID: echoModuleID,
		NewInstance: func() module.Module {
			return &echoProtocol{}
		},
	}
}

// Check checks the protocol options.
func (p *echoProtocol) Check(options map[string]interface{}) ([]string, error) {
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
func parseConfig(options map[string]interface{}) (*echoProtocolConfig, []string, error) {
	var report []string

	var c echoProtocolConfig
	if err := mapstructure.Decode(options, &c); err != nil {
		report = append(report, "failed to parse configuration")
		return nil, report, err
	}

	if c.BufferSize == nil {
		defaultValue := echoConfigDefaultBufferSize
		c.BufferSize = &defaultValue
	}
	if *c.BufferSize <= 0 {
		report = append(report, fmt.Sprintf("option '%s', invalid value '%d'", "BufferSize", *c.BufferSize))
	}
	if c.IdleTimeout == nil {
		defaultValue := echoConfigDefaultIdleTimeout
		c.IdleTimeout = &defaultValue
	}
	if *c.IdleTimeout < 0 {
		report = append(report, fmt.Sprintf("option '%s', invalid value '%d'", "IdleTimeout", *c.IdleTimeout))
	}
	if c.MaxBytes == nil {
		defaultValue := echoConfigDefaultMaxBytes
		c.MaxBytes = &defaultValue
	}
	if *c.MaxBytes < 0 {
		report = append(report, fmt.Sprintf("option '%s', invalid value '%d'", "MaxBytes", *c.MaxBytes))
	}

	return &c, report, nil
}

// StartHandler creates the handler of the connection.
func (p *echoProtocol) StartHandler(conn net.Conn, options core.ProtocolOptions, ack *core.Handoff) (core.Handler, error) {
	c, report, err := parseConfig(options)
	if err != nil {
		return nil, fmt.Errorf("parse options: %w", err)
	}
	if len(report) > 0 {
		return nil, fmt.Errorf("invalid options: %v", report)
	}

	return &echoHandler{
		conn:   conn,
		ack:    ack,
		config: c,
	}, nil
}

// echoHandler writes back every byte read on its connection.
type echoHandler struct {
	conn   net.Conn
	ack    *core.Handoff
	config *echoProtocolConfig
}

// Serve echoes the connection until the peer closes it, the idle timeout
// expires or the byte limit is reached.
func (h *echoHandler) Serve() error {
	if err := corral.AcceptAck(h.ack); err != nil {
		return err
	}

	buf := make([]byte, *h.config.BufferSize)
	idle := time.Duration(*h.config.IdleTimeout) * time.Second
	remaining := *h.config.MaxBytes

	for {
		if idle > 0 {
			if err := h.conn.SetReadDeadline(time.Now().Add(idle)); err != nil {
				return err
			}
		}

		n, err := h.conn.Read(buf)
		if n > 0 {
			if *h.config.MaxBytes > 0 && n > remaining {
				n = remaining
			}
			if _, werr := h.conn.Write(buf[:n]); werr != nil {
				return werr
			}
			if *h.config.MaxBytes > 0 {
				remaining -= n
				if remaining == 0 {
					return nil
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

var _ core.Protocol = (*echoProtocol)(nil)
