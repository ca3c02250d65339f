// Copyright 2022-2024 Boris HUISGEN. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package reply

import (
	"fmt"
	"net"

	"github.com/mitchellh/mapstructure"

	"github.com/bhuisgen/corral/pkg/core"
	"github.com/bhuisgen/corral/pkg/corral"
	"github.com/bhuisgen/corral/pkg/module"
)

// replyProtocol implements the reply protocol.
type replyProtocol struct{}

// replyProtocolConfig implements the reply protocol configuration.
type replyProtocolConfig struct {
	Message *string `mapstructure:"message"`
	Newline *bool   `mapstructure:"newline"`
}

const (
	replyModuleID module.ModuleID = "protocol.reply"

	replyConfigDefaultMessage string = "hello"
	replyConfigDefaultNewline bool   = true
)

// init initializes the module.
func init() {
	module.Register(replyProtocol{})
}

// ModuleInfo returns the module information.
func (p replyProtocol) ModuleInfo() module.ModuleInfo {
	return module.ModuleInfo{
		ID: replyModuleID,
		NewInstance: func() module.Module {
			return &replyProtocol{}
		},
	}
}

// Check checks the protocol options.
func (p *replyProtocol) Check(options map[string]interface{}) ([]string, error) {
	var c replyProtocolConfig
	if err := mapstructure.Decode(options, &c); err != nil {
		return []string{"failed to parse configuration"}, err
	}

	return nil, nil
}

// StartHandler creates the handler of the connection.
func (p *replyProtocol) StartHandler(conn net.Conn, options core.ProtocolOptions, ack *core.Handoff) (core.Handler, error) {
	var c replyProtocolConfig
	if err := mapstructure.Decode(options, &c); err != nil {
		return nil, fmt.Errorf("parse options: %w", err)
	}
	if c.Message == nil {
		defaultValue := replyConfigDefaultMessage
		c.Message = &defaultValue
	}
	if c.Newline == nil {
		defaultValue := replyConfigDefaultNewline
		c.Newline = &defaultValue
	}

	message := *c.Message
	if *c.Newline {
		message += "\n"
	}

	return &replyHandler{
		conn:    conn,
		ack:     ack,
		message: []byte(message),
	}, nil
}

// replyHandler writes its message and returns.
type replyHandler struct {
	conn    net.Conn
	ack     *core.Handoff
	message []byte
}

// Serve writes the message.
func (h *replyHandler) Serve() error {
	if err := corral.AcceptAck(h.ack); err != nil {
		return err
	}
	if _, err := h.conn.Write(h.message); err != nil {
		return fmt.Errorf("write message: %w", err)
	}

	return nil
}

var _ core.Protocol = (*replyProtocol)(nil)
