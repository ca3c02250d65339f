// Copyright 2022-2024 Boris HUISGEN. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package corral

import (
	"reflect"
	"testing"

	"github.com/bhuisgen/corral/pkg/core"
)

func intPtr(v int) *int {
	return &v
}

func stringPtr(v string) *string {
	return &v
}

func tcpListenerConfig(port int, protocol string, options map[string]interface{}) *configListener {
	return &configListener{
		Acceptors: intPtr(2),
		Transport: map[string]interface{}{
			"tcp": map[string]interface{}{
				"listenAddr": "127.0.0.1",
				"listenPort": port,
			},
		},
		Protocol: map[string]interface{}{
			protocol: options,
		},
	}
}

func TestLoadListener(t *testing.T) {
	tests := []struct {
		name    string
		config  *configListener
		want    []string
		wantErr bool
	}{
		{
			name:   "valid",
			config: tcpListenerConfig(0, "echo", map[string]interface{}{"bufferSize": 512}),
		},
		{
			name:   "protocol without options",
			config: tcpListenerConfig(0, "reply", nil),
		},
		{
			name:   "nil config",
			config: nil,
			want: []string{
				"listener 'test': missing transport",
				"listener 'test': missing protocol",
			},
			wantErr: true,
		},
		{
			name: "invalid acceptors",
			config: &configListener{
				Acceptors: intPtr(-1),
				Transport: map[string]interface{}{"tcp": nil},
				Protocol:  map[string]interface{}{"echo": nil},
			},
			want: []string{
				"listener 'test': option 'Acceptors', invalid value '-1'",
			},
			wantErr: true,
		},
		{
			name: "unregistered modules",
			config: &configListener{
				Transport: map[string]interface{}{"sctp": nil},
				Protocol:  map[string]interface{}{"http": nil},
			},
			want: []string{
				"listener 'test': unregistered transport module 'sctp'",
				"listener 'test': unregistered protocol module 'http'",
			},
			wantErr: true,
		},
		{
			name: "multiple transports",
			config: &configListener{
				Transport: map[string]interface{}{"tcp": nil, "unix": nil},
				Protocol:  map[string]interface{}{"echo": nil},
			},
			want: []string{
				"listener 'test': multiple transport modules",
			},
			wantErr: true,
		},
		{
			name:   "invalid module options",
			config: tcpListenerConfig(70000, "echo", map[string]interface{}{"bufferSize": 0}),
			want: []string{
				"listener 'test': transport 'tcp': option 'ListenPort', invalid value '70000'",
				"listener 'test': protocol 'echo': option 'BufferSize', invalid value '0'",
			},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, report, err := loadListener("test", tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("loadListener() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !reflect.DeepEqual(report, tt.want) {
				t.Errorf("loadListener() report = %v, want %v", report, tt.want)
			}
			if tt.wantErr {
				return
			}
			if got.name != "test" || got.acceptors != 2 || got.transport == nil || got.protocol == nil {
				t.Errorf("loadListener() = %+v", got)
			}
		})
	}
}

func TestLoadListenerDefaults(t *testing.T) {
	l, _, err := loadListener("test", &configListener{
		Transport: map[string]interface{}{"tcp": nil},
		Protocol:  map[string]interface{}{"echo": nil},
	})
	if err != nil {
		t.Fatalf("loadListener() error = %v", err)
	}
	if l.acceptors != listenerConfigDefaultAcceptors {
		t.Errorf("loadListener() acceptors = %v, want %v", l.acceptors, listenerConfigDefaultAcceptors)
	}
	if l.transportName != "tcp" || l.protocolName != "echo" {
		t.Errorf("loadListener() modules = %v %v, want %v %v", l.transportName, l.protocolName, "tcp", "echo")
	}
	if !reflect.DeepEqual(l.protocolOptions, core.ProtocolOptions{}) {
		t.Errorf("loadListener() protocolOptions = %v, want empty", l.protocolOptions)
	}
}

func TestListenerCompare(t *testing.T) {
	load := func(t *testing.T, c *configListener) *listener {
		t.Helper()
		l, report, err := loadListener("test", c)
		if err != nil {
			t.Fatalf("loadListener() error = %v, report %v", err, report)
		}
		return l
	}
	base := load(t, tcpListenerConfig(5555, "echo", map[string]interface{}{"bufferSize": 512}))

	tests := []struct {
		name            string
		other           *configListener
		sameSocket      bool
		sameProtoOption bool
	}{
		{
			name:            "identical",
			other:           tcpListenerConfig(5555, "echo", map[string]interface{}{"bufferSize": 512}),
			sameSocket:      true,
			sameProtoOption: true,
		},
		{
			name:       "protocol options",
			other:      tcpListenerConfig(5555, "echo", map[string]interface{}{"bufferSize": 1024}),
			sameSocket: true,
		},
		{
			name:            "transport options",
			other:           tcpListenerConfig(5556, "echo", map[string]interface{}{"bufferSize": 512}),
			sameProtoOption: true,
		},
		{
			name:  "protocol",
			other: tcpListenerConfig(5555, "reply", map[string]interface{}{}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			other := load(t, tt.other)
			if got := base.sameSocket(other); got != tt.sameSocket {
				t.Errorf("listener.sameSocket() = %v, want %v", got, tt.sameSocket)
			}
			if got := base.sameProtocolOptions(other); got != tt.sameProtoOption {
				t.Errorf("listener.sameProtocolOptions() = %v, want %v", got, tt.sameProtoOption)
			}
		})
	}
}
