// Copyright 2022-2024 Boris HUISGEN. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package corral

import (
	"context"
	"errors"
	"fmt"
	"net"
	"reflect"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/bhuisgen/corral/pkg/core"
	"github.com/bhuisgen/corral/pkg/corral"
	"github.com/bhuisgen/corral/pkg/module"
)

// newTestAdmin starts the admin service of a new manager on an in-memory
// connection and returns a client.
func newTestAdmin(t *testing.T) (*corral.Manager, *AdminClient) {
	t.Helper()

	config := corral.DefaultConfig()
	config.Registerer = prometheus.NewRegistry()
	manager := corral.NewManager(config)
	t.Cleanup(manager.StopAll)

	lis := bufconn.Listen(1024 * 1024)
	server := grpc.NewServer()
	RegisterAdminServer(server, newAdminService(manager))
	go func() {
		_ = server.Serve(lis)
	}()
	t.Cleanup(server.Stop)

	conn, err := DialAdmin("passthrough:///bufnet", grpc.WithContextDialer(func(ctx context.Context, s string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	if err != nil {
		t.Fatalf("DialAdmin() error = %v", err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
	})

	return manager, NewAdminClient(conn)
}

// startTestListener starts a tcp echo listener on a random local port.
func startTestListener(t *testing.T, manager *corral.Manager, ref string, options core.ProtocolOptions) {
	t.Helper()

	transportInfo, err := module.Lookup("transport.tcp")
	if err != nil {
		t.Fatalf("module.Lookup() error = %v", err)
	}
	protocolInfo, err := module.Lookup("protocol.echo")
	if err != nil {
		t.Fatalf("module.Lookup() error = %v", err)
	}
	_, err = manager.StartListener(ref, 2,
		transportInfo.NewInstance().(core.Transport), map[string]interface{}{"listenAddr": "127.0.0.1"},
		protocolInfo.NewInstance().(core.Protocol), options)
	if err != nil {
		t.Fatalf("Manager.StartListener() error = %v", err)
	}
}

func TestAdminService(t *testing.T) {
	manager, client := newTestAdmin(t)
	startTestListener(t, manager, "echo", core.ProtocolOptions{"bufferSize": 512})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	listeners, err := client.ListListeners(ctx)
	if err != nil {
		t.Fatalf("AdminClient.ListListeners() error = %v", err)
	}
	if len(listeners) != 1 {
		t.Fatalf("AdminClient.ListListeners() = %v, want 1 listener", listeners)
	}
	addr, err := manager.GetAddr("echo")
	if err != nil {
		t.Fatalf("Manager.GetAddr() error = %v", err)
	}
	want := map[string]interface{}{
		"ref":               "echo",
		"state":             "running",
		"addr":              addr.String(),
		"acceptors":         float64(2),
		"activeConnections": float64(0),
		"transport":         "transport.tcp",
		"protocol":          "protocol.echo",
		"protocolOptions":   map[string]interface{}{"bufferSize": float64(512)},
	}
	if !reflect.DeepEqual(listeners[0], want) {
		t.Errorf("AdminClient.ListListeners() = %v, want %v", listeners[0], want)
	}

	options, err := client.GetProtocolOptions(ctx, "echo")
	if err != nil {
		t.Fatalf("AdminClient.GetProtocolOptions() error = %v", err)
	}
	if !reflect.DeepEqual(options, map[string]interface{}{"bufferSize": float64(512)}) {
		t.Errorf("AdminClient.GetProtocolOptions() = %v", options)
	}

	if err := client.SetProtocolOptions(ctx, "echo", map[string]interface{}{"bufferSize": 1024}); err != nil {
		t.Fatalf("AdminClient.SetProtocolOptions() error = %v", err)
	}
	current, err := manager.GetProtocolOptions("echo")
	if err != nil {
		t.Fatalf("Manager.GetProtocolOptions() error = %v", err)
	}
	if !reflect.DeepEqual(current, core.ProtocolOptions{"bufferSize": float64(1024)}) {
		t.Errorf("Manager.GetProtocolOptions() = %v", current)
	}

	if err := client.SuspendListener(ctx, "echo"); err != nil {
		t.Fatalf("AdminClient.SuspendListener() error = %v", err)
	}
	if err := client.SuspendListener(ctx, "echo"); status.Code(err) != codes.FailedPrecondition {
		t.Errorf("AdminClient.SuspendListener() error = %v, want %v", err, codes.FailedPrecondition)
	}
	if err := client.ResumeListener(ctx, "echo"); err != nil {
		t.Fatalf("AdminClient.ResumeListener() error = %v", err)
	}
	if err := client.ResumeListener(ctx, "echo"); status.Code(err) != codes.FailedPrecondition {
		t.Errorf("AdminClient.ResumeListener() error = %v, want %v", err, codes.FailedPrecondition)
	}

	if err := client.StopListener(ctx, "echo"); err != nil {
		t.Fatalf("AdminClient.StopListener() error = %v", err)
	}
	if err := client.StopListener(ctx, "echo"); status.Code(err) != codes.NotFound {
		t.Errorf("AdminClient.StopListener() error = %v, want %v", err, codes.NotFound)
	}
	if _, err := client.GetProtocolOptions(ctx, "echo"); status.Code(err) != codes.NotFound {
		t.Errorf("AdminClient.GetProtocolOptions() error = %v, want %v", err, codes.NotFound)
	}
	listeners, err = client.ListListeners(ctx)
	if err != nil {
		t.Fatalf("AdminClient.ListListeners() error = %v", err)
	}
	if len(listeners) != 0 {
		t.Errorf("AdminClient.ListListeners() = %v, want none", listeners)
	}
}

func TestAdminServiceInvalidRequest(t *testing.T) {
	_, client := newTestAdmin(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.SetProtocolOptions(ctx, "", map[string]interface{}{}); status.Code(err) != codes.InvalidArgument {
		t.Errorf("AdminClient.SetProtocolOptions() error = %v, want %v", err, codes.InvalidArgument)
	}
	if err := client.SetProtocolOptions(ctx, "unknown", map[string]interface{}{}); status.Code(err) != codes.NotFound {
		t.Errorf("AdminClient.SetProtocolOptions() error = %v, want %v", err, codes.NotFound)
	}
	if err := client.ResumeListener(ctx, "unknown"); status.Code(err) != codes.NotFound {
		t.Errorf("AdminClient.ResumeListener() error = %v, want %v", err, codes.NotFound)
	}
}

func TestAdminStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want codes.Code
	}{
		{
			name: "not found",
			err:  corral.ErrNotFound,
			want: codes.NotFound,
		},
		{
			name: "already registered",
			err:  fmt.Errorf("start: %w", corral.ErrAlreadyRegistered),
			want: codes.AlreadyExists,
		},
		{
			name: "not running",
			err:  corral.ErrNotRunning,
			want: codes.FailedPrecondition,
		},
		{
			name: "not suspended",
			err:  corral.ErrNotSuspended,
			want: codes.FailedPrecondition,
		},
		{
			name: "not listening",
			err:  corral.ErrNotListening,
			want: codes.FailedPrecondition,
		},
		{
			name: "invalid reference",
			err:  corral.ErrInvalidRef,
			want: codes.InvalidArgument,
		},
		{
			name: "transport",
			err:  &corral.TransportError{Transport: "transport.tcp", Err: errors.New("test error")},
			want: codes.Unavailable,
		},
		{
			name: "other",
			err:  errors.New("test error"),
			want: codes.Internal,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := status.Code(adminStatus(tt.err)); got != tt.want {
				t.Errorf("adminStatus() = %v, want %v", got, tt.want)
			}
		})
	}
}
