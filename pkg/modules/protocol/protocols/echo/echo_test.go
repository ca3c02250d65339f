package echo

import (
	"errors"
	"io"
	"net"
	"reflect"
	"testing"
	"time"

	"github.com/bhuisgen/corral/pkg/core"
	"github.com/bhuisgen/corral/pkg/module"
)

func TestEchoProtocolModuleInfo(t *testing.T) {
	p := echoProtocol{}
	got := p.ModuleInfo()
	if got.ID != echoModuleID {
		t.Errorf("echoProtocol.ModuleInfo() = %v, want %v", got.ID, echoModuleID)
	}
	if instance := got.NewInstance(); instance == nil {
		t.Errorf("echoProtocol.NewInstance() = %v, want %v", instance, "not nil")
	}
	if _, err := module.Lookup(echoModuleID); err != nil {
		t.Errorf("module.Lookup() error = %v", err)
	}
}

func TestEchoProtocolCheck(t *testing.T) {
	tests := []struct {
		name    string
		options map[string]interface{}
		want    []string
		wantErr bool
	}{
		{
			name: "minimal",
		},
		{
			name: "full",
			options: map[string]interface{}{
				"BufferSize":  512,
				"IdleTimeout": 0,
				"MaxBytes":    1024,
			},
		},
		{
			name: "invalid values",
			options: map[string]interface{}{
				"BufferSize":  0,
				"IdleTimeout": -1,
				"MaxBytes":    -1,
			},
			want: []string{
				"option 'BufferSize', invalid value '0'",
				"option 'IdleTimeout', invalid value '-1'",
				"option 'MaxBytes', invalid value '-1'",
			},
			wantErr: true,
		},
		{
			name: "invalid type",
			options: map[string]interface{}{
				"BufferSize": "large",
			},
			want: []string{
				"failed to parse configuration",
			},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &echoProtocol{}
			got, err := p.Check(tt.options)
			if (err != nil) != tt.wantErr {
				t.Errorf("echoProtocol.Check() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("echoProtocol.Check() = %v, want %v", got, tt.want)
			}
		})
	}
}

// serve starts a handler on one end of a pipe and returns the other end.
func serve(t *testing.T, options core.ProtocolOptions, grant bool) (net.Conn, <-chan error) {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() {
		_ = client.Close()
		_ = server.Close()
	})

	p := &echoProtocol{}
	ack := core.NewHandoff()
	h, err := p.StartHandler(server, options, ack)
	if err != nil {
		t.Fatalf("echoProtocol.StartHandler() error = %v", err)
	}

	errc := make(chan error, 1)
	go func() {
		errc <- h.Serve()
		_ = server.Close()
	}()
	if grant {
		ack.Grant()
	} else {
		ack.Abort(errors.New("test error"))
	}

	return client, errc
}

func TestEchoHandlerServe(t *testing.T) {
	client, errc := serve(t, core.ProtocolOptions{"BufferSize": 4}, true)
	_ = client.SetDeadline(time.Now().Add(5 * time.Second))

	for _, msg := range []string{"ping", "hello world"} {
		werr := make(chan error, 1)
		go func() {
			_, err := client.Write([]byte(msg))
			werr <- err
		}()
		buf := make([]byte, len(msg))
		if _, err := io.ReadFull(client, buf); err != nil {
			t.Fatalf("io.ReadFull() error = %v", err)
		}
		if string(buf) != msg {
			t.Errorf("echo = %q, want %q", buf, msg)
		}
		if err := <-werr; err != nil {
			t.Fatalf("client.Write() error = %v", err)
		}
	}

	_ = client.Close()
	if err := <-errc; err != nil && !errors.Is(err, io.ErrClosedPipe) {
		t.Errorf("echoHandler.Serve() error = %v", err)
	}
}

func TestEchoHandlerMaxBytes(t *testing.T) {
	client, errc := serve(t, core.ProtocolOptions{"MaxBytes": 3}, true)
	_ = client.SetDeadline(time.Now().Add(5 * time.Second))

	go func() {
		_, _ = client.Write([]byte("abcdef"))
	}()
	buf, err := io.ReadAll(client)
	if err != nil {
		t.Fatalf("io.ReadAll() error = %v", err)
	}
	if string(buf) != "abc" {
		t.Errorf("echo = %q, want %q", buf, "abc")
	}
	if err := <-errc; err != nil {
		t.Errorf("echoHandler.Serve() error = %v", err)
	}
}

func TestEchoHandlerAborted(t *testing.T) {
	_, errc := serve(t, nil, false)
	if err := <-errc; err == nil {
		t.Error("echoHandler.Serve() error = nil, want error")
	}
}

func TestEchoProtocolStartHandlerError(t *testing.T) {
	p := &echoProtocol{}
	if _, err := p.StartHandler(nil, core.ProtocolOptions{"BufferSize": -1}, core.NewHandoff()); err == nil {
		t.Error("echoProtocol.StartHandler() error = nil, want error")
	}
	if _, err := p.StartHandler(nil, core.ProtocolOptions{"BufferSize": "large"}, core.NewHandoff()); err == nil {
		t.Error("echoProtocol.StartHandler() error = nil, want error")
	}
}
