package unix

import (
	"context"
	"errors"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/bhuisgen/corral/pkg/core"
	"github.com/bhuisgen/corral/pkg/module"
)

type testHandler struct{}

func (h testHandler) Serve() error {
	return nil
}

var _ core.Handler = (*testHandler)(nil)

func TestUnixTransportModuleInfo(t *testing.T) {
	tr := unixTransport{}
	got := tr.ModuleInfo()
	if got.ID != unixModuleID {
		t.Errorf("unixTransport.ModuleInfo() = %v, want %v", got.ID, unixModuleID)
	}
	if instance := got.NewInstance(); instance == nil {
		t.Errorf("unixTransport.NewInstance() = %v, want %v", instance, "not nil")
	}
	if _, err := module.Lookup(unixModuleID); err != nil {
		t.Errorf("module.Lookup() error = %v", err)
	}
}

func TestUnixTransportCheck(t *testing.T) {
	tests := []struct {
		name    string
		options map[string]interface{}
		want    []string
		wantErr bool
	}{
		{
			name: "minimal",
			options: map[string]interface{}{
				"Path": "/run/corral.sock",
			},
		},
		{
			name: "full",
			options: map[string]interface{}{
				"Path":           "/run/corral.sock",
				"Mode":           "0600",
				"MaxConnections": 10,
			},
		},
		{
			name:    "missing path",
			options: map[string]interface{}{},
			want: []string{
				"option 'Path', missing value",
			},
			wantErr: true,
		},
		{
			name: "invalid values",
			options: map[string]interface{}{
				"Path":           "/run/corral.sock",
				"Mode":           "0999",
				"MaxConnections": -1,
			},
			want: []string{
				"option 'Mode', invalid value '0999'",
				"option 'MaxConnections', invalid value '-1'",
			},
			wantErr: true,
		},
		{
			name: "invalid type",
			options: map[string]interface{}{
				"Path": []string{"a"},
			},
			want: []string{
				"failed to parse configuration",
			},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &unixTransport{}
			got, err := tr.Check(tt.options)
			if (err != nil) != tt.wantErr {
				t.Errorf("unixTransport.Check() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("unixTransport.Check() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUnixTransportListen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corral.sock")
	tr := unixTransport{}.ModuleInfo().NewInstance().(*unixTransport)

	// a stale socket left by a previous process
	stale, err := net.Listen("unix", path)
	if err != nil {
		t.Fatalf("net.Listen() error = %v", err)
	}
	stale.(*net.UnixListener).SetUnlinkOnClose(false)
	_ = stale.Close()

	ln, err := tr.Listen(context.Background(), map[string]interface{}{
		"Path":           path,
		"Mode":           "0600",
		"MaxConnections": 2,
	})
	if err != nil {
		t.Fatalf("unixTransport.Listen() error = %v", err)
	}
	fi, err := os.Stat(path)
	if err != nil {
		t.Fatalf("os.Stat() error = %v", err)
	}
	if got := fi.Mode().Perm(); got != 0o600 {
		t.Errorf("socket mode = %o, want %o", got, 0o600)
	}

	client, err := net.Dial("unix", path)
	if err != nil {
		t.Fatalf("net.Dial() error = %v", err)
	}
	defer client.Close()
	conn, err := tr.Accept(ln)
	if err != nil {
		t.Fatalf("unixTransport.Accept() error = %v", err)
	}
	defer conn.Close()
	if err := tr.Handoff(conn, testHandler{}); err != nil {
		t.Errorf("unixTransport.Handoff() error = %v", err)
	}

	if err := tr.Close(ln); err != nil {
		t.Errorf("unixTransport.Close() error = %v", err)
	}
	if _, err := tr.Accept(ln); !core.IsClosed(err) {
		t.Errorf("unixTransport.Accept() error = %v, want closed", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("os.Stat() error = %v, want %v", err, fs.ErrNotExist)
	}
}

func TestUnixTransportListenError(t *testing.T) {
	dir := t.TempDir()
	regular := filepath.Join(dir, "regular")
	if err := os.WriteFile(regular, nil, 0o600); err != nil {
		t.Fatalf("os.WriteFile() error = %v", err)
	}
	tests := []struct {
		name    string
		options map[string]interface{}
		modify  func(tr *unixTransport)
	}{
		{
			name:    "invalid options",
			options: map[string]interface{}{},
		},
		{
			name:    "not a socket",
			options: map[string]interface{}{"Path": regular},
		},
		{
			name:    "listen error",
			options: map[string]interface{}{"Path": filepath.Join(dir, "listen.sock")},
			modify: func(tr *unixTransport) {
				tr.netListen = func(ctx context.Context, lc *net.ListenConfig, network string, address string) (net.Listener, error) {
					return nil, errors.New("test error")
				}
			},
		},
		{
			name:    "chmod error",
			options: map[string]interface{}{"Path": filepath.Join(dir, "chmod.sock")},
			modify: func(tr *unixTransport) {
				tr.osChmod = func(name string, mode fs.FileMode) error {
					return errors.New("test error")
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := unixTransport{}.ModuleInfo().NewInstance().(*unixTransport)
			if tt.modify != nil {
				tt.modify(tr)
			}
			if _, err := tr.Listen(context.Background(), tt.options); err == nil {
				t.Error("unixTransport.Listen() error = nil, want error")
			}
		})
	}
}
