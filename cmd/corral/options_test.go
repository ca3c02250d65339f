package main

import (
	"os"
	"path/filepath"
	"reflect"
	"runtime/debug"
	"testing"

	"github.com/bhuisgen/corral/internal/app/corral"
)

func TestSelectOptions(t *testing.T) {
	options := map[string]interface{}{
		"bufferSize": float64(4096),
		"limits": map[string]interface{}{
			"maxBytes": float64(1024),
		},
	}
	tests := []struct {
		name    string
		path    string
		want    interface{}
		wantErr bool
	}{
		{
			name: "all",
			want: options,
		},
		{
			name: "field",
			path: "$.bufferSize",
			want: float64(4096),
		},
		{
			name: "nested field",
			path: "$.limits.maxBytes",
			want: float64(1024),
		},
		{
			name:    "unknown field",
			path:    "$.idleTimeout",
			wantErr: true,
		},
		{
			name:    "invalid path",
			path:    "$[",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := selectOptions(options, tt.path)
			if (err != nil) != tt.wantErr {
				t.Errorf("selectOptions() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("selectOptions() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOptionsCommandParse(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr bool
	}{
		{
			name: "get",
			args: []string{"echo"},
		},
		{
			name: "path",
			args: []string{"-path", "$.bufferSize", "echo"},
		},
		{
			name: "set",
			args: []string{"-set", "options.yaml", "echo"},
		},
		{
			name:    "missing listener",
			args:    []string{},
			wantErr: true,
		},
		{
			name:    "exclusive flags",
			args:    []string{"-path", "$.bufferSize", "-set", "options.yaml", "echo"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewOptionsCommand()
			if err := c.Parse(tt.args); (err != nil) != tt.wantErr {
				t.Errorf("optionsCommand.Parse() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestListenerCommandParse(t *testing.T) {
	c := NewListenerCommand("stop", "Stop a listener", stopListener)
	if c.Name() != "stop" {
		t.Errorf("listenerCommand.Name() = %v, want %v", c.Name(), "stop")
	}
	if err := c.Parse([]string{"-addr", "127.0.0.1:7071", "echo"}); err != nil {
		t.Errorf("listenerCommand.Parse() error = %v", err)
	}
	if c.listener != "echo" || c.admin.addr != "127.0.0.1:7071" {
		t.Errorf("listenerCommand = %v %v, want %v %v", c.listener, c.admin.addr, "echo", "127.0.0.1:7071")
	}
	if err := NewListenerCommand("stop", "Stop a listener", stopListener).Parse(nil); err == nil {
		t.Error("listenerCommand.Parse() error = nil, want error")
	}
}

func TestModuleLines(t *testing.T) {
	tests := []struct {
		name      string
		namespace string
		want      []string
	}{
		{
			name:      "transports",
			namespace: "transport",
			want: []string{
				"transport    tcp",
				"transport    tls",
				"transport    unix",
			},
		},
		{
			name:      "protocols",
			namespace: "protocol",
			want: []string{
				"protocol     echo",
				"protocol     reply",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := moduleLines(tt.namespace); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("moduleLines() = %v, want %v", got, tt.want)
			}
		})
	}
	if got := moduleLines(""); len(got) != 5 {
		t.Errorf("moduleLines() = %v, want 5 modules", got)
	}
}

func TestModulesCommandParse(t *testing.T) {
	if err := NewModulesCommand().Parse([]string{"-n", "protocol"}); err != nil {
		t.Errorf("modulesCommand.Parse() error = %v", err)
	}
	if err := NewModulesCommand().Parse([]string{"-n", "codec"}); err == nil {
		t.Error("modulesCommand.Parse() error = nil, want error")
	}
}

func TestVersionLines(t *testing.T) {
	buildInfo := &debug.BuildInfo{
		GoVersion: "go1.22.0",
		Deps: []*debug.Module{
			{Path: "google.golang.org/grpc", Version: "v1.64.0"},
		},
	}

	lines := versionLines(buildInfo, false)
	if len(lines) != 6 || lines[5] != " Go version:        go1.22.0" {
		t.Errorf("versionLines() = %q", lines)
	}

	lines = versionLines(buildInfo, true)
	want := []string{
		" Modules:",
		"  protocol     echo",
		"  protocol     reply",
		"  transport    tcp",
		"  transport    tls",
		"  transport    unix",
		" Dependencies:",
		"  google.golang.org/grpc v1.64.0",
	}
	if got := lines[6:]; !reflect.DeepEqual(got, want) {
		t.Errorf("versionLines() = %q, want %q", got, want)
	}

	if got := versionLines(nil, false); len(got) != 5 {
		t.Errorf("versionLines() = %q, want 5 lines", got)
	}
}

func TestVersionCommandParse(t *testing.T) {
	if err := NewVersionCommand().Parse([]string{"-short"}); err != nil {
		t.Errorf("versionCommand.Parse() error = %v", err)
	}
	if err := NewVersionCommand().Parse([]string{"-short", "-verbose"}); err == nil {
		t.Error("versionCommand.Parse() error = nil, want error")
	}
}

func TestCheckCommand(t *testing.T) {
	previous := corral.CONFIG_FILE
	t.Cleanup(func() {
		corral.CONFIG_FILE = previous
	})

	name := filepath.Join(t.TempDir(), "corral.yaml")
	data := `
listeners:
  motd:
    transport:
      tcp:
        listenAddr: 127.0.0.1
    protocol:
      reply:
        message: hello
`
	if err := os.WriteFile(name, []byte(data), 0600); err != nil {
		t.Fatalf("os.WriteFile() error = %v", err)
	}

	c := NewCheckCommand()
	if err := c.Parse([]string{"-c", name, "-verbose"}); err != nil {
		t.Fatalf("checkCommand.Parse() error = %v", err)
	}
	if corral.CONFIG_FILE != name {
		t.Errorf("CONFIG_FILE = %v, want %v", corral.CONFIG_FILE, name)
	}
	if err := c.Execute(); err != nil {
		t.Errorf("checkCommand.Execute() error = %v", err)
	}

	if err := os.WriteFile(name, []byte("listeners:\n  motd: {}\n"), 0600); err != nil {
		t.Fatalf("os.WriteFile() error = %v", err)
	}
	if err := c.Execute(); err == nil {
		t.Error("checkCommand.Execute() error = nil, want error")
	}
}
