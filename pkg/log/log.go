// Copyright 2022-2024 Boris HUISGEN. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package log

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// ProgramLevel is the common log level.
var ProgramLevel = new(slog.LevelVar)

// New returns a logger writing to stderr for the given component.
func New(component string) *slog.Logger {
	return slog.New(NewHandler(os.Stderr, component, nil))
}

// SetLevel sets the common log level from its name.
func SetLevel(name string) error {
	var level slog.Level
	switch strings.ToLower(name) {
	case "debug":
		level = slog.LevelDebug
	case "", "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level '%s'", name)
	}
	ProgramLevel.Set(level)

	return nil
}

// Fatalf logs the formatted message at error level and exits.
func Fatalf(logger *slog.Logger, format string, v ...any) {
	logger.Error(fmt.Sprintf(format, v...))
	os.Exit(1)
}
