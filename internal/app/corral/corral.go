// Copyright 2022-2024 Boris HUISGEN. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package corral

import (
	"log/slog"
	"os"

	"github.com/bhuisgen/corral/pkg/log"
)

var (
	DEBUG bool = false

	CONFIG_FILE string = ""
)

var (
	Name    string = "Corral"
	Version string = "dev"
	Commit  string = "-"
	Date    string = "-"
)

// New creates a new instance.
func New(config *config) *App {
	if v, ok := os.LookupEnv("DEBUG"); ok && v != "0" {
		DEBUG = true
	}
	if DEBUG {
		log.ProgramLevel.Set(slog.LevelDebug)
	}

	return newApp(config)
}
