// Copyright 2022-2024 Boris HUISGEN. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

//go:build !linux

package tcp

import (
	"errors"
	"syscall"
)

const reusePortSupported = false

func reuseAddrPort(network string, address string, conn syscall.RawConn) error {
	return errors.New("SO_REUSEPORT not supported")
}
