// Copyright 2022-2024 Boris HUISGEN. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package corral

import (
	_ "github.com/bhuisgen/corral/pkg/modules/transport/transports/tcp"
	_ "github.com/bhuisgen/corral/pkg/modules/transport/transports/tls"
	_ "github.com/bhuisgen/corral/pkg/modules/transport/transports/unix"

	_ "github.com/bhuisgen/corral/pkg/modules/protocol/protocols/echo"
	_ "github.com/bhuisgen/corral/pkg/modules/protocol/protocols/reply"
)
