// SPDX-License-Identifier: MPL-2.0
// Copyright (C) 2024 Emir Aganovic

//go:build !linux

package media

import "net"

// applyTOS is a no-op outside Linux; IP_TOS/DSCP tuning is best-effort
// everywhere this core runs.
func applyTOS(conn *net.UDPConn, class TOSClass) {}
