// SPDX-License-Identifier: MPL-2.0
// Copyright (C) 2024 Emir Aganovic

//go:build linux

package media

import (
	"net"

	"golang.org/x/sys/unix"
)

// applyTOS sets IP_TOS on conn's underlying socket.
// Failures are silently ignored: requesting a DSCP class is a
// hint, not a requirement, and plenty of containers/sandboxes deny
// the setsockopt outright.
func applyTOS(conn *net.UDPConn, class TOSClass) {
	if conn == nil || class == TOSNone {
		return
	}

	raw, err := conn.SyscallConn()
	if err != nil {
		return
	}

	_ = raw.Control(func(fd uintptr) {
		_ = unix.SetsockoptByte(int(fd), unix.IPPROTO_IP, unix.IP_TOS, class.tosByte())
	})
}
