// SPDX-License-Identifier: MPL-2.0
// Copyright (C) 2024 Emir Aganovic

package media

import "net"

// Processor is one member of a Group's cooperative scheduling loop.
// Transport, Session, Monitor and a Reflector's per-leg relay stages
// all implement it so a single goroutine can drive any mix of them.
type Processor interface {
	// Tick is called once per Group iteration. now is milliseconds
	// since an arbitrary epoch, monotonic for the lifetime of the
	// Group. Tick must not block.
	Tick(now int64)

	// OnRTP delivers one inbound RTP datagram, already source-checked,
	// from addr. Returning false tells the caller the packet was
	// rejected and should be considered dropped for statistics.
	OnRTP(payload []byte, addr *net.UDPAddr) bool

	// OnRTCP delivers one inbound RTCP datagram.
	OnRTCP(payload []byte, addr *net.UDPAddr) bool

	// AttachGroup is called when the Processor joins or leaves (g ==
	// nil) a Group, so it can keep a back-pointer for e.g. requesting
	// removal of itself.
	AttachGroup(g *Group)
}
