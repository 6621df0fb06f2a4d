// SPDX-License-Identifier: MPL-2.0
// Copyright (C) 2024 Emir Aganovic

package media

// Source produces outbound media samples for a Session to frame and
// send as RTP. Read returns the number of bytes placed
// in p; a Session calls it once per Tick and sends a non-empty result
// as one RTP packet, so a Read returning 0 bytes is how a Source paces
// sending.
type Source interface {
	Read(p []byte) (n int, err error)
}

// Consumer receives inbound media payloads in sequence order, already
// de-jittered. Write must not block for long; a Session calls it from
// its Tick as frames are released from the jitter buffer.
type Consumer interface {
	Write(p []byte) (n int, err error)
}
