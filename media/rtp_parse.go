// SPDX-License-Identifier: MPL-2.0
// Copyright (C) 2024 Emir Aganovic

package media

import (
	"errors"
	"fmt"
	"io"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
)

var errRTCPShort = errors.New("rtcp: packet too short")

// RTPUnmarshal parses buf into p without retaining a reference to buf:
// if p.Payload already has enough capacity from a previous packet it
// is reused, otherwise a fresh slice is allocated. Header extensions
// are dropped rather than copied, since this core never inspects
// them.
func RTPUnmarshal(buf []byte, p *rtp.Packet) error {
	headerLen, err := p.Header.Unmarshal(buf)
	if err != nil {
		return err
	}
	if p.Header.Extension {
		p.Header.Extensions = nil
		p.Header.Extension = false
	}

	end := len(buf)
	if p.Header.Padding {
		p.PaddingSize = buf[end-1]
		end -= int(p.PaddingSize)
	}
	if end < headerLen {
		return io.ErrShortBuffer
	}

	payload := buf[headerLen:end]
	if p.Payload != nil && cap(p.Payload) >= len(payload) {
		p.Payload = p.Payload[:len(payload)]
		copy(p.Payload, payload)
		return nil
	}

	p.Payload = make([]byte, len(payload))
	copy(p.Payload, payload)
	return nil
}

// RTCPUnmarshal decodes a compound RTCP packet into the caller-supplied
// packets slice, stopping once it is full or the buffer is exhausted,
// and returns how many entries were filled. Unlike rtcp.Unmarshal this
// never allocates the backing slice itself, since a hot receive path
// reuses one across packets.
func RTCPUnmarshal(data []byte, packets []rtcp.Packet) (n int, err error) {
	for n = 0; n < len(packets) && len(data) != 0; n++ {
		var h rtcp.Header
		if err := h.Unmarshal(data); err != nil {
			return 0, errors.Join(errRTCPShort, err)
		}

		pktLen := int(h.Length+1) * 4
		if pktLen > len(data) {
			return 0, fmt.Errorf("rtcp packet claims %d bytes, only %d left: %w", pktLen, len(data), errRTCPShort)
		}

		pkt := newRTCPPacket(h.Type)
		if err := pkt.Unmarshal(data[:pktLen]); err != nil {
			return 0, err
		}
		packets[n] = pkt
		data = data[pktLen:]
	}
	return n, nil
}

func rtcpMarshal(packets []rtcp.Packet) ([]byte, error) {
	return rtcp.Marshal(packets)
}

// newRTCPPacket allocates the concrete rtcp.Packet type for a header's
// packet type; unknown types fall back to RawPacket so a compound
// packet with one unrecognized entry doesn't abort the whole parse.
func newRTCPPacket(t rtcp.PacketType) rtcp.Packet {
	switch t {
	case rtcp.TypeSenderReport:
		return new(rtcp.SenderReport)
	case rtcp.TypeReceiverReport:
		return new(rtcp.ReceiverReport)
	case rtcp.TypeSourceDescription:
		return new(rtcp.SourceDescription)
	case rtcp.TypeGoodbye:
		return new(rtcp.Goodbye)
	default:
		return new(rtcp.RawPacket)
	}
}
