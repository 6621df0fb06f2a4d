// SPDX-License-Identifier: MPL-2.0
// Copyright (C) 2024 Emir Aganovic

package media

import "time"

// Codec describes the wire characteristics this core needs in order to
// frame and time RTP packets. It never interprets payload bytes; the
// actual codec implementation lives outside the core.
type Codec struct {
	PayloadType uint8
	SampleRate  uint32
	SampleDur   time.Duration
}

// SampleTimestamp returns the RTP timestamp increment for one SampleDur
// worth of audio at SampleRate.
func (c Codec) SampleTimestamp() uint32 {
	return uint32(float64(c.SampleRate) * c.SampleDur.Seconds())
}

var (
	CodecAudioUlaw          = Codec{PayloadType: 0, SampleRate: 8000, SampleDur: 20 * time.Millisecond}
	CodecAudioAlaw          = Codec{PayloadType: 8, SampleRate: 8000, SampleDur: 20 * time.Millisecond}
	CodecTelephoneEvent8000 = Codec{PayloadType: 101, SampleRate: 8000, SampleDur: 20 * time.Millisecond}
)

// PayloadTypeSilence is the RFC 3389 comfort-noise payload type. The
// Session latches this the first time it sees it inbound so generated
// silence matches the peer-indicated type.
const PayloadTypeSilence uint8 = 13

// payloadDictionary maps symbolic signalling names to static RTP/AVP
// payload type numbers. Entries with no
// static assignment (most modern codecs) are resolved dynamically by
// the signalling layer and never appear here; this table serves the
// legacy static set, plus telephone-event mapped to its conventional
// dynamic number 101.
var payloadDictionary = map[string]uint8{
	"mulaw":      0,
	"alaw":       8,
	"gsm":        3,
	"g723":       4,
	"g728":       15,
	"g729":       18,
	"mjpeg":      26,
	"h261":       31,
	"h263":       34,
	"mpv":        32,
	"mp2t":       33,
	"telephone-event": 101,
}

// dynamicDictionary lists names that only ever carry a dynamic payload
// type (96-127); they are recognised so a caller can validate a
// negotiated name before wiring it into a Codec, but this core has no
// static number to hand back.
var dynamicDictionary = map[string]struct{}{
	"g722":       {},
	"ilbc":       {},
	"amr":        {},
	"amr/16000":  {},
	"speex":      {},
	"speex/16000": {},
	"speex/32000": {},
	"mp4v":       {},
}

// PayloadTypeByName resolves a symbolic codec name to its static RTP
// payload type number (101 for telephone-event). ok is false for the
// other dynamic-only names and for unknown names.
func PayloadTypeByName(name string) (pt uint8, ok bool) {
	pt, ok = payloadDictionary[name]
	return
}

// IsKnownName reports whether name is recognised at all, static or
// dynamic-only.
func IsKnownName(name string) bool {
	if _, ok := payloadDictionary[name]; ok {
		return true
	}
	_, ok := dynamicDictionary[name]
	return ok
}

// CodecFromPayloadType builds a Codec for a known numeric payload type.
// Sample rate/duration default to narrowband voice (8kHz/20ms); callers
// negotiating wideband codecs should build their own Codec value.
func CodecFromPayloadType(payloadType uint8) Codec {
	return Codec{
		PayloadType: payloadType,
		SampleRate:  8000,
		SampleDur:   20 * time.Millisecond,
	}
}
