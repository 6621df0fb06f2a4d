// SPDX-License-Identifier: MPL-2.0
// Copyright (C) 2024 Emir Aganovic

package media

import (
	"encoding/binary"
	"fmt"
)

// dtmfDigits maps each RFC 4733 keypad character to its event code.
var dtmfDigits = map[rune]byte{
	'0': 0, '1': 1, '2': 2, '3': 3, '4': 4,
	'5': 5, '6': 6, '7': 7, '8': 8, '9': 9,
	'*': 10, '#': 11,
	'A': 12, 'B': 13, 'C': 14, 'D': 15,
}

var dtmfDigitsRev = map[byte]rune{
	0: '0', 1: '1', 2: '2', 3: '3', 4: '4',
	5: '5', 6: '6', 7: '7', 8: '8', 9: '9',
	10: '*', 11: '#',
	12: 'A', 13: 'B', 14: 'C', 15: 'D',
}

// DTMFToRune converts a decoded RFC 4733 event code back to its
// keypad character; unknown codes map to the zero rune.
func DTMFToRune(event uint8) rune {
	return dtmfDigitsRev[event]
}

// RTPDTMFEncode builds the redundant packet train RFC 4733 requires
// for one keypress: four packets growing the event's Duration field,
// followed by three end-of-event packets repeating the final
// duration, all at clockRate (the rate negotiated for the
// telephone-event payload type -- conventionally 8000Hz independent
// of the audio codec in use).
func RTPDTMFEncode(char rune, clockRate uint32) []DTMFEvent {
	event := dtmfDigits[char]
	step := uint16(clockRate / 50) // one 20ms tick's worth of samples

	events := make([]DTMFEvent, 0, 7)
	for i := 1; i <= 4; i++ {
		events = append(events, DTMFEvent{
			Event:    event,
			Volume:   10,
			Duration: step * uint16(i),
		})
	}

	endDuration := step * 5
	for i := 0; i < 3; i++ {
		events = append(events, DTMFEvent{
			Event:      event,
			EndOfEvent: true,
			Volume:     10,
			Duration:   endDuration,
		})
	}
	return events
}

// DTMFEvent is one RFC 4733 telephone-event RTP payload.
type DTMFEvent struct {
	Event      uint8
	EndOfEvent bool
	Volume     uint8 // 0-63; the two high bits of the wire byte are E and reserved
	Duration   uint16
}

func (ev *DTMFEvent) String() string {
	return fmt.Sprintf("DTMFEvent{event=%d end=%v volume=%d duration=%d}",
		ev.Event, ev.EndOfEvent, ev.Volume, ev.Duration)
}

// DTMFDecode parses a 4-byte RFC 4733 telephone-event payload into d.
func DTMFDecode(payload []byte, d *DTMFEvent) error {
	if len(payload) < 4 {
		return fmt.Errorf("media: dtmf payload too short (%d bytes)", len(payload))
	}
	d.Event = payload[0]
	d.EndOfEvent = payload[1]&0x80 != 0
	d.Volume = payload[1] & 0x3F
	d.Duration = binary.BigEndian.Uint16(payload[2:4])
	return nil
}

// DTMFEncode serializes d into its 4-byte RFC 4733 wire form.
func DTMFEncode(d DTMFEvent) []byte {
	wire := make([]byte, 4)
	wire[0] = d.Event
	if d.EndOfEvent {
		wire[1] = 0x80
	}
	wire[1] |= d.Volume & 0x3F
	binary.BigEndian.PutUint16(wire[2:4], d.Duration)
	return wire
}
