// SPDX-License-Identifier: MPL-2.0
// Copyright (C) 2024 Emir Aganovic

package media

import (
	"sort"
	"time"
)

// jitterEntry is one buffered RTP packet awaiting in-order, time-paced
// delivery.
type jitterEntry struct {
	seq       uint16
	extended  uint64
	timestamp uint32
	payload   []byte
	marker    bool
	pt        uint8
	deadline  int64 // unix nano presentation time
}

// jitterBuffer reorders a short window of inbound RTP packets and
// paces their release to a Consumer, smoothing network jitter and
// correcting small amounts of misordering without introducing
// unbounded delay. It intentionally does not attempt any adaptive
// depth estimation; depth is fixed by the caller (no
// playout-rate/NetEQ-style modelling is in scope).
type jitterBuffer struct {
	depth   int
	delay   time.Duration
	entries []jitterEntry
	nextSeq uint64
	started bool
}

// newJitterBuffer builds a buffer holding up to depth packets before
// forcing delivery, and pacing every packet's release depth*20ms after
// it was enqueued -- one RTP ptime per buffered slot, the same rough
// budget the fixed depth already implies.
func newJitterBuffer(depth int) *jitterBuffer {
	if depth < 1 {
		depth = 1
	}
	return &jitterBuffer{depth: depth, delay: time.Duration(depth) * 20 * time.Millisecond}
}

// Push enqueues one packet in extended-sequence order, stamping its
// presentation deadline. Delivery itself happens later, from Drain.
func (j *jitterBuffer) Push(extended uint64, seq uint16, timestamp uint32, pt uint8, marker bool, payload []byte) {
	if !j.started {
		j.started = true
		j.nextSeq = extended
	}

	if extended < j.nextSeq {
		// Too late, already delivered or superseded; drop.
		return
	}

	j.entries = append(j.entries, jitterEntry{
		seq: seq, extended: extended, timestamp: timestamp,
		pt: pt, marker: marker, payload: payload,
		deadline: time.Now().Add(j.delay).UnixNano(),
	})
	sort.Slice(j.entries, func(a, b int) bool { return j.entries[a].extended < j.entries[b].extended })
}

// Drain releases every packet whose presentation time has arrived: the
// next contiguous packet in sequence once its deadline passes, or,
// once the buffer has grown past depth, the oldest held entry
// regardless of contiguity once its deadline passes -- a packet was
// lost, and waiting longer only adds delay without recovering it.
func (j *jitterBuffer) Drain(now int64) []jitterEntry {
	var ready []jitterEntry
	for len(j.entries) > 0 {
		e := j.entries[0]
		if now < e.deadline {
			break
		}

		if e.extended != j.nextSeq && len(j.entries) <= j.depth {
			break
		}

		j.nextSeq = e.extended
		ready = append(ready, e)
		j.entries = j.entries[1:]
		j.nextSeq++
	}
	return ready
}

// Len reports the number of packets currently held back, for tests.
func (j *jitterBuffer) Len() int { return len(j.entries) }
