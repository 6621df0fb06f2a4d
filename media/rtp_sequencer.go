// SPDX-License-Identifier: MPL-2.0
// Copyright (C) 2024 Emir Aganovic

package media

import (
	"errors"
	"math/rand"
)

// RFC 3550 appendix A.1 recommended bounds for the source-validation
// sequence-number heuristic.
const (
	rtpSeqMaxMisorder uint16 = 100
	rtpSeqMaxDropout  uint16 = 3000
	rtpSeqMax         uint16 = 65535
)

var (
	ErrRTPSequenceBad       = errors.New("media: sequence jumped outside the misorder/dropout window")
	ErrRTPSequenceDuplicate = errors.New("media: duplicate or badly delayed sequence number")
)

// seqDropReason maps an UpdateSeq failure onto the shared drop-reason
// taxonomy so a caller can count it instead of silently discarding it.
func seqDropReason(err error) (dropReason, bool) {
	switch {
	case errors.Is(err, ErrRTPSequenceBad):
		return dropSeqBad, true
	case errors.Is(err, ErrRTPSequenceDuplicate):
		return dropSeqDuplicate, true
	default:
		return "", false
	}
}

// RTPExtendedSequenceNumber tracks one RTP stream's 16-bit sequence
// number and extends it with a wraparound count so callers can compare
// positions across a 65536-wrap without special-casing it. It is not
// safe for concurrent use; callers serialize access with their own
// lock.
type RTPExtendedSequenceNumber struct {
	seqNum   uint16 // highest sequence accepted so far
	wrapped  uint16 // number of times seqNum has wrapped past 65535
	probeSeq uint16 // candidate seq a large jump must repeat before being trusted
}

// NewRTPSequencer returns a sequencer initialized to a random starting
// sequence, as RFC 3550 recommends for a newly created send stream.
func NewRTPSequencer() RTPExtendedSequenceNumber {
	sn := RTPExtendedSequenceNumber{}
	sn.InitSeq(uint16(rand.Uint32()))
	return sn
}

// InitSeq (re)synchronizes the sequencer to seq, discarding any
// wraparound count and pending-jump state accumulated so far.
func (sn *RTPExtendedSequenceNumber) InitSeq(seq uint16) {
	sn.seqNum = seq
	sn.probeSeq = rtpSeqMax
	sn.wrapped = 0
}

// UpdateSeq folds one newly received sequence number into the
// sequencer, per the source-validation algorithm of RFC 3550 appendix
// A.1: a small forward delta (including a wrap) is accepted directly;
// a delta large enough to look like a stream restart is held back
// until a second packet confirms it, guarding against a single stray
// or spoofed packet resetting the stream; anything else is a
// duplicate or a packet too late to reorder.
func (sn *RTPExtendedSequenceNumber) UpdateSeq(seq uint16) error {
	delta := seq - sn.seqNum

	if delta < rtpSeqMaxDropout {
		if seq < sn.seqNum {
			sn.wrapped++
		}
		sn.seqNum = seq
		return nil
	}

	if delta <= rtpSeqMax-rtpSeqMaxMisorder {
		if seq == sn.probeSeq {
			sn.InitSeq(seq)
			return nil
		}
		sn.probeSeq = seq + 1
		return ErrRTPSequenceBad
	}

	return ErrRTPSequenceDuplicate
}

// ReadExtendedSeq returns the 16-bit sequence number widened by the
// observed wraparound count, monotonically increasing for the
// lifetime of the stream.
func (sn *RTPExtendedSequenceNumber) ReadExtendedSeq() uint64 {
	return uint64(sn.seqNum) + (uint64(rtpSeqMax)+1)*uint64(sn.wrapped)
}

// NextSeqNumber advances and returns the next outbound sequence
// number, wrapping at 65535 and counting the wrap the same way
// UpdateSeq does for an inbound stream.
func (sn *RTPExtendedSequenceNumber) NextSeqNumber() uint16 {
	sn.seqNum++
	if sn.seqNum == 0 {
		sn.wrapped++
	}
	return sn.seqNum
}
