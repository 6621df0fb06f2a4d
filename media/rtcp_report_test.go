// SPDX-License-Identifier: MPL-2.0
// Copyright (C) 2024 Emir Aganovic

package media

import (
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestSessionSenderReportRoundTrip(t *testing.T) {
	cfgA := testConfig()
	trA, err := NewTransport(TransportRTP, cfgA, zerolog.Nop())
	require.NoError(t, err)
	defer trA.Close()

	cfgB := testConfig()
	trB, err := NewTransport(TransportRTP, cfgB, zerolog.Nop())
	require.NoError(t, err)
	defer trB.Close()

	sessA := NewSession("a", trA, CodecAudioUlaw, 101, &byteConsumer{}, &recordingSink{}, zerolog.Nop())
	sessB := NewSession("b", trB, CodecAudioUlaw, 101, &byteConsumer{}, &recordingSink{}, zerolog.Nop())
	_ = sessA

	trA.SetRemote(trB.LocalAddr(), false)
	trB.SetRemote(trA.LocalAddr(), false)

	trA.Start()
	trB.Start()

	// Give B a known peer SSRC/sequence state so its Reception Report
	// block carries real numbers.
	seed := buildRTPPacket(t, 0, 500, 8000, 0xaabbccdd, []byte("x"))
	sessB.OnRTP(seed, trA.LocalAddr())

	require.NoError(t, sessB.sendRTCPReport())

	require.Eventually(t, func() bool {
		return sessA.peerLastSRCompact.Load() != 0
	}, time.Second, time.Millisecond)

	require.NotZero(t, sessA.peerLastSRRecvAt.Load())
}

func TestBuildReceptionReportTracksLossBetweenReports(t *testing.T) {
	tr, err := NewTransport(TransportRTP, testConfig(), zerolog.Nop())
	require.NoError(t, err)
	defer tr.Close()

	s := NewSession("leg", tr, CodecAudioUlaw, 101, &byteConsumer{}, &recordingSink{}, zerolog.Nop())

	addr := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 5000}
	peerSSRC := uint32(0x1234)

	// Packets 100..104 arrive, 102 is lost.
	for _, seq := range []uint16{100, 101, 103, 104} {
		pkt := buildRTPPacket(t, 0, seq, uint32(seq)*160, peerSSRC, []byte("a"))
		s.OnRTP(pkt, addr)
	}

	rr := s.buildReceptionReport(peerSSRC)
	require.NotNil(t, rr)
	require.Equal(t, peerSSRC, rr.SSRC)
	// expected = 104-100+1 = 5, received = 4, lost = 1
	require.Equal(t, uint32(1), rr.TotalLost)
	require.NotZero(t, rr.FractionLost)

	// A second report with no further loss should report zero fraction
	// for the new interval.
	pkt := buildRTPPacket(t, 0, 105, 105*160, peerSSRC, []byte("a"))
	s.OnRTP(pkt, addr)
	rr2 := s.buildReceptionReport(peerSSRC)
	require.Equal(t, uint8(0), rr2.FractionLost)
}
