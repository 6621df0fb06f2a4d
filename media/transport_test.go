// SPDX-License-Identifier: MPL-2.0
// Copyright (C) 2024 Emir Aganovic

package media

import (
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	c := DefaultConfig()
	c.MinPort = 26000
	c.MaxPort = 26998
	return c
}

func TestNewTransportBindsEvenOddPair(t *testing.T) {
	tr, err := NewTransport(TransportRTP, testConfig(), zerolog.Nop())
	require.NoError(t, err)
	defer tr.Close()

	require.NotNil(t, tr.LocalAddr())
	require.NotNil(t, tr.LocalRTCPAddr())

	if tr.LocalAddr().Port%2 != 0 {
		t.Fatalf("expected even RTP port, got %d", tr.LocalAddr().Port)
	}
	if tr.LocalRTCPAddr().Port != tr.LocalAddr().Port+1 {
		t.Fatalf("expected RTCP port to be RTP+1, got rtp=%d rtcp=%d", tr.LocalAddr().Port, tr.LocalRTCPAddr().Port)
	}
}

// TestBindLocalSwapsOddRTPPort exercises the scenario where the first
// bind attempt lands on an odd port: BindLocal must keep that socket
// as RTCP and rebind RTP one port down, rather than discarding it and
// retrying from scratch.
func TestBindLocalSwapsOddRTPPort(t *testing.T) {
	c := testConfig()
	tr, err := NewTransport(TransportRTP, c, zerolog.Nop())
	require.NoError(t, err)
	defer tr.Close()
	tr.rtpConn.Close()
	tr.rtcpConn.Close()

	probe, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	require.NoError(t, err)
	odd := probe.LocalAddr().(*net.UDPAddr).Port
	if odd%2 == 0 {
		odd++
	}
	probe.Close()

	swapped, err := tr.BindLocal(&net.UDPAddr{IP: net.IPv4zero, Port: odd}, true)
	require.NoError(t, err)
	require.True(t, swapped)

	require.Equal(t, odd-1, tr.LocalAddr().Port)
	require.Equal(t, odd, tr.LocalRTCPAddr().Port)
}

func TestNewTransportInvalidPortRange(t *testing.T) {
	c := testConfig()
	c.MinPort, c.MaxPort = 100, 1
	_, err := NewTransport(TransportRTP, c, zerolog.Nop())
	require.ErrorIs(t, err, ErrInvalidPortRange)
}

func TestTransportLearnsRemoteSource(t *testing.T) {
	c := testConfig()
	c.AutoAddr = true
	tr, err := NewTransport(TransportRTP, c, zerolog.Nop())
	require.NoError(t, err)
	defer tr.Close()

	peer, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer peer.Close()

	next := &recordingProcessor{}
	tr.SetNextStage(next)
	tr.Start()

	pkt := make([]byte, 12)
	pkt[0] = 0x80
	_, err = peer.WriteToUDP(pkt, tr.LocalAddr())
	require.NoError(t, err)

	require.Eventually(t, func() bool { return next.count.Load() > 0 }, time.Second, time.Millisecond)

	remote := tr.RemoteAddr()
	require.NotNil(t, remote)
	assertEqualAddr(t, peer.LocalAddr().(*net.UDPAddr), remote)
}

func TestTransportRejectsShortAndBadVersion(t *testing.T) {
	c := testConfig()
	tr, err := NewTransport(TransportRTP, c, zerolog.Nop())
	require.NoError(t, err)
	defer tr.Close()

	peer, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer peer.Close()

	next := &recordingProcessor{}
	tr.SetNextStage(next)
	tr.Start()

	short := make([]byte, 4)
	_, err = peer.WriteToUDP(short, tr.LocalAddr())
	require.NoError(t, err)

	badVersion := make([]byte, 12)
	badVersion[0] = 0x00
	_, err = peer.WriteToUDP(badVersion, tr.LocalAddr())
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	require.Equal(t, int64(0), next.count.Load())
}

func assertEqualAddr(t *testing.T, a, b *net.UDPAddr) {
	t.Helper()
	if !a.IP.Equal(b.IP) || a.Port != b.Port {
		t.Fatalf("addr mismatch: %s != %s", a, b)
	}
}

type recordingProcessor struct {
	count atomic.Int64
}

func (r *recordingProcessor) Tick(now int64) {}
func (r *recordingProcessor) OnRTP(payload []byte, addr *net.UDPAddr) bool {
	r.count.Add(1)
	return true
}
func (r *recordingProcessor) OnRTCP(payload []byte, addr *net.UDPAddr) bool { return true }
func (r *recordingProcessor) AttachGroup(g *Group)                         {}
