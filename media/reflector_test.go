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

func TestReflectorForwardsBetweenLegs(t *testing.T) {
	cfgA := testConfig()
	cfgA.Timeout = 0
	a, err := NewTransport(TransportRTP, cfgA, zerolog.Nop())
	require.NoError(t, err)
	defer a.Close()

	cfgB := testConfig()
	cfgB.Timeout = 0
	b, err := NewTransport(TransportRTP, cfgB, zerolog.Nop())
	require.NoError(t, err)
	defer b.Close()

	sink := &recordingSink{}
	r := NewReflector("a", a, "b", b, sink)

	peerA, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer peerA.Close()
	peerB, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer peerB.Close()

	a.SetRemote(peerA.LocalAddr().(*net.UDPAddr), true)
	b.SetRemote(peerB.LocalAddr().(*net.UDPAddr), true)
	a.Start()
	b.Start()

	g := NewGroup(nil)
	r.Start(g)
	defer g.Stop()

	pkt := make([]byte, 12)
	pkt[0] = 0x80
	_, err = peerA.WriteToUDP(pkt, a.LocalAddr())
	require.NoError(t, err)

	peerB.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 1500)
	n, _, err := peerB.ReadFromUDP(buf)
	require.NoError(t, err)
	require.Equal(t, 12, n)
}

func TestReflectorSetPeerIDLatchesOnceThenFlagsMismatch(t *testing.T) {
	cfgA := testConfig()
	a, err := NewTransport(TransportRTP, cfgA, zerolog.Nop())
	require.NoError(t, err)
	defer a.Close()

	cfgB := testConfig()
	b, err := NewTransport(TransportRTP, cfgB, zerolog.Nop())
	require.NoError(t, err)
	defer b.Close()

	sink := &recordingSink{}
	r := NewReflector("a", a, "", b, sink)

	require.True(t, r.SetPeerID("b-first"))
	require.False(t, r.SetPeerID("b-second"))
	require.Len(t, sink.reflDrops, 1)
	require.Equal(t, "b-second", sink.reflDrops[0].Leg)
}

func TestReflectorHangupSnapshotsLegStats(t *testing.T) {
	cfgA := testConfig()
	a, err := NewTransport(TransportRTP, cfgA, zerolog.Nop())
	require.NoError(t, err)
	defer a.Close()

	cfgB := testConfig()
	b, err := NewTransport(TransportRTP, cfgB, zerolog.Nop())
	require.NoError(t, err)
	defer b.Close()

	sink := &recordingSink{}
	r := NewReflector("a", a, "b", b, sink)

	var stats LegStats
	require.True(t, r.Hangup("a", &stats))
	require.False(t, r.Hangup("a", &stats))
	require.False(t, r.Hangup("nonexistent", &stats))
}

func TestReflectorDropsOnTimeout(t *testing.T) {
	cfgA := testConfig()
	cfgA.Timeout = 20 * time.Millisecond
	a, err := NewTransport(TransportRTP, cfgA, zerolog.Nop())
	require.NoError(t, err)
	defer a.Close()

	cfgB := testConfig()
	cfgB.Timeout = 20 * time.Millisecond
	b, err := NewTransport(TransportRTP, cfgB, zerolog.Nop())
	require.NoError(t, err)
	defer b.Close()

	sink := &recordingSink{}
	r := NewReflector("a", a, "b", b, sink)

	g := NewGroup(func() (int, int) { return 1, 5 })
	r.Start(g)
	defer g.Stop()

	require.Eventually(t, func() bool {
		return len(sink.reflDrops) > 0
	}, time.Second, 5*time.Millisecond)
}
