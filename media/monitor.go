// SPDX-License-Identifier: MPL-2.0
// Copyright (C) 2024 Emir Aganovic

package media

import (
	"net"
	"sync/atomic"
	"time"
)

// Monitor is a Processor that watches a Transport (or, paired up in a
// Reflector, one leg of it) for liveness and reports a one-shot
// timeout notification through a ControlSink when no packet has
// arrived for Config.Timeout.
//
// It keeps running counters a Session or Reflector can expose for
// administrative status without taking the main Tick path's lock.
type Monitor struct {
	id        string
	timeout   time.Duration
	warnLater bool
	notifyMsg string
	sink      ControlSink

	rtpPackets  atomic.Int64
	rtcpPackets atomic.Int64
	rtpBytes    atomic.Int64

	lastSeenPT atomic.Int32

	firstSeen  time.Time
	startGuess time.Time
	lastSeen   atomic.Int64 // unix nano

	fired     atomic.Bool
	lastFired atomic.Int64 // unix nano of the most recent notification
	group     *Group

	metrics *Metrics
}

// SetMetrics wires a Metrics collector so a fired timeout is counted
// as well as reported through the ControlSink. Optional.
func (m *Monitor) SetMetrics(metrics *Metrics) {
	m.metrics = metrics
}

// NewMonitor constructs a Monitor that reports timeouts tagged id to
// sink. A zero timeout disables the timeout notification entirely.
// When warnLater is set, the timeout notification repeats every
// timeout interval for as long as the transport stays idle, instead of
// firing just once; notifyMsg is the Config.NotifyMsg template used to
// build each notification's Target.
func NewMonitor(id string, timeout time.Duration, warnLater bool, notifyMsg string, sink ControlSink) *Monitor {
	m := &Monitor{id: id, timeout: timeout, warnLater: warnLater, notifyMsg: notifyMsg, sink: sink}
	m.lastSeenPT.Store(-1)
	m.startGuess = time.Now()
	return m
}

func (m *Monitor) OnRTP(payload []byte, addr *net.UDPAddr) bool {
	m.rtpPackets.Add(1)
	m.rtpBytes.Add(int64(len(payload)))
	if len(payload) > 1 {
		m.lastSeenPT.Store(int32(payload[1] & 0x7f))
	}
	m.touch()
	return true
}

func (m *Monitor) OnRTCP(payload []byte, addr *net.UDPAddr) bool {
	m.rtcpPackets.Add(1)
	m.touch()
	return true
}

func (m *Monitor) touch() {
	now := time.Now()
	if m.firstSeen.IsZero() {
		m.firstSeen = now
	}
	m.lastSeen.Store(now.UnixNano())
	m.fired.Store(false)
}

// Tick checks elapsed-since-lastSeen against the configured timeout
// and fires a Timeout notification the first time it is exceeded
// (initial silence before any packet ever arrived is reported the
// same way as a later gap, distinguished by Initial). If warnLater is
// set, it keeps firing again every timeout interval for as long as the
// idle period continues; otherwise the first firing is the last one
// until a packet arrives and resets state.
func (m *Monitor) Tick(now int64) {
	if m.timeout <= 0 || m.sink == nil {
		return
	}

	last := m.lastSeen.Load()
	var idle time.Duration
	initial := last == 0
	if initial {
		idle = time.Since(m.referenceStart())
	} else {
		idle = time.Since(time.Unix(0, last))
	}

	if m.fired.Load() {
		if !m.warnLater {
			return
		}
		if time.Since(time.Unix(0, m.lastFired.Load())) < m.timeout {
			return
		}
	} else if idle < m.timeout {
		return
	}

	m.fired.Store(true)
	m.lastFired.Store(time.Now().UnixNano())
	if m.metrics != nil {
		m.metrics.timeouts.WithLabelValues(m.id).Inc()
	}
	m.sink.OnTimeout(Notification{
		Kind:    NotifyTimeout,
		ID:      m.id,
		Target:  formatNotifyTarget(m.notifyMsg, m.id),
		Initial: initial,
		Idle:    idle,
	})
}

func (m *Monitor) referenceStart() time.Time {
	if m.firstSeen.IsZero() {
		return m.startGuess
	}
	return m.firstSeen
}

// AttachGroup is called when the Monitor joins a Group; it records a
// start reference so a Monitor that never receives a single packet
// still has a meaningful "idle since" baseline for Tick.
func (m *Monitor) AttachGroup(g *Group) {
	m.group = g
	if g != nil && m.firstSeen.IsZero() {
		m.startGuess = time.Now()
	}
}

// Snapshot returns a point-in-time read of the counters, chiefly for
// Status() and tests.
func (m *Monitor) Snapshot() (rtpPackets, rtcpPackets, rtpBytes int64, lastPT int32) {
	return m.rtpPackets.Load(), m.rtcpPackets.Load(), m.rtpBytes.Load(), m.lastSeenPT.Load()
}
