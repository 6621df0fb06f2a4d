// SPDX-License-Identifier: MPL-2.0
// Copyright (C) 2024 Emir Aganovic

package media

import (
	"fmt"
	"net"
	"sync"
)

// LegStats is a point-in-time snapshot of one Reflector leg's traffic
// counters, captured by Hangup onto a caller-supplied record before
// that leg's identity is discarded.
type LegStats struct {
	RTPPackets  int64
	RTCPPackets int64
	RTPBytes    int64
	LastPT      int32
}

// Reflector pairs two Transports back-to-back with no Session in
// between: every accepted datagram on one leg is forwarded verbatim
// to the other. This is the back-to-back media relay used when this
// engine needs to bridge two call legs without decoding audio itself,
// operating at the RTP-datagram level rather than on decoded audio.
type Reflector struct {
	idA, idB  string
	idBKnown  bool
	notifyMsg string
	a, b      *Transport
	monA      *Monitor
	monB      *Monitor
	sink      ControlSink

	legA *relayStage
	legB *relayStage

	metrics *Metrics

	mu      sync.Mutex
	dropped bool
}

// NewReflector cross-wires a and b so each one's accepted inbound
// datagrams are sent out the other, and creates a Monitor on each leg
// (run once Start joins the legs to a Group). Either side timing out
// marks the pair dropped and reports it through sink; the Transports
// are not closed and keep forwarding. Metrics are
// taken from whichever of a or b has one set via SetMetrics (a takes
// priority). idB may be empty if the B leg's identity is not yet
// known -- a call using early-media or unreliable provisional
// responses learns it later through SetPeerID.
func NewReflector(idA string, a *Transport, idB string, b *Transport, sink ControlSink) *Reflector {
	metrics := a.metrics
	if metrics == nil {
		metrics = b.metrics
	}
	notifyMsg := a.cfg.NotifyMsg
	if notifyMsg == "" {
		notifyMsg = b.cfg.NotifyMsg
	}
	r := &Reflector{
		idA: idA, idB: idB, idBKnown: idB != "",
		notifyMsg: notifyMsg,
		a:         a, b: b, sink: sink, metrics: metrics,
	}

	r.monA = NewMonitor(idA, a.cfg.Timeout, a.cfg.WarnLater, a.cfg.NotifyMsg, r)
	r.monB = NewMonitor(idB, b.cfg.Timeout, b.cfg.WarnLater, b.cfg.NotifyMsg, r)
	r.monA.SetMetrics(metrics)
	r.monB.SetMetrics(metrics)

	r.legA = &relayStage{to: b, mon: r.monA}
	r.legB = &relayStage{to: a, mon: r.monB}

	a.SetNextStage(r.legA)
	b.SetNextStage(r.legB)

	return r
}

// SetPeerID records the B leg's identity once its peer-answer event
// arrives. If idB was already known and the answer names a different
// id, this is an asymmetric mismatch: the pair is marked dropped and
// the mismatch is reported through the sink rather than silently
// overwriting the latched identity, and false is returned.
func (r *Reflector) SetPeerID(idB string) bool {
	r.mu.Lock()
	if r.idBKnown && r.idB != idB {
		r.dropped = true
		r.mu.Unlock()
		if r.sink != nil {
			r.sink.OnReflectorDropped(Notification{
				Kind:   NotifyReflectorDropped,
				ID:     r.idA + "/" + r.idB,
				Target: formatNotifyTarget(r.notifyMsg, r.idA+"/"+r.idB),
				Leg:    idB,
			})
		}
		return false
	}
	r.idB = idB
	r.idBKnown = true
	r.monB.id = idB
	r.mu.Unlock()
	return true
}

// Hangup tears down whichever leg is tagged id: it snapshots that
// leg's Monitor counters into out (if non-nil) and clears its
// identity, so a caller can fold final stats into its own
// call-detail record before discarding the leg's Transport. Reports
// false if id matches neither leg.
func (r *Reflector) Hangup(id string, out *LegStats) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case id != "" && id == r.idA:
		snapshotLeg(r.monA, out)
		r.idA = ""
		return true
	case id != "" && r.idBKnown && id == r.idB:
		snapshotLeg(r.monB, out)
		r.idB = ""
		r.idBKnown = false
		return true
	default:
		return false
	}
}

func snapshotLeg(m *Monitor, out *LegStats) {
	if out == nil {
		return
	}
	rtpPackets, rtcpPackets, rtpBytes, lastPT := m.Snapshot()
	out.RTPPackets, out.RTCPPackets, out.RTPBytes, out.LastPT = rtpPackets, rtcpPackets, rtpBytes, lastPT
}

// relayStage is the Processor a Transport's inbound packets are
// delivered to when it is one leg of a Reflector: forward to the
// peer leg and record liveness on this leg's Monitor.
type relayStage struct {
	to  *Transport
	mon *Monitor
}

func (r *relayStage) OnRTP(payload []byte, addr *net.UDPAddr) bool {
	r.mon.OnRTP(payload, addr)
	return r.to.SendRTP(payload) == nil
}

func (r *relayStage) OnRTCP(payload []byte, addr *net.UDPAddr) bool {
	r.mon.OnRTCP(payload, addr)
	return r.to.SendRTCP(payload) == nil
}

func (r *relayStage) Tick(now int64) {
	r.mon.Tick(now)
}

func (r *relayStage) AttachGroup(g *Group) {
	r.mon.AttachGroup(g)
}

// Start joins both legs' Monitors into g so timeout detection runs.
func (r *Reflector) Start(g *Group) {
	g.Join(r.legA)
	g.Join(r.legB)
}

// Stop removes both legs from whatever Group they were joined to.
func (r *Reflector) Stop(g *Group) {
	g.Part(r.legA)
	g.Part(r.legB)
}

// OnTimeout implements ControlSink for the two internal Monitors:
// either leg going idle drops the whole pair.
func (r *Reflector) OnTimeout(n Notification) {
	r.mu.Lock()
	if r.dropped {
		r.mu.Unlock()
		return
	}
	r.dropped = true
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.reflectorDrops.WithLabelValues(r.idA + "/" + r.idB).Inc()
	}

	if r.sink != nil {
		id := r.idA + "/" + r.idB
		r.sink.OnReflectorDropped(Notification{
			Kind:   NotifyReflectorDropped,
			ID:     id,
			Target: formatNotifyTarget(r.notifyMsg, id),
			Leg:    n.ID,
		})
	}
}

func (r *Reflector) OnDTMF(Notification)             {}
func (r *Reflector) OnWrongSource(Notification)       {}
func (r *Reflector) OnReflectorDropped(Notification) {}

// Status implements Registrant.
func (r *Reflector) Status() string {
	r.mu.Lock()
	dropped := r.dropped
	r.mu.Unlock()
	return fmt.Sprintf("reflector %s<->%s dropped=%v", r.idA, r.idB, dropped)
}
