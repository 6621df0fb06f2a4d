// SPDX-License-Identifier: MPL-2.0
// Copyright (C) 2024 Emir Aganovic

package media

import (
	"net"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// NotifyKind identifies which event a Notification carries.
type NotifyKind int

const (
	NotifyDTMF NotifyKind = iota
	NotifyTimeout
	NotifyWrongSource
	NotifyReflectorDropped
)

// Notification is the single envelope delivered to a ControlSink for
// every event this core can raise. Fields not relevant to Kind are
// left zero.
type Notification struct {
	Kind NotifyKind
	ID   string

	// Target is the address a signalling layer should route this
	// notification to. It is built from Config.NotifyMsg, a template
	// that may contain the literal placeholder "{id}"; with no
	// template configured, Target falls back to ID.
	Target string

	// NotifyDTMF
	Digit    rune
	Duration uint16

	// NotifyTimeout
	Initial bool
	Idle    time.Duration

	// NotifyWrongSource
	From  *net.UDPAddr
	Count int

	// NotifyReflectorDropped
	Leg string
}

// ControlSink is the one external boundary through which this core
// reports events that are not media samples. A caller's
// signalling layer implements it; this package never interprets
// digits or timeouts itself beyond detecting and reporting them.
type ControlSink interface {
	OnDTMF(n Notification)
	OnTimeout(n Notification)
	OnWrongSource(n Notification)
	OnReflectorDropped(n Notification)
}

// NopControlSink discards every notification. Useful as a default
// when a caller only cares about some of the four events.
type NopControlSink struct{}

func (NopControlSink) OnDTMF(Notification)             {}
func (NopControlSink) OnTimeout(Notification)           {}
func (NopControlSink) OnWrongSource(Notification)       {}
func (NopControlSink) OnReflectorDropped(Notification) {}

// formatNotifyTarget builds a Notification.Target from a
// Config.NotifyMsg template and the logical id the notification is
// tagged with. template may contain "{id}"; an empty template means
// no substitution is configured and id itself is used as the target.
func formatNotifyTarget(template, id string) string {
	if template == "" {
		return id
	}
	return strings.ReplaceAll(template, "{id}", id)
}

// wrongSourceCoalescer rate-limits NotifyWrongSource delivery so a
// flood of spoofed or misrouted packets cannot turn into a
// notification storm. Report is called
// from both the RTP and RTCP reader goroutines of a Transport, so
// count is guarded explicitly rather than relying on the limiter's own
// internal locking.
type wrongSourceCoalescer struct {
	mu        sync.Mutex
	sink      ControlSink
	limiter   *rate.Limiter
	count     int
	notifyMsg string
}

// newWrongSourceCoalescer builds a coalescer emitting at most one
// NotifyWrongSource event per every d, with a burst of 1. notifyMsg is
// the Config.NotifyMsg template used to build each event's Target.
func newWrongSourceCoalescer(sink ControlSink, d time.Duration, notifyMsg string) *wrongSourceCoalescer {
	if d <= 0 {
		d = 2 * time.Second
	}
	return &wrongSourceCoalescer{
		sink:      sink,
		limiter:   rate.NewLimiter(rate.Every(d), 1),
		notifyMsg: notifyMsg,
	}
}

// Report records one rejected datagram and, if the limiter allows,
// emits a coalesced notification carrying the count accumulated since
// the last emission.
func (c *wrongSourceCoalescer) Report(id string, from *net.UDPAddr) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.count++
	if c.sink == nil || !c.limiter.Allow() {
		return
	}
	c.sink.OnWrongSource(Notification{
		Kind:   NotifyWrongSource,
		ID:     id,
		Target: formatNotifyTarget(c.notifyMsg, id),
		From:   from,
		Count:  c.count,
	})
	c.count = 0
}
