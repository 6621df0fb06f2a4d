// SPDX-License-Identifier: MPL-2.0
// Copyright (C) 2024 Emir Aganovic

package media

import (
	"context"

	"github.com/looplab/fsm"
)

// DTMF event states driving the redundancy-aware dedupe in
// RFC 4733 senders repeat the start packet several times and the end
// packet three times for loss resilience; a naive reader would fire
// one notification per packet instead of one per keypress.
const (
	dtmfIdle     = "idle"
	dtmfEmitting = "emitting"
	dtmfEnded    = "ended"
)

// dtmfDedupe wraps a looplab/fsm state machine that collapses a
// stream of redundant RFC 4733 events into exactly one ControlSink
// notification per digit.
type dtmfDedupe struct {
	machine   *fsm.FSM
	digit     rune
	duration  uint16
	sink      ControlSink
	id        string
	notifyMsg string
}

// newDTMFDedupe builds a dedupe tagged id, reporting to sink. notifyMsg
// is the Config.NotifyMsg template used to build each notification's
// Target.
func newDTMFDedupe(id, notifyMsg string, sink ControlSink) *dtmfDedupe {
	d := &dtmfDedupe{sink: sink, id: id, notifyMsg: notifyMsg}
	d.machine = fsm.NewFSM(
		dtmfIdle,
		fsm.Events{
			{Name: "start", Src: []string{dtmfIdle, dtmfEnded}, Dst: dtmfEmitting},
			{Name: "repeat", Src: []string{dtmfEmitting}, Dst: dtmfEmitting},
			{Name: "end", Src: []string{dtmfEmitting}, Dst: dtmfEnded},
			{Name: "silence", Src: []string{dtmfEnded, dtmfIdle}, Dst: dtmfIdle},
		},
		fsm.Callbacks{
			"enter_" + dtmfEmitting: func(ctx context.Context, e *fsm.Event) {
				if e.Src == dtmfEmitting {
					return
				}
				if d.sink != nil {
					d.sink.OnDTMF(Notification{
						Kind:     NotifyDTMF,
						ID:       d.id,
						Target:   formatNotifyTarget(d.notifyMsg, d.id),
						Digit:    d.digit,
						Duration: d.duration,
					})
				}
			},
		},
	)
	return d
}

// Feed processes one decoded RFC 4733 event. It notifies the sink
// exactly once per distinct keypress, on the transition into
// dtmfEmitting; repeats and the trailing end-of-event packets are
// absorbed silently.
func (d *dtmfDedupe) Feed(ev DTMFEvent) {
	digit := DTMFToRune(ev.Event)
	d.duration = ev.Duration

	if ev.EndOfEvent {
		if d.machine.Current() == dtmfEmitting {
			d.digit = digit
			_ = d.machine.Event(context.Background(), "end")
		}
		return
	}

	switch d.machine.Current() {
	case dtmfIdle, dtmfEnded:
		d.digit = digit
		_ = d.machine.Event(context.Background(), "start")
	case dtmfEmitting:
		if digit != d.digit {
			// A new digit started before an end event for the
			// previous one was seen; treat it as a fresh keypress.
			_ = d.machine.Event(context.Background(), "end")
			d.digit = digit
			_ = d.machine.Event(context.Background(), "start")
			return
		}
		_ = d.machine.Event(context.Background(), "repeat")
	}
}

// Reset returns the dedupe state machine to idle, e.g. once the
// end-of-event redundancy window has elapsed with no further packets.
func (d *dtmfDedupe) Reset() {
	if d.machine.Current() != dtmfIdle {
		_ = d.machine.Event(context.Background(), "silence")
	}
}
