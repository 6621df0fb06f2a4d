// SPDX-License-Identifier: MPL-2.0
// Copyright (C) 2024 Emir Aganovic

package media

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	dtmf      []rune
	timeouts  []Notification
	wrongSrc  []Notification
	reflDrops []Notification
}

func (s *recordingSink) OnDTMF(n Notification)             { s.dtmf = append(s.dtmf, n.Digit) }
func (s *recordingSink) OnTimeout(n Notification)           { s.timeouts = append(s.timeouts, n) }
func (s *recordingSink) OnWrongSource(n Notification)       { s.wrongSrc = append(s.wrongSrc, n) }
func (s *recordingSink) OnReflectorDropped(n Notification) { s.reflDrops = append(s.reflDrops, n) }

func TestDTMFDedupeCollapsesRedundantEvents(t *testing.T) {
	sink := &recordingSink{}
	d := newDTMFDedupe("leg-a", "", sink)

	for _, ev := range RTPDTMFEncode('5', 8000) {
		d.Feed(ev)
	}

	require.Len(t, sink.dtmf, 1)
	assert.Equal(t, '5', sink.dtmf[0])
}

func TestDTMFDedupeHandlesBackToBackDigits(t *testing.T) {
	sink := &recordingSink{}
	d := newDTMFDedupe("leg-a", "", sink)

	for _, ev := range RTPDTMFEncode('1', 8000) {
		d.Feed(ev)
	}
	d.Reset()
	for _, ev := range RTPDTMFEncode('2', 8000) {
		d.Feed(ev)
	}

	require.Len(t, sink.dtmf, 2)
	assert.Equal(t, []rune{'1', '2'}, sink.dtmf)
}
