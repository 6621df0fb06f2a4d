// SPDX-License-Identifier: MPL-2.0
// Copyright (C) 2024 Emir Aganovic

package media

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestJitterBufferInOrder(t *testing.T) {
	j := newJitterBuffer(3)
	j.delay = 0

	j.Push(100, 100, 1600, 0, false, []byte("a"))
	ready := j.Drain(time.Now().UnixNano())
	assert.Len(t, ready, 1)

	j.Push(101, 101, 1760, 0, false, []byte("b"))
	ready = j.Drain(time.Now().UnixNano())
	assert.Len(t, ready, 1)
	assert.Equal(t, []byte("b"), ready[0].payload)
}

func TestJitterBufferReorders(t *testing.T) {
	j := newJitterBuffer(3)
	j.delay = 0

	j.Push(100, 100, 1600, 0, false, []byte("a"))
	ready := j.Drain(time.Now().UnixNano())
	assert.Len(t, ready, 1)

	// 102 arrives before 101.
	j.Push(102, 102, 1920, 0, false, []byte("c"))
	ready = j.Drain(time.Now().UnixNano())
	assert.Len(t, ready, 0)
	assert.Equal(t, 1, j.Len())

	j.Push(101, 101, 1760, 0, false, []byte("b"))
	ready = j.Drain(time.Now().UnixNano())
	assert.Len(t, ready, 2)
	assert.Equal(t, []byte("b"), ready[0].payload)
	assert.Equal(t, []byte("c"), ready[1].payload)
}

func TestJitterBufferSkipsLostPacket(t *testing.T) {
	j := newJitterBuffer(2)
	j.delay = 0

	j.Push(100, 100, 1600, 0, false, []byte("a"))
	_ = j.Drain(time.Now().UnixNano())

	// 101 never arrives; once depth is exceeded delivery unblocks.
	j.Push(102, 102, 1920, 0, false, []byte("c"))
	j.Push(103, 103, 2080, 0, false, []byte("d"))
	j.Push(104, 104, 2240, 0, false, []byte("e"))
	ready := j.Drain(time.Now().UnixNano())

	assert.NotEmpty(t, ready)
}

func TestJitterBufferHoldsUntilDeadline(t *testing.T) {
	j := newJitterBuffer(3)

	j.Push(100, 100, 1600, 0, false, []byte("a"))
	ready := j.Drain(time.Now().UnixNano())
	assert.Empty(t, ready, "presentation deadline has not arrived yet")

	ready = j.Drain(time.Now().Add(j.delay + time.Millisecond).UnixNano())
	assert.Len(t, ready, 1)
}
