// SPDX-License-Identifier: MPL-2.0
// Copyright (C) 2024 Emir Aganovic

package media

import (
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingProcessor struct {
	ticks atomic.Int64
	group atomic.Pointer[Group]
}

func (c *countingProcessor) Tick(now int64)                                { c.ticks.Add(1) }
func (c *countingProcessor) OnRTP(payload []byte, addr *net.UDPAddr) bool  { return true }
func (c *countingProcessor) OnRTCP(payload []byte, addr *net.UDPAddr) bool { return true }
func (c *countingProcessor) AttachGroup(g *Group)                          { c.group.Store(g) }

func TestGroupStartsOnFirstJoin(t *testing.T) {
	g := NewGroup(func() (int, int) { return 1, 2 })
	p := &countingProcessor{}

	g.Join(p)
	require.Eventually(t, func() bool { return p.ticks.Load() > 0 }, time.Second, time.Millisecond)
	assert.Equal(t, 1, g.Len())
	assert.NotNil(t, p.group.Load())

	g.Stop()
}

func TestGroupExitsWhenEmpty(t *testing.T) {
	g := NewGroup(func() (int, int) { return 1, 2 })
	p := &countingProcessor{}

	g.Join(p)
	g.Part(p)

	assert.Equal(t, 0, g.Len())
	require.Eventually(t, func() bool {
		g.mu.Lock()
		defer g.mu.Unlock()
		return !g.running
	}, time.Second, time.Millisecond)
}

func TestGroupMultipleMembers(t *testing.T) {
	g := NewGroup(func() (int, int) { return 1, 2 })
	a := &countingProcessor{}
	b := &countingProcessor{}

	g.Join(a)
	g.Join(b)

	require.Eventually(t, func() bool {
		return a.ticks.Load() > 2 && b.ticks.Load() > 2
	}, time.Second, time.Millisecond)

	g.Stop()
}
