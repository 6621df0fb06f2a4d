// SPDX-License-Identifier: MPL-2.0
// Copyright (C) 2024 Emir Aganovic

package media

import (
	"sync"
	"time"
)

// Group is the cooperative tick scheduler: one worker goroutine walks
// a membership list and calls Tick on each
// Processor in turn. Membership can change from any goroutine while
// the walk is in progress; a generation counter lets the worker detect
// that without copying the slice on every single iteration.
type Group struct {
	mu         sync.Mutex
	members    []Processor
	generation uint64

	sleep func() (minSleep, defSleep int)

	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func newGroup(sleep func() (minSleep, defSleep int)) *Group {
	if sleep == nil {
		sleep = func() (int, int) { return 1, 5 }
	}
	return &Group{sleep: sleep}
}

// NewGroup constructs a standalone Group not owned by a Service.
// Prefer Service.NewGroup when a Service is available so Close can
// stop it automatically.
func NewGroup(sleep func() (minSleep, defSleep int)) *Group {
	return newGroup(sleep)
}

// Join adds p to the group, starting the worker goroutine if this is
// the first member.
func (g *Group) Join(p Processor) {
	g.mu.Lock()
	g.members = append(g.members, p)
	g.generation++
	start := !g.running
	if start {
		g.running = true
		g.stopCh = make(chan struct{})
		g.doneCh = make(chan struct{})
	}
	g.mu.Unlock()

	p.AttachGroup(g)

	if start {
		go g.run()
	}
}

// Part removes p from the group. The worker exits on its own once it
// observes an empty membership list.
func (g *Group) Part(p Processor) {
	g.mu.Lock()
	for i, m := range g.members {
		if m == p {
			g.members = append(g.members[:i], g.members[i+1:]...)
			g.generation++
			break
		}
	}
	g.mu.Unlock()

	p.AttachGroup(nil)
}

// Stop tears the group down unconditionally, regardless of current
// membership. Safe to call multiple times.
func (g *Group) Stop() {
	g.mu.Lock()
	running := g.running
	stopCh := g.stopCh
	doneCh := g.doneCh
	g.mu.Unlock()

	if !running {
		return
	}
	close(stopCh)
	<-doneCh
}

// Len reports current membership, chiefly for tests.
func (g *Group) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.members)
}

func (g *Group) run() {
	defer func() {
		g.mu.Lock()
		g.running = false
		doneCh := g.doneCh
		g.mu.Unlock()
		close(doneCh)
	}()

	start := time.Now()
	snapshot := g.snapshotMembers()

	for {
		select {
		case <-g.stopCh:
			return
		default:
		}

		gen, members := g.currentGeneration()
		if gen != snapshot.generation {
			snapshot = g.snapshotMembers()
		}
		_ = members

		if len(snapshot.list) == 0 {
			return
		}

		now := time.Since(start).Milliseconds()
		for _, p := range snapshot.list {
			p.Tick(now)
			// Membership changed mid-walk: stop here, the next cycle
			// re-snapshots and starts again from the head.
			if gen, _ := g.currentGeneration(); gen != snapshot.generation {
				break
			}
		}

		minSleep, defSleep := g.sleep()
		d := time.Duration(defSleep) * time.Millisecond
		if m := time.Duration(minSleep) * time.Millisecond; m > d {
			d = m
		}
		if d <= 0 {
			d = time.Millisecond
		}

		select {
		case <-g.stopCh:
			return
		case <-time.After(d):
		}
	}
}

type memberSnapshot struct {
	generation uint64
	list       []Processor
}

func (g *Group) snapshotMembers() memberSnapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	list := make([]Processor, len(g.members))
	copy(list, g.members)
	return memberSnapshot{generation: g.generation, list: list}
}

func (g *Group) currentGeneration() (uint64, int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.generation, len(g.members)
}
