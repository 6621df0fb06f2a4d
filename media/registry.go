// SPDX-License-Identifier: MPL-2.0
// Copyright (C) 2024 Emir Aganovic

package media

import (
	"sync"

	"github.com/rs/zerolog"
)

// Registrant is anything a Registry can track and report status for:
// a Transport or a Reflector.
type Registrant interface {
	// Status is a short administrative summary, analogous to what the
	// original engine's rmanager console would print per channel.
	Status() string
}

// Registry is a process-wide-shaped, but instance-owned, map from an
// opaque caller ID to a live Transport or Reflector. Unlike a
// package-level global, it is owned by a Service value so tests and
// independent processes never share state.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Registrant
}

func newRegistry() *Registry {
	return &Registry{entries: make(map[string]Registrant)}
}

func (r *Registry) put(id string, v Registrant) {
	r.mu.Lock()
	r.entries[id] = v
	r.mu.Unlock()
}

func (r *Registry) remove(id string) {
	r.mu.Lock()
	delete(r.entries, id)
	r.mu.Unlock()
}

// Snapshot returns a read-only copy suitable for administrative
// listing.
func (r *Registry) Snapshot() map[string]Registrant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Registrant, len(r.entries))
	for k, v := range r.entries {
		out[k] = v
	}
	return out
}

// Lookup returns the Registrant for id, if any.
func (r *Registry) Lookup(id string) (Registrant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.entries[id]
	return v, ok
}

// Service is the owning root for every Transport, Group, Session and
// Reflector a caller creates. Close stops every Group it started and
// closes the sockets of every Transport it built that is still
// registered.
type Service struct {
	Registry *Registry
	Metrics  *Metrics

	mu     sync.Mutex
	groups []*Group
}

// NewService constructs a Service. metrics may be nil, which disables
// metrics export entirely.
func NewService(metrics *Metrics) *Service {
	return &Service{
		Registry: newRegistry(),
		Metrics:  metrics,
	}
}

// NewGroup creates a Group owned by this Service so Close can tear it
// down later.
func (s *Service) NewGroup(sleep func() (minSleep, defSleep int)) *Group {
	g := newGroup(sleep)
	s.mu.Lock()
	s.groups = append(s.groups, g)
	s.mu.Unlock()
	return g
}

// NewTransport builds a Transport and registers it under id, so
// administrative status reports (Registry.Snapshot) and the hangup
// path (Registry.Lookup) can find it for as long as it stays open.
func (s *Service) NewTransport(id string, kind TransportKind, cfg Config, logger zerolog.Logger) (*Transport, error) {
	t, err := NewTransport(kind, cfg, logger)
	if err != nil {
		return nil, err
	}
	t.SetMetrics(s.Metrics, id)
	s.Registry.put(id, t)
	return t, nil
}

// CloseTransport unregisters and closes a Transport previously built
// with NewTransport.
func (s *Service) CloseTransport(id string, t *Transport) error {
	s.Registry.remove(id)
	return t.Close()
}

// NewSession builds a Session the same as the package-level
// NewSession, additionally registering it under id.
func (s *Service) NewSession(id string, t *Transport, codec Codec, dtmfPT uint8, consumer Consumer, sink ControlSink, logger zerolog.Logger) *Session {
	sess := NewSession(id, t, codec, dtmfPT, consumer, sink, logger)
	s.Registry.put(id, sess)
	return sess
}

// RemoveSession unregisters a Session built with Service.NewSession.
// The caller is still responsible for tearing down its Transport and
// Group membership.
func (s *Service) RemoveSession(id string) {
	s.Registry.remove(id)
}

// NewReflector builds a Reflector the same as the package-level
// NewReflector, registering it under the idA/idB pair key used by its
// Status and drop reporting.
func (s *Service) NewReflector(idA string, a *Transport, idB string, b *Transport, sink ControlSink) *Reflector {
	r := NewReflector(idA, a, idB, b, sink)
	s.Registry.put(idA+"/"+idB, r)
	return r
}

// RemoveReflector unregisters a Reflector built with
// Service.NewReflector.
func (s *Service) RemoveReflector(idA, idB string) {
	s.Registry.remove(idA + "/" + idB)
}

// Close stops every Group this Service ever created and closes every
// Transport still registered with it. It is idempotent.
func (s *Service) Close() {
	s.mu.Lock()
	groups := s.groups
	s.groups = nil
	s.mu.Unlock()

	for _, g := range groups {
		g.Stop()
	}
	for _, v := range s.Registry.Snapshot() {
		if t, ok := v.(*Transport); ok {
			_ = t.Close()
		}
	}
}
