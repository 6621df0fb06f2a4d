// SPDX-License-Identifier: MPL-2.0
// Copyright (C) 2024 Emir Aganovic

package media

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles the Prometheus collectors this core exports.
// Collectors are created once and registered
// against a caller-supplied Registerer, so tests and callers that
// don't care about metrics can pass prometheus.NewRegistry() or skip
// NewMetrics entirely (a nil *Metrics disables collection, checked at
// each call site rather than inside a no-op collector).
type Metrics struct {
	rtpPackets      *prometheus.CounterVec
	rtpBytes        *prometheus.CounterVec
	wrongSource     *prometheus.CounterVec
	timeouts        *prometheus.CounterVec
	reflectorDrops  *prometheus.CounterVec
}

// NewMetrics registers the collectors against reg and returns the
// bundle. reg must not be nil; pass a fresh prometheus.NewRegistry()
// in tests, or the caller's own global registerer in production.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		rtpPackets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rtp_packets_total",
			Help: "RTP packets accepted per transport.",
		}, []string{"transport"}),
		rtpBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rtp_bytes_total",
			Help: "RTP payload bytes accepted per transport.",
		}, []string{"transport"}),
		wrongSource: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rtp_dropped_total",
			Help: "Datagrams dropped before delivery, by reason.",
		}, []string{"transport", "reason"}),
		timeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rtp_timeouts_total",
			Help: "Media timeout notifications raised per transport.",
		}, []string{"transport"}),
		reflectorDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reflector_drops_total",
			Help: "Reflector pairs torn down due to one leg timing out.",
		}, []string{"reflector"}),
	}

	reg.MustRegister(
		m.rtpPackets,
		m.rtpBytes,
		m.wrongSource,
		m.timeouts,
		m.reflectorDrops,
	)

	return m
}
