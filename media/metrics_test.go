// SPDX-License-Identifier: MPL-2.0
// Copyright (C) 2024 Emir Aganovic

package media

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestMetricsRegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	require.NotNil(t, m)

	m.rtpPackets.WithLabelValues("leg-a").Inc()

	families, err := reg.Gather()
	require.NoError(t, err)

	found := false
	for _, f := range families {
		if f.GetName() == "rtp_packets_total" {
			found = true
			require.Len(t, f.Metric, 1)
			require.Equal(t, float64(1), f.Metric[0].GetCounter().GetValue())
		}
	}
	require.True(t, found)
}

func TestMonitorCountsTimeoutMetric(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	sink := &recordingSink{}
	mon := NewMonitor("leg-a", time.Millisecond, false, "", sink)
	mon.SetMetrics(m)

	time.Sleep(5 * time.Millisecond)
	mon.Tick(0)

	require.Len(t, sink.timeouts, 1)

	families, err := reg.Gather()
	require.NoError(t, err)

	var value float64
	for _, f := range families {
		if f.GetName() == "rtp_timeouts_total" {
			value = f.Metric[0].GetCounter().GetValue()
		}
	}
	require.Equal(t, float64(1), value)
}
