// SPDX-License-Identifier: MPL-2.0
// Copyright (C) 2024 Emir Aganovic

package media

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()
	assert.Equal(t, 16384, c.MinPort)
	assert.Equal(t, 32768, c.MaxPort)
	assert.True(t, c.AutoAddr)
	assert.True(t, c.RTCP)
}

func TestNewConfigOptions(t *testing.T) {
	c := NewConfig(
		WithPortRange(10000, 10010),
		WithBuffer(320),
		WithAnySSRC(true),
		WithRTCP(false),
		WithDrillHole(true),
		WithTimeout(500*time.Millisecond, true),
		WithTOS(TOSLowDelay),
	)

	assert.Equal(t, 10000, c.MinPort)
	assert.Equal(t, 10010, c.MaxPort)
	assert.Equal(t, 320, c.Buffer)
	assert.True(t, c.AnySSRC)
	assert.False(t, c.RTCP)
	assert.True(t, c.DrillHole)
	assert.Equal(t, 500*time.Millisecond, c.Timeout)
	assert.True(t, c.WarnLater)
	assert.Equal(t, TOSLowDelay, c.TOS)
}

func TestNewConfigClampsSleep(t *testing.T) {
	c := NewConfig(WithGroupSleep(100*time.Millisecond), WithMinSleep(100*time.Millisecond))
	assert.Equal(t, 50*time.Millisecond, c.DefSleep)
	assert.Equal(t, 20*time.Millisecond, c.MinSleep)
}

func TestTOSClassByte(t *testing.T) {
	assert.Equal(t, byte(0x10), TOSLowDelay.tosByte())
	assert.Equal(t, byte(0), TOSNone.tosByte())
}

func TestNewConfigDefaultsRTCPInterval(t *testing.T) {
	c := NewConfig()
	assert.Equal(t, 5*time.Second, c.RTCPInterval)

	c = NewConfig(WithRTCPInterval(2 * time.Second))
	assert.Equal(t, 2*time.Second, c.RTCPInterval)
}
