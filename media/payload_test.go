// SPDX-License-Identifier: MPL-2.0
// Copyright (C) 2024 Emir Aganovic

package media

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodecSampleTimestamp(t *testing.T) {
	assert.Equal(t, uint32(160), CodecAudioUlaw.SampleTimestamp())
	assert.Equal(t, uint32(160), CodecAudioAlaw.SampleTimestamp())
}

func TestPayloadTypeByName(t *testing.T) {
	pt, ok := PayloadTypeByName("alaw")
	require.True(t, ok)
	assert.Equal(t, uint8(8), pt)

	_, ok = PayloadTypeByName("opus")
	assert.False(t, ok)
}

func TestIsKnownName(t *testing.T) {
	assert.True(t, IsKnownName("mulaw"))
	assert.True(t, IsKnownName("g722"))
	assert.False(t, IsKnownName("bogus"))
}

func TestCodecFromPayloadType(t *testing.T) {
	c := CodecFromPayloadType(0)
	assert.Equal(t, uint8(0), c.PayloadType)
	assert.Equal(t, uint32(8000), c.SampleRate)
	assert.Equal(t, 20*time.Millisecond, c.SampleDur)
}
