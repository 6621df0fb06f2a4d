// SPDX-License-Identifier: MPL-2.0
// Copyright (C) 2024 Emir Aganovic

package media

import (
	"testing"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/require"
)

func TestSecureContextRoundTrip(t *testing.T) {
	keyA := make([]byte, 16)
	saltA := make([]byte, 14)
	keyB := make([]byte, 16)
	saltB := make([]byte, 14)
	for i := range keyA {
		keyA[i] = byte(i + 1)
		keyB[i] = byte(i + 100)
	}
	for i := range saltA {
		saltA[i] = byte(i + 50)
		saltB[i] = byte(i + 150)
	}

	scA, err := NewSecureContext(nil, SRTPAes128CmHmacSha1_80, keyA, saltA, keyB, saltB)
	require.NoError(t, err)
	scB, err := NewSecureContext(nil, SRTPAes128CmHmacSha1_80, keyB, saltB, keyA, saltA)
	require.NoError(t, err)

	header := &rtp.Header{
		Version:        2,
		PayloadType:    0,
		SequenceNumber: 1,
		Timestamp:      160,
		SSRC:           0xdeadbeef,
	}
	payload := []byte("twenty bytes of audio!!")

	encrypted, err := scA.ProtectRTP(header, payload)
	require.NoError(t, err)

	recvHeader := &rtp.Header{}
	_, err = recvHeader.Unmarshal(encrypted)
	require.NoError(t, err)

	decrypted, err := scB.UnprotectRTP(encrypted, recvHeader)
	require.NoError(t, err)
	require.Equal(t, payload, decrypted)
}

func TestSecureContextRejectsUnsupportedProfile(t *testing.T) {
	_, err := NewSecureContext(nil, SRTPProfile("bogus"), nil, nil, nil, nil)
	require.ErrorIs(t, err, ErrSecureUnsupported)
}
