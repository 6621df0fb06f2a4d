// SPDX-License-Identifier: MPL-2.0
// Copyright (C) 2024 Emir Aganovic

package media

import (
	"fmt"

	"github.com/pion/rtp"
	"github.com/pion/srtp/v3"
)

// SRTPProfile names an SRTP crypto suite the way signalling (SDES,
// DTLS-SRTP) negotiates it. This core never negotiates a
// suite itself; a caller resolves one out-of-band and passes it in.
type SRTPProfile string

const (
	SRTPAes128CmHmacSha1_80 SRTPProfile = "AES_CM_128_HMAC_SHA1_80"
	SRTPAes256CmHmacSha1_80 SRTPProfile = "AES_CM_256_HMAC_SHA1_80"
	SRTPNullHmacSha1_80     SRTPProfile = "NULL_HMAC_SHA1_80"
)

func (p SRTPProfile) pionProfile() (srtp.ProtectionProfile, bool) {
	switch p {
	case SRTPAes128CmHmacSha1_80:
		return srtp.ProtectionProfileAes128CmHmacSha1_80, true
	case SRTPAes256CmHmacSha1_80:
		return srtp.ProtectionProfileAeadAes256CmHmacSha1_80, true
	case SRTPNullHmacSha1_80:
		return srtp.ProtectionProfileNullHmacSha1_80, true
	default:
		return 0, false
	}
}

// CipherProvider is the single boundary through which this core
// reaches actual cryptographic code. The
// core never implements AES/HMAC itself; it only calls through this
// interface, so a caller can substitute a hardware-backed or
// policy-restricted implementation without touching the rest of the
// package.
type CipherProvider interface {
	// CheckCipher reports whether profile is usable at all in this
	// process (e.g. FIPS mode rejecting NULL ciphers).
	CheckCipher(profile SRTPProfile) bool

	// NewContext builds a send or receive crypto context for one SSRC
	// direction, given the negotiated master key/salt.
	NewContext(profile SRTPProfile, key, salt []byte) (CipherContext, error)
}

// CipherContext performs the actual protect/unprotect operations for
// one direction of one stream.
type CipherContext interface {
	EncryptRTP(dst []byte, header *rtp.Header, payload []byte) ([]byte, error)
	DecryptRTP(dst []byte, encrypted []byte, header *rtp.Header) ([]byte, error)
	EncryptRTCP(dst []byte, decrypted []byte) ([]byte, error)
	DecryptRTCP(dst []byte, encrypted []byte) ([]byte, error)
}

// PionCipherProvider is the default CipherProvider, backed by
// github.com/pion/srtp/v3. It is wired in automatically unless a
// caller supplies its own.
type PionCipherProvider struct{}

func (PionCipherProvider) CheckCipher(profile SRTPProfile) bool {
	_, ok := profile.pionProfile()
	return ok
}

func (PionCipherProvider) NewContext(profile SRTPProfile, key, salt []byte) (CipherContext, error) {
	pp, ok := profile.pionProfile()
	if !ok {
		return nil, ErrSecureUnsupported
	}
	ctx, err := srtp.CreateContext(key, salt, pp)
	if err != nil {
		return nil, fmt.Errorf("media: srtp context: %w", err)
	}
	return pionCipherContext{ctx}, nil
}

type pionCipherContext struct {
	ctx *srtp.Context
}

func (c pionCipherContext) EncryptRTP(dst []byte, header *rtp.Header, payload []byte) ([]byte, error) {
	return c.ctx.EncryptRTP(dst, header, payload)
}

func (c pionCipherContext) DecryptRTP(dst []byte, encrypted []byte, header *rtp.Header) ([]byte, error) {
	out, err := c.ctx.DecryptRTP(dst, encrypted, header)
	if err != nil {
		return nil, ErrSecureAuth
	}
	return out, nil
}

func (c pionCipherContext) EncryptRTCP(dst []byte, decrypted []byte) ([]byte, error) {
	return c.ctx.EncryptRTCP(dst, decrypted, nil)
}

func (c pionCipherContext) DecryptRTCP(dst []byte, encrypted []byte) ([]byte, error) {
	out, err := c.ctx.DecryptRTCP(dst, encrypted, nil)
	if err != nil {
		return nil, ErrSecureAuth
	}
	return out, nil
}

// SecureContext binds a CipherProvider-built pair of send/receive
// crypto contexts to a Transport so encrypt/decrypt happens
// transparently on the hot path.
type SecureContext struct {
	provider CipherProvider
	send     CipherContext
	recv     CipherContext
}

// NewSecureContext resolves profile through provider (PionCipherProvider
// if provider is nil) and builds the send direction from the local
// master key/salt and the receive direction from the remote one.
func NewSecureContext(provider CipherProvider, profile SRTPProfile, localKey, localSalt, remoteKey, remoteSalt []byte) (*SecureContext, error) {
	if provider == nil {
		provider = PionCipherProvider{}
	}
	if !provider.CheckCipher(profile) {
		return nil, ErrSecureUnsupported
	}

	send, err := provider.NewContext(profile, localKey, localSalt)
	if err != nil {
		return nil, err
	}
	recv, err := provider.NewContext(profile, remoteKey, remoteSalt)
	if err != nil {
		return nil, err
	}

	return &SecureContext{provider: provider, send: send, recv: recv}, nil
}

// ProtectRTP encrypts and authenticates an outbound RTP packet.
func (s *SecureContext) ProtectRTP(header *rtp.Header, payload []byte) ([]byte, error) {
	return s.send.EncryptRTP(nil, header, payload)
}

// UnprotectRTP verifies and decrypts an inbound RTP packet. A failed
// authentication is reported as dropCrypto by the caller, never
// propagated to the peer.
func (s *SecureContext) UnprotectRTP(encrypted []byte, header *rtp.Header) ([]byte, error) {
	return s.recv.DecryptRTP(nil, encrypted, header)
}

func (s *SecureContext) ProtectRTCP(decrypted []byte) ([]byte, error) {
	return s.send.EncryptRTCP(nil, decrypted)
}

func (s *SecureContext) UnprotectRTCP(encrypted []byte) ([]byte, error) {
	return s.recv.DecryptRTCP(nil, encrypted)
}
