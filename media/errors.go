// SPDX-License-Identifier: MPL-2.0
// Copyright (C) 2024 Emir Aganovic

package media

import "errors"

// Configuration / construction errors. These fail the constructor
// call outright; no side effects persist.
var (
	ErrInvalidPortRange = errors.New("media: invalid port range")
	ErrNoRemote         = errors.New("media: remote address not set")
	ErrPortsTaken       = errors.New("media: no available ports in range")
	ErrUnsupportedKind  = errors.New("media: unsupported transport kind")
)

// Protocol-level drop reasons. These never
// propagate as Go errors out of the hot Tick path -- they only
// increment counters -- but are named here so tests and logs share one
// vocabulary.
type dropReason string

const (
	dropShort        dropReason = "short_packet"
	dropVersion      dropReason = "bad_version"
	dropNoRemote     dropReason = "no_remote"
	dropWrongSource  dropReason = "wrong_source"
	dropCrypto       dropReason = "crypto_auth"
	dropWrongSSRC    dropReason = "wrong_ssrc"
	dropSeqBad       dropReason = "bad_sequence"
	dropSeqDuplicate dropReason = "duplicate_sequence"
	dropRTCPParse    dropReason = "rtcp_parse_error"
	dropDTMFShort    dropReason = "dtmf_short_payload"
)

// ErrSecureUnsupported is returned by SecureContext construction when
// the configured CipherProvider cannot serve the requested suite.
var ErrSecureUnsupported = errors.New("media: unsupported SRTP suite")

// ErrSecureAuth marks a failed decrypt/authentication on receive. It is
// never returned to a remote peer nor distinguishable by timing from a
// length mismatch; it exists purely so internal
// callers/tests can assert the drop reason.
var ErrSecureAuth = errors.New("media: srtp authentication failed")
