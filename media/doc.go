// Package media implements the real-time media transport core of the
// telephony engine: RTP/RTCP transports, the cooperative tick scheduler
// that drives them, the RTP/RTCP session state machine, SRTP, and the
// back-to-back RTP reflector.
//
// Call signalling, SDP negotiation, codec payload processing and secure
// channel key exchange are explicitly out of scope; this package talks
// to those layers only through the Source, Consumer, ControlSink and
// CipherProvider interfaces.
package media
