// SPDX-License-Identifier: MPL-2.0
// Copyright (C) 2024 Emir Aganovic

package media

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/rs/zerolog"
)

// Session is the RTP/RTCP state machine: it sits behind a Transport,
// frames outbound samples pulled from a Source
// into RTP packets and hands inbound, de-jittered, DTMF-stripped
// samples to a Consumer. It never binds sockets itself -- that is the
// Transport's job -- and never interprets NAT/auto-remote, which is
// also the Transport's job.
type Session struct {
	id string
	t  *Transport
	m  *Monitor

	cfg    Config
	codec  Codec
	dtmfPT uint8

	sink ControlSink

	mu sync.Mutex

	// send side
	seq       RTPExtendedSequenceNumber
	ssrc      uint32
	timestamp uint32

	// receive side
	recvSeq        RTPExtendedSequenceNumber
	recvSeqInit    bool
	firstExtended  uint64
	peerSSRC       uint32
	peerSSRCKnown  bool
	resyncPending  bool
	silencePT      atomic.Int32
	jitter         *jitterBuffer
	dtmf           *dtmfDedupe
	secure         *SecureContext

	// RTCP accounting
	packetCount atomic.Uint32
	octetCount  atomic.Uint32
	recvCount   atomic.Uint32

	expectedPrior  uint32
	receivedPrior  uint32

	rtcpInterval int64 // milliseconds, group-relative
	lastRTCPSent atomic.Int64

	ownLastSRCompact  atomic.Uint32
	ownLastSRSentAt   atomic.Int64 // unix nano
	peerLastSRCompact atomic.Uint32
	peerLastSRRecvAt  atomic.Int64 // unix nano
	lastRTT           atomic.Int64 // nanoseconds, 0 if never computed

	src      Source
	consumer Consumer

	logger zerolog.Logger
}

// NewSession builds a Session bound to transport t, framing codec and
// forwarding decoded samples to consumer and DTMF/timeout events to
// sink (wrong-source reports come from the Transport; see
// Transport.SetControlSink). dtmfPT is the negotiated telephone-event payload
// type (0 disables DTMF handling). Call t.SetMetrics before NewSession
// if Monitor timeouts should be counted; the Metrics pointer is
// captured once, at construction.
func NewSession(id string, t *Transport, codec Codec, dtmfPT uint8, consumer Consumer, sink ControlSink, logger zerolog.Logger) *Session {
	s := &Session{
		id:       id,
		t:        t,
		cfg:      t.cfg,
		codec:    codec,
		dtmfPT:   dtmfPT,
		sink:     sink,
		consumer: consumer,
		jitter:   newJitterBuffer(5),
		logger:   logger,
	}
	s.seq = NewRTPSequencer()
	s.ssrc = randomSSRC()
	s.silencePT.Store(-1)

	if dtmfPT != 0 {
		s.dtmf = newDTMFDedupe(id, t.cfg.NotifyMsg, sink)
	}

	s.m = NewMonitor(id, t.cfg.Timeout, t.cfg.WarnLater, t.cfg.NotifyMsg, sink)
	s.m.SetMetrics(t.metrics)

	interval := t.cfg.RTCPInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	s.rtcpInterval = interval.Milliseconds()

	t.SetNextStage(s)

	return s
}

func randomSSRC() uint32 {
	seq := NewRTPSequencer()
	return uint32(seq.ReadExtendedSeq())<<16 | uint32(seq.NextSeqNumber())
}

// SetSource wires the media producer for the send side. Nil disables
// sending.
func (s *Session) SetSource(src Source) {
	s.mu.Lock()
	s.src = src
	s.mu.Unlock()
}

// SetSecure enables SRTP protect/unprotect on this Session's packets.
// Pass nil to send/receive in the clear.
func (s *Session) SetSecure(sc *SecureContext) {
	s.mu.Lock()
	s.secure = sc
	s.mu.Unlock()
}

// Tick is called once per Group iteration: it checks liveness, drains
// any jitter-buffered frames whose presentation time has arrived to
// the Consumer, and, if a Source is set, makes one Read of up to
// Config.Buffer bytes and sends what it returns as one outbound RTP
// packet, advancing the RTP timestamp by one Codec.SampleDur. A Read
// returning no bytes sends nothing. DTMF is driven inline from
// OnRTP; RTCP timing is driven from here alongside the audio cadence.
func (s *Session) Tick(now int64) {
	s.m.Tick(now)
	s.drainJitter()

	if s.cfg.RTCP {
		last := s.lastRTCPSent.Load()
		if last == 0 || now-last >= s.rtcpInterval {
			if s.lastRTCPSent.CompareAndSwap(last, now) {
				if err := s.sendRTCPReport(); err != nil {
					s.logger.Debug().Err(err).Msg("send rtcp report failed")
				}
			}
		}
	}

	s.mu.Lock()
	src := s.src
	s.mu.Unlock()
	if src == nil {
		return
	}

	buf := make([]byte, s.cfg.Buffer)
	n, err := src.Read(buf)
	if err != nil || n == 0 {
		return
	}

	if err := s.sendAudio(buf[:n]); err != nil {
		s.logger.Debug().Err(err).Msg("send audio failed")
	}
}

// sendRTCPReport emits a compound Sender Report, paired with a
// Reception Report block once a peer SSRC is known. The LSR/DLSR
// fields let the peer compute round-trip time the same way calcRTT
// below resolves it for reports we receive.
func (s *Session) sendRTCPReport() error {
	s.mu.Lock()
	ssrc := s.ssrc
	rtpTime := s.timestamp
	packetCount := s.packetCount.Load()
	octetCount := s.octetCount.Load()
	s.mu.Unlock()

	ntp := GetCurrentNTPTimestamp()
	s.ownLastSRCompact.Store(uint32(ntp >> 16))
	s.ownLastSRSentAt.Store(time.Now().UnixNano())

	sr := &rtcp.SenderReport{
		SSRC:        ssrc,
		NTPTime:     ntp,
		RTPTime:     rtpTime,
		PacketCount: packetCount,
		OctetCount:  octetCount,
	}

	s.mu.Lock()
	peerKnown := s.peerSSRCKnown
	peerSSRC := s.peerSSRC
	s.mu.Unlock()

	packets := []rtcp.Packet{sr}
	if peerKnown {
		if rr := s.buildReceptionReport(peerSSRC); rr != nil {
			sr.Reports = []rtcp.ReceptionReport{*rr}
		}
	}

	data, err := rtcpMarshal(packets)
	if err != nil {
		return err
	}
	return s.t.SendRTCP(data)
}

// buildReceptionReport computes the standard fraction-lost/cumulative-
// lost fields from the expected-vs-received packet counts observed
// since the previous report, plus LSR/DLSR for RTT if we have heard a
// Sender Report from this peer.
func (s *Session) buildReceptionReport(peerSSRC uint32) *rtcp.ReceptionReport {
	s.mu.Lock()
	extended := s.recvSeq.ReadExtendedSeq()
	first := s.firstExtended
	received := s.recvCount.Load()
	expectedPrior := s.expectedPrior
	receivedPrior := s.receivedPrior
	s.mu.Unlock()

	if extended < first {
		return nil
	}
	expected := uint32(extended-first) + 1

	expectedInterval := expected - expectedPrior
	receivedInterval := received - receivedPrior
	var fraction uint8
	if expectedInterval > 0 && expectedInterval >= receivedInterval {
		lostInterval := expectedInterval - receivedInterval
		fraction = uint8((uint64(lostInterval) << 8) / uint64(expectedInterval))
	}

	s.mu.Lock()
	s.expectedPrior = expected
	s.receivedPrior = received
	s.mu.Unlock()

	var totalLost uint32
	if expected > received {
		totalLost = expected - received
	}

	lsr := s.peerLastSRCompact.Load()
	var dlsr uint32
	if recvAt := s.peerLastSRRecvAt.Load(); recvAt != 0 && lsr != 0 {
		elapsed := time.Since(time.Unix(0, recvAt))
		dlsr = uint32(elapsed.Seconds() * 65536)
	}

	return &rtcp.ReceptionReport{
		SSRC:               peerSSRC,
		FractionLost:       fraction,
		TotalLost:          totalLost,
		LastSequenceNumber: uint32(extended),
		LastSenderReport:   lsr,
		Delay:              dlsr,
	}
}

// calcRTT resolves round-trip time from a Reception Report that
// references a Sender Report we sent (LSR/DLSR), the classic RTCP
// formula: rtt = arrival - dlsr/65536 - lsr_send_time.
func (s *Session) calcRTT(rr rtcp.ReceptionReport, arrival time.Time) (time.Duration, bool) {
	if rr.LastSenderReport == 0 {
		return 0, false
	}
	if rr.LastSenderReport != s.ownLastSRCompact.Load() {
		return 0, false
	}
	sentAt := s.ownLastSRSentAt.Load()
	if sentAt == 0 {
		return 0, false
	}
	dlsr := time.Duration(float64(rr.Delay) / 65536 * float64(time.Second))
	rtt := arrival.Sub(time.Unix(0, sentAt)) - dlsr
	if rtt < 0 {
		rtt = 0
	}
	return rtt, true
}

func (s *Session) sendAudio(payload []byte) error {
	s.mu.Lock()
	header := &rtp.Header{
		Version:        2,
		PayloadType:    s.codec.PayloadType,
		SequenceNumber: s.seq.NextSeqNumber(),
		Timestamp:      s.timestamp,
		SSRC:           s.ssrc,
	}
	s.timestamp += s.codec.SampleTimestamp()
	secure := s.secure
	s.mu.Unlock()

	s.packetCount.Add(1)
	s.octetCount.Add(uint32(len(payload)))

	if secure != nil {
		out, err := secure.ProtectRTP(header, payload)
		if err != nil {
			return err
		}
		return s.t.SendRTP(out)
	}

	pkt := rtp.Packet{Header: *header, Payload: payload}
	out, err := pkt.Marshal()
	if err != nil {
		return err
	}
	return s.t.SendRTP(out)
}

// SendDTMF writes one keypress as a redundant RFC 4733 event train.
// It blocks only long enough to hand each event
// packet to the Transport; it does not pace them in real time itself
// -- a caller driving interactive DTMF should space calls to
// SendDTMF's underlying events at the codec's SampleDur if accurate
// timing matters.
func (s *Session) SendDTMF(digit rune) error {
	if s.dtmfPT == 0 {
		return ErrUnsupportedKind
	}
	events := RTPDTMFEncode(digit, s.dtmfClockRate())
	for _, ev := range events {
		if err := s.sendDTMFEvent(ev); err != nil {
			return err
		}
	}
	return nil
}

// dtmfClockRate returns the RTP clock rate negotiated for dtmfPT.
// Telephone-event is conventionally run at 8000Hz regardless of the
// audio codec's own sample rate, so that is what this core assumes
// absent a signalling layer that negotiates otherwise.
func (s *Session) dtmfClockRate() uint32 {
	return 8000
}

func (s *Session) sendDTMFEvent(ev DTMFEvent) error {
	s.mu.Lock()
	header := &rtp.Header{
		Version:        2,
		PayloadType:    s.dtmfPT,
		SequenceNumber: s.seq.NextSeqNumber(),
		Timestamp:      s.timestamp,
		SSRC:           s.ssrc,
		Marker:         false,
	}
	s.mu.Unlock()

	payload := DTMFEncode(ev)
	pkt := rtp.Packet{Header: *header, Payload: payload}
	out, err := pkt.Marshal()
	if err != nil {
		return err
	}
	return s.t.SendRTP(out)
}

// OnRTP implements Processor: it is called by Transport after
// source-checking, with the raw datagram off the wire.
func (s *Session) OnRTP(payload []byte, addr *net.UDPAddr) bool {
	s.m.OnRTP(payload, addr)

	var pkt rtp.Packet
	raw := make([]byte, len(payload))
	copy(raw, payload)

	s.mu.Lock()
	secure := s.secure
	s.mu.Unlock()

	if secure != nil {
		if err := pkt.Header.Unmarshal(raw); err != nil {
			s.countDrop(dropShort)
			return false
		}
		out, err := secure.UnprotectRTP(raw, &pkt.Header)
		if err != nil {
			s.countDrop(dropCrypto)
			return false
		}
		pkt.Payload = out
	} else {
		if err := RTPUnmarshal(raw, &pkt); err != nil {
			s.countDrop(dropShort)
			return false
		}
	}

	if !s.acceptSSRC(pkt.SSRC) {
		s.countDrop(dropWrongSSRC)
		return false
	}

	if s.dtmfPT != 0 && pkt.PayloadType == s.dtmfPT {
		var ev DTMFEvent
		if err := DTMFDecode(pkt.Payload, &ev); err != nil {
			s.countDrop(dropDTMFShort)
		} else {
			s.dtmf.Feed(ev)
		}
		return true
	}

	s.deliverOrdered(pkt)
	return true
}

// acceptSSRC implements the freeze/resync rule: the receiver's SSRC is
// frozen on first accepted packet, and a later packet whose SSRC
// differs is dropped, unless AnySSRC is configured or Resync has
// armed a pending resync -- in which case this packet's SSRC is
// latched as the new frozen value.
func (s *Session) acceptSSRC(ssrc uint32) bool {
	if s.cfg.AnySSRC {
		return true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.peerSSRCKnown || s.resyncPending {
		s.peerSSRC = ssrc
		s.peerSSRCKnown = true
		s.resyncPending = false
		return true
	}
	return ssrc == s.peerSSRC
}

// Resync arms a one-shot flag that makes the very next inbound
// packet's SSRC authoritative, bypassing the normal freeze. A caller
// uses this when it knows a legitimate source change is coming (e.g.
// a re-INVITE moving the stream to new media) and wants it honoured
// immediately rather than waiting for the old source to go silent.
func (s *Session) Resync() {
	s.mu.Lock()
	s.resyncPending = true
	s.mu.Unlock()
}

func (s *Session) deliverOrdered(pkt rtp.Packet) {
	s.mu.Lock()
	var seqErr error
	if !s.recvSeqInit {
		s.recvSeq.InitSeq(pkt.SequenceNumber)
		s.recvSeqInit = true
		s.firstExtended = s.recvSeq.ReadExtendedSeq()
	} else {
		seqErr = s.recvSeq.UpdateSeq(pkt.SequenceNumber)
	}
	extended := s.recvSeq.ReadExtendedSeq()
	s.recvCount.Add(1)

	if pkt.PayloadType == PayloadTypeSilence {
		s.silencePT.Store(int32(pkt.PayloadType))
	}

	s.jitter.Push(extended, pkt.SequenceNumber, pkt.Timestamp, pkt.PayloadType, pkt.Marker, pkt.Payload)
	s.mu.Unlock()

	if seqErr != nil {
		if reason, ok := seqDropReason(seqErr); ok {
			s.countDrop(reason)
		}
	}
}

// drainJitter releases every frame whose presentation time has
// arrived and hands it to the Consumer. Called from Tick so delivery
// is paced rather than happening synchronously as packets arrive.
// Jitter deadlines are stamped in wall-clock time (unlike Tick's own
// now, which is group-relative), so this reads time.Now() directly
// rather than taking Tick's argument.
func (s *Session) drainJitter() {
	s.mu.Lock()
	ready := s.jitter.Drain(time.Now().UnixNano())
	consumer := s.consumer
	s.mu.Unlock()

	if consumer == nil {
		return
	}
	for _, e := range ready {
		_, _ = consumer.Write(e.payload)
	}
}

func (s *Session) countDrop(reason dropReason) {
	if s.t.metrics != nil {
		s.t.metrics.wrongSource.WithLabelValues(s.id, string(reason)).Inc()
	}
}

// OnRTCP implements Processor: it tracks liveness via Monitor, then
// parses the compound packet for Sender/Reception Reports so RTT and
// peer-SR bookkeeping stay current.
func (s *Session) OnRTCP(payload []byte, addr *net.UDPAddr) bool {
	s.m.OnRTCP(payload, addr)

	now := time.Now()
	packets := make([]rtcp.Packet, 8)
	n, err := RTCPUnmarshal(payload, packets)
	if err != nil {
		s.countDrop(dropRTCPParse)
		return true
	}

	for i := 0; i < n; i++ {
		switch p := packets[i].(type) {
		case *rtcp.SenderReport:
			s.peerLastSRCompact.Store(uint32(p.NTPTime >> 16))
			s.peerLastSRRecvAt.Store(now.UnixNano())
			for _, rr := range p.Reports {
				if rr.SSRC == s.ssrc {
					if rtt, ok := s.calcRTT(rr, now); ok {
						s.lastRTT.Store(int64(rtt))
					}
				}
			}
		case *rtcp.ReceiverReport:
			for _, rr := range p.Reports {
				if rr.SSRC == s.ssrc {
					if rtt, ok := s.calcRTT(rr, now); ok {
						s.lastRTT.Store(int64(rtt))
					}
				}
			}
		}
	}

	return true
}

func (s *Session) AttachGroup(g *Group) {
	s.m.AttachGroup(g)
}

// Status implements Registrant.
func (s *Session) Status() string {
	rtpPackets, rtcpPackets, rtpBytes, lastPT := s.m.Snapshot()
	rtt := time.Duration(s.lastRTT.Load())
	return fmt.Sprintf("session %s rtp=%d rtcp=%d bytes=%d last_pt=%d sent=%d rtt=%s",
		s.id, rtpPackets, rtcpPackets, rtpBytes, lastPT, s.packetCount.Load(), rtt)
}
