// SPDX-License-Identifier: MPL-2.0
// Copyright (C) 2024 Emir Aganovic

package media

import (
	"errors"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// TransportKind selects what a Transport carries: plain RTP/RTCP, or
// the FoIP UDPTL bearer.
type TransportKind int

const (
	TransportRTP TransportKind = iota
	TransportUDPTL
)

// drillHolePayload is a drill-hole probe: four zero bytes, enough to open a
// NAT pinhole without being mistaken for a real RTP packet by most
// peers.
var drillHolePayload = []byte{0, 0, 0, 0}

// Transport owns a pair of UDP sockets (RTP on an even port, RTCP on
// the next odd one) or a single UDPTL socket, plus NAT-learning and
// preferred-remote bookkeeping. Its own reader goroutines (readLoop,
// launched by Start) read inbound datagrams off the sockets and hand
// the source-checked ones to the next stage set by SetNextStage. It
// also implements Processor, so it can join a Group or serve as
// another Transport's next stage.
type Transport struct {
	kind TransportKind
	cfg  Config

	rtpConn  *net.UDPConn
	rtcpConn *net.UDPConn

	localAddr     *net.UDPAddr
	localRTCPAddr *net.UDPAddr

	mu              sync.RWMutex
	remoteAddr      *net.UDPAddr
	remoteRTCPAddr  *net.UDPAddr
	preferredRemote *net.UDPAddr
	autoRemote      bool

	group   *Group
	session Processor // next stage: Session, or a peer Transport for a Reflector

	metrics *Metrics
	id      string

	wrongSourceSink *wrongSourceCoalescer
	wrongSource     atomic.Int64

	logger zerolog.Logger

	closed atomic.Bool
}

// NewTransport allocates sockets for kind in the configured port
// range, applying TOS and binding policy. The RTP socket is always
// bound to an even port; when cfg.RTCP is true the companion RTCP
// socket is bound to the very next (odd) port, matching the classic
// RTP/AVP pairing convention.
func NewTransport(kind TransportKind, cfg Config, logger zerolog.Logger) (*Transport, error) {
	if cfg.MinPort <= 0 || cfg.MaxPort <= 0 || cfg.MinPort > cfg.MaxPort {
		return nil, ErrInvalidPortRange
	}

	t := &Transport{
		kind:   kind,
		cfg:    cfg,
		logger: logger,
	}

	ip := net.ParseIP(cfg.LocalIP)
	if ip == nil {
		ip = net.IPv4zero
	}

	switch kind {
	case TransportRTP:
		if err := t.bindRTPPair(ip); err != nil {
			return nil, err
		}
	case TransportUDPTL:
		if err := t.bindSingle(ip); err != nil {
			return nil, err
		}
	default:
		return nil, ErrUnsupportedKind
	}

	t.autoRemote = cfg.AutoAddr
	applyTOS(t.rtpConn, cfg.TOS)
	if t.rtcpConn != nil {
		applyTOS(t.rtcpConn, cfg.TOS)
	}

	return t, nil
}

// bindRTPPair picks a random candidate port in [MinPort, MaxPort) and
// hands it to BindLocal, which bears the actual even/odd swap policy;
// on failure it retries with a new candidate up to 10 times. Unlike
// the single fixed-port case BindLocal documents, the candidate here
// is not pre-rounded to even, so the swap path is a live possibility
// on every attempt rather than something only a caller of BindLocal
// with an explicit odd port can reach.
func (t *Transport) bindRTPPair(ip net.IP) error {
	span := t.cfg.MaxPort - t.cfg.MinPort
	if span < 1 {
		span = 1
	}

	const attempts = 10
	var lastErr error
	for i := 0; i < attempts; i++ {
		port := t.cfg.MinPort + rand.Intn(span)
		if t.cfg.MinPort == t.cfg.MaxPort {
			port = t.cfg.MinPort
		}

		if _, err := t.BindLocal(&net.UDPAddr{IP: ip, Port: port}, t.cfg.RTCP); err != nil {
			lastErr = err
			continue
		}
		return nil
	}

	if lastErr == nil {
		lastErr = ErrPortsTaken
	}
	return fmt.Errorf("%w: %v", ErrPortsTaken, lastErr)
}

// BindLocal binds this Transport's RTP socket (and, if wantRTCP, its
// RTCP companion) starting from addr. If the OS hands back an odd RTP
// port, that socket is kept as the RTCP side instead of being
// discarded, and RTP is rebound one port down -- so a caller handing
// in an arbitrary or OS-assigned port still ends up with the classic
// even-RTP/odd-RTCP pairing. The returned bool reports whether that
// swap happened.
func (t *Transport) BindLocal(addr *net.UDPAddr, wantRTCP bool) (bool, error) {
	ip := addr.IP
	if ip == nil {
		ip = net.IPv4zero
	}

	first, err := net.ListenUDP("udp", &net.UDPAddr{IP: ip, Port: addr.Port})
	if err != nil {
		return false, err
	}
	bound := first.LocalAddr().(*net.UDPAddr)

	if bound.Port%2 == 0 {
		if wantRTCP {
			rtcpConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: ip, Port: bound.Port + 1})
			if err != nil {
				first.Close()
				return false, err
			}
			t.rtcpConn = rtcpConn
			t.localRTCPAddr = rtcpConn.LocalAddr().(*net.UDPAddr)
		}
		t.rtpConn = first
		t.localAddr = bound
		return false, nil
	}

	// Odd RTP port: the socket already bound becomes RTCP, and RTP
	// moves one port down.
	rtpConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: ip, Port: bound.Port - 1})
	if err != nil {
		first.Close()
		return false, err
	}
	t.rtpConn = rtpConn
	t.localAddr = rtpConn.LocalAddr().(*net.UDPAddr)
	if wantRTCP {
		t.rtcpConn = first
		t.localRTCPAddr = bound
	} else {
		first.Close()
	}
	return true, nil
}

func (t *Transport) bindSingle(ip net.IP) error {
	span := t.cfg.MaxPort - t.cfg.MinPort
	if span < 1 {
		span = 1
	}

	const attempts = 10
	var lastErr error
	for i := 0; i < attempts; i++ {
		port := t.cfg.MinPort + rand.Intn(span+1)
		if t.cfg.MinPort == t.cfg.MaxPort {
			port = t.cfg.MinPort
		}
		conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: ip, Port: port})
		if err != nil {
			lastErr = err
			continue
		}
		t.rtpConn = conn
		t.localAddr = conn.LocalAddr().(*net.UDPAddr)
		return nil
	}
	if lastErr == nil {
		lastErr = ErrPortsTaken
	}
	return fmt.Errorf("%w: %v", ErrPortsTaken, lastErr)
}

// SetMetrics wires a Metrics collector and the label value used to
// identify this Transport in exported series. Safe to call once,
// before Start.
func (t *Transport) SetMetrics(m *Metrics, id string) {
	t.metrics = m
	t.id = id
}

// SetControlSink wires a ControlSink so wrong-source rejections are
// coalesced and reported. Optional; with none set, wrong-source
// drops are only visible through Metrics.
func (t *Transport) SetControlSink(sink ControlSink, every time.Duration) {
	t.wrongSourceSink = newWrongSourceCoalescer(sink, every, t.cfg.NotifyMsg)
}

// LocalAddr returns the bound RTP (or UDPTL) local address.
func (t *Transport) LocalAddr() *net.UDPAddr { return t.localAddr }

// LocalRTCPAddr returns the bound RTCP local address, or nil if RTCP
// is disabled.
func (t *Transport) LocalRTCPAddr() *net.UDPAddr { return t.localRTCPAddr }

// SetRemote sets the signalled remote address. If sniff is true, addr
// is recorded as a *preferred* remote: it is authoritative until the
// first inbound packet either confirms it (cleared, one-shot) or,
// with auto-learning also enabled, a packet from elsewhere arrives
// and is learned instead. If sniff is false, addr is trusted
// immediately as the confirmed remote with no pending preference.
func (t *Transport) SetRemote(addr *net.UDPAddr, sniff bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.remoteAddr = addr
	if addr != nil && t.cfg.RTCP {
		rtcpAddr := *addr
		rtcpAddr.Port++
		t.remoteRTCPAddr = &rtcpAddr
	}

	if sniff {
		t.preferredRemote = addr
	} else {
		t.preferredRemote = nil
	}
	t.autoRemote = t.cfg.AutoAddr
}

// RemoteAddr returns the currently effective remote address.
func (t *Transport) RemoteAddr() *net.UDPAddr {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.remoteAddr
}

// DrillHole sends a 4-byte zero probe datagram to the current RTP
// remote and, when an RTCP socket and RTCP remote are set, a second one
// to the RTCP remote, opening NAT pinholes before the first real packet
// is expected. It returns the number of probes sent (1 or 2). With
// Config.DrillHole off it sends nothing and returns 0.
func (t *Transport) DrillHole() (int, error) {
	if !t.cfg.DrillHole {
		return 0, nil
	}
	t.mu.RLock()
	remote, remoteRTCP, rtcpConn := t.remoteAddr, t.remoteRTCPAddr, t.rtcpConn
	t.mu.RUnlock()
	if remote == nil {
		return 0, ErrNoRemote
	}
	if _, err := t.rtpConn.WriteToUDP(drillHolePayload, remote); err != nil {
		return 0, err
	}
	if rtcpConn == nil || remoteRTCP == nil {
		return 1, nil
	}
	if _, err := rtcpConn.WriteToUDP(drillHolePayload, remoteRTCP); err != nil {
		return 1, err
	}
	return 2, nil
}

// SendRTP writes an RTP datagram to the current remote address.
func (t *Transport) SendRTP(payload []byte) error {
	remote := t.RemoteAddr()
	if remote == nil {
		t.countDrop(dropNoRemote)
		return ErrNoRemote
	}
	_, err := t.rtpConn.WriteToUDP(payload, remote)
	return err
}

// SendRTCP writes an RTCP datagram to the current remote RTCP
// address, if RTCP is enabled on this Transport.
func (t *Transport) SendRTCP(payload []byte) error {
	t.mu.RLock()
	conn := t.rtcpConn
	remote := t.remoteRTCPAddr
	t.mu.RUnlock()

	if conn == nil {
		return nil
	}
	if remote == nil {
		t.countDrop(dropNoRemote)
		return ErrNoRemote
	}
	_, err := conn.WriteToUDP(payload, remote)
	return err
}

// minRTPLen and minRTCPLen are the version/short-packet gates applied
// on receive. UDPTL frames have no fixed minimum; 6 bytes is the
// smallest plausible IFP packet.
const (
	minRTPLen  = 12
	minRTCPLen = 8
	minUDPTL   = 6
)

// deliver is called by readLoop with one datagram read off
// rtpConn, applying the source-check / NAT-learn logic before handing
// it to the next stage (session or peer Transport).
func (t *Transport) deliver(buf []byte, from *net.UDPAddr) {
	switch t.kind {
	case TransportRTP:
		if len(buf) < minRTPLen {
			t.countDrop(dropShort)
			return
		}
		if version := buf[0] >> 6; version != 2 {
			t.countDrop(dropVersion)
			return
		}
	case TransportUDPTL:
		if len(buf) < minUDPTL {
			t.countDrop(dropShort)
			return
		}
	}

	if !t.checkSource(from, false) {
		t.countDrop(dropWrongSource)
		t.wrongSource.Add(1)
		if t.wrongSourceSink != nil {
			t.wrongSourceSink.Report(t.id, from)
		}
		return
	}

	if next := t.nextStage(); next != nil {
		next.OnRTP(buf, from)
	}
	if t.metrics != nil {
		t.metrics.rtpPackets.WithLabelValues(t.id).Inc()
		t.metrics.rtpBytes.WithLabelValues(t.id).Add(float64(len(buf)))
	}
}

// deliverRTCP mirrors deliver for the RTCP socket.
func (t *Transport) deliverRTCP(buf []byte, from *net.UDPAddr) {
	if len(buf) < minRTCPLen {
		t.countDrop(dropShort)
		return
	}
	if !t.checkSource(from, true) {
		t.countDrop(dropWrongSource)
		t.wrongSource.Add(1)
		if t.wrongSourceSink != nil {
			t.wrongSourceSink.Report(t.id, from)
		}
		return
	}
	if next := t.nextStage(); next != nil {
		next.OnRTCP(buf, from)
	}
}

// checkSource implements the auto-remote / preferred-remote decision:
// a preferred remote is authoritative until the first packet either
// confirms it (cleared,
// one-shot, never re-armed) or, if auto-learning is also enabled, a
// non-matching packet arrives and the Transport learns from it
// instead. With no preferred remote pending, an auto-remote Transport
// learns on the first packet and re-homes on every subsequent source
// change; otherwise the packet must match the known remote.
//
// isRTCP shifts the comparison by one port: RTCP always rides the port
// right above its RTP companion, so an inbound RTCP datagram is
// expected from remoteAddr.Port+1, not remoteAddr itself, and when one
// is learned it is the RTP base address (port-1) that gets recorded,
// keeping remoteAddr/remoteRTCPAddr derived the same way learnRemote
// always derives them.
func (t *Transport) checkSource(from *net.UDPAddr, isRTCP bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	expected := func(addr *net.UDPAddr) *net.UDPAddr {
		if addr == nil || !isRTCP {
			return addr
		}
		shifted := *addr
		shifted.Port++
		return &shifted
	}
	base := func(addr *net.UDPAddr) *net.UDPAddr {
		if !isRTCP {
			return addr
		}
		shifted := *addr
		shifted.Port--
		return &shifted
	}

	if t.preferredRemote != nil {
		if addrEqual(expected(t.preferredRemote), from) {
			t.preferredRemote = nil
			return true
		}
		if t.autoRemote {
			t.preferredRemote = nil
			t.learnRemote(base(from))
			return true
		}
		return false
	}

	if t.remoteAddr == nil {
		if t.autoRemote {
			t.learnRemote(base(from))
			return true
		}
		return false
	}

	if addrEqual(expected(t.remoteAddr), from) {
		return true
	}

	if t.autoRemote {
		t.learnRemote(base(from))
		return true
	}

	return false
}

func (t *Transport) learnRemote(from *net.UDPAddr) {
	learned := *from
	t.remoteAddr = &learned
	if t.cfg.RTCP {
		rtcpAddr := learned
		rtcpAddr.Port++
		t.remoteRTCPAddr = &rtcpAddr
	}
}

func addrEqual(a, b *net.UDPAddr) bool {
	return a.IP.Equal(b.IP) && a.Port == b.Port
}

func (t *Transport) countDrop(reason dropReason) {
	if t.metrics != nil {
		t.metrics.wrongSource.WithLabelValues(t.id, string(reason)).Inc()
	}
}

func (t *Transport) nextStage() Processor {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.session
}

// SetNextStage wires the Processor that receives OnRTP/OnRTCP
// callbacks after source-checking. Used by NewSession, and by
// NewReflector to give each leg a relay stage that forwards to the
// other leg's Transport.
func (t *Transport) SetNextStage(p Processor) {
	t.mu.Lock()
	t.session = p
	t.mu.Unlock()
}

// Tick implements Processor and does nothing: socket reads happen on
// the dedicated reader goroutines (readLoop), and a Transport has no
// timer-driven work of its own. It exists so the Group can schedule
// any mix of Processors uniformly.
func (t *Transport) Tick(now int64) {}

// OnRTP / OnRTCP satisfy Processor so a Transport can sit directly in
// a Group's membership list for reflector pairing, where the "next
// stage" is a peer Transport rather than a Session.
func (t *Transport) OnRTP(payload []byte, addr *net.UDPAddr) bool {
	if err := t.SendRTP(payload); err != nil {
		return false
	}
	return true
}

func (t *Transport) OnRTCP(payload []byte, addr *net.UDPAddr) bool {
	if err := t.SendRTCP(payload); err != nil {
		return false
	}
	return true
}

func (t *Transport) AttachGroup(g *Group) {
	t.mu.Lock()
	t.group = g
	t.mu.Unlock()
}

// readLoop runs for the lifetime of the Transport on its own
// goroutine, started by Start. It is the actual socket reader; Tick
// stays non-blocking per Processor's contract.
func (t *Transport) readLoop(conn *net.UDPConn, rtcp bool) {
	buf := make([]byte, 1500+t.cfg.Padding)
	for {
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			if t.closed.Load() {
				return
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			return
		}
		pkt := make([]byte, n)
		copy(pkt, buf[:n])
		if rtcp {
			t.deliverRTCP(pkt, from)
		} else {
			t.deliver(pkt, from)
		}
	}
}

// Start launches the reader goroutine(s). Call once after
// NewTransport and before expecting inbound traffic.
func (t *Transport) Start() {
	go t.readLoop(t.rtpConn, false)
	if t.rtcpConn != nil {
		go t.readLoop(t.rtcpConn, true)
	}
}

// Close releases both sockets. Idempotent.
func (t *Transport) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	var err error
	if t.rtpConn != nil {
		err = t.rtpConn.Close()
	}
	if t.rtcpConn != nil {
		if e := t.rtcpConn.Close(); e != nil && err == nil {
			err = e
		}
	}
	return err
}

// Status implements Registrant.
func (t *Transport) Status() string {
	remote := t.RemoteAddr()
	remoteStr := "none"
	if remote != nil {
		remoteStr = remote.String()
	}
	return fmt.Sprintf("transport local=%s remote=%s wrong_source=%d",
		t.localAddr, remoteStr, t.wrongSource.Load())
}
