// Package socket is a message oriented UDP transport with optional
// per-packet reliability and peer liveness tracking.
package socket

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/beka-birhanu/mazehem/log"
)

// Socket errors.
var (
	ErrClosed          = errors.New("socket closed")
	ErrPayloadTooLarge = errors.New("payload too large")
	ErrMissingAddr     = errors.New("listen address is required")
)

// Delivery selects how a packet is sent.
type Delivery uint8

const (
	// BestEffort sends once.
	BestEffort Delivery = iota
	// Reliable retransmits until acknowledged. Ordering between reliable
	// packets is not preserved.
	Reliable
)

// EventKind tells what an Event reports.
type EventKind uint8

const (
	// EventPacket carries an application payload.
	EventPacket EventKind = iota + 1
	// EventConnect is emitted on the first datagram from a peer.
	EventConnect
	// EventTimeout is emitted when a peer stays silent past the heartbeat expiration.
	EventTimeout
)

func (k EventKind) String() string {
	switch k {
	case EventPacket:
		return "packet"
	case EventConnect:
		return "connect"
	case EventTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Event is handed from the polling goroutine to the consumer.
type Event struct {
	Kind    EventKind
	Addr    netip.AddrPort
	Payload []byte
}

// Defaults.
const (
	DefaultReadBufferSize      = 2048
	DefaultHeartbeatExpiration = 5 * time.Second
	DefaultHeartbeatInterval   = time.Second
	DefaultResendInterval      = 100 * time.Millisecond
	DefaultMaxResends          = 30
	DefaultEventBuffer         = 512
)

// Config holds the required socket dependencies.
type Config struct {
	ListenAddr *net.UDPAddr
	Logger     log.Logger
}

// Option configures a Socket.
type Option func(*Socket)

// WithReadBufferSize sets the largest datagram accepted, header included.
func WithReadBufferSize(n int) Option {
	return func(s *Socket) {
		if n > headerSize {
			s.readBufferSize = n
		}
	}
}

// WithHeartbeatExpiration sets how long a silent peer is kept.
func WithHeartbeatExpiration(d time.Duration) Option {
	return func(s *Socket) {
		if d > 0 {
			s.heartbeatExpiration = d
		}
	}
}

// WithHeartbeatInterval sets how often idle peers are pinged.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(s *Socket) {
		if d > 0 {
			s.heartbeatInterval = d
		}
	}
}

// WithResendInterval sets the retransmission period for reliable packets.
func WithResendInterval(d time.Duration) Option {
	return func(s *Socket) {
		if d > 0 {
			s.resendInterval = d
		}
	}
}

// WithMaxResends caps retransmissions of a single reliable packet.
func WithMaxResends(n int) Option {
	return func(s *Socket) {
		if n >= 0 {
			s.maxResends = n
		}
	}
}

// WithEventBuffer sets the capacity of the event channel.
func WithEventBuffer(n int) Option {
	return func(s *Socket) {
		if n > 0 {
			s.eventBuffer = n
		}
	}
}

type outgoing struct {
	datagram []byte
	sentAt   time.Time
	resends  int
}

type peer struct {
	connected bool
	lastRecv  time.Time
	lastSend  time.Time
	nextSeq   uint32
	pending   map[uint32]*outgoing
	seen      map[uint32]time.Time
}

// Socket sends and receives datagrams for any number of peers. Serve runs
// the polling goroutines; Events delivers what they observe.
type Socket struct {
	conn   *net.UDPConn
	logger log.Logger
	events chan Event

	readBufferSize      int
	heartbeatExpiration time.Duration
	heartbeatInterval   time.Duration
	resendInterval      time.Duration
	maxResends          int
	eventBuffer         int

	mu    sync.Mutex
	peers map[netip.AddrPort]*peer

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New binds a UDP socket. Call Serve to start polling.
func New(c Config, opts ...Option) (*Socket, error) {
	if c.ListenAddr == nil {
		return nil, ErrMissingAddr
	}
	if c.Logger == nil {
		c.Logger = log.NewNop()
	}

	s := &Socket{
		logger:              c.Logger,
		readBufferSize:      DefaultReadBufferSize,
		heartbeatExpiration: DefaultHeartbeatExpiration,
		heartbeatInterval:   DefaultHeartbeatInterval,
		resendInterval:      DefaultResendInterval,
		maxResends:          DefaultMaxResends,
		eventBuffer:         DefaultEventBuffer,
		peers:               make(map[netip.AddrPort]*peer),
		done:                make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	conn, err := net.ListenUDP("udp", c.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", c.ListenAddr, err)
	}
	s.conn = conn
	s.events = make(chan Event, s.eventBuffer)
	return s, nil
}

// Addr returns the bound local address.
func (s *Socket) Addr() netip.AddrPort {
	return normalize(s.conn.LocalAddr().(*net.UDPAddr).AddrPort())
}

// Events returns the channel the polling goroutines publish to. It is never
// closed; consumers should also watch their own cancellation.
func (s *Socket) Events() <-chan Event {
	return s.events
}

// Serve polls the socket until Stop is called.
func (s *Socket) Serve() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.maintainLoop()
	}()
	s.readLoop()
	s.wg.Wait()
}

// Stop closes the socket and ends Serve.
func (s *Socket) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

// Send queues payload for addr. Reliable payloads are retransmitted by the
// polling goroutine until acknowledged.
func (s *Socket) Send(addr netip.AddrPort, payload []byte, d Delivery) error {
	if s.stopped() {
		return ErrClosed
	}
	if headerSize+len(payload) > s.readBufferSize {
		return fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}
	addr = normalize(addr)
	now := time.Now()

	s.mu.Lock()
	p := s.peerLocked(addr, now)
	p.lastSend = now
	var datagram []byte
	if d == Reliable {
		seq := p.nextSeq
		p.nextSeq++
		datagram = frame(kindReliable, seq, payload)
		p.pending[seq] = &outgoing{datagram: datagram, sentAt: now}
	} else {
		datagram = frame(kindUnreliable, 0, payload)
	}
	s.mu.Unlock()

	return s.write(addr, datagram)
}

// Forget drops all state kept for addr without emitting an event.
func (s *Socket) Forget(addr netip.AddrPort) {
	s.mu.Lock()
	delete(s.peers, normalize(addr))
	s.mu.Unlock()
}

func (s *Socket) readLoop() {
	// One spare byte detects datagrams larger than the configured size.
	buf := make([]byte, s.readBufferSize+1)
	for {
		n, addr, err := s.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if s.stopped() || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warning(fmt.Sprintf("reading datagram: %v", err))
			continue
		}
		if n > s.readBufferSize {
			s.logger.Debug(fmt.Sprintf("dropping oversized datagram from %s", addr))
			continue
		}
		s.handleDatagram(normalize(addr), buf[:n], time.Now())
	}
}

func (s *Socket) handleDatagram(addr netip.AddrPort, b []byte, now time.Time) {
	kind, seq, payload, ok := parseFrame(b)
	if !ok {
		s.logger.Debug(fmt.Sprintf("dropping unframed datagram from %s", addr))
		return
	}

	var (
		deliver bool
		ack     []byte
	)
	s.mu.Lock()
	p := s.peerLocked(addr, now)
	p.lastRecv = now
	connect := !p.connected
	p.connected = true
	switch kind {
	case kindAck:
		delete(p.pending, seq)
	case kindReliable:
		ack = frame(kindAck, seq, nil)
		if _, dup := p.seen[seq]; !dup {
			p.seen[seq] = now
			deliver = true
		}
	case kindUnreliable:
		deliver = true
	}
	s.mu.Unlock()

	if connect {
		s.emit(Event{Kind: EventConnect, Addr: addr})
	}
	if ack != nil {
		if err := s.write(addr, ack); err != nil {
			s.logger.Debug(fmt.Sprintf("acking %d to %s: %v", seq, addr, err))
		}
	}
	if deliver {
		s.emit(Event{Kind: EventPacket, Addr: addr, Payload: append([]byte(nil), payload...)})
	}
}

func (s *Socket) maintainLoop() {
	ticker := time.NewTicker(max(s.resendInterval/2, time.Millisecond))
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case now := <-ticker.C:
			s.maintain(now)
		}
	}
}

type datagramTo struct {
	addr     netip.AddrPort
	datagram []byte
}

// maintain retransmits unacknowledged packets, pings idle peers and expires
// silent ones.
func (s *Socket) maintain(now time.Time) {
	var (
		out      []datagramTo
		timeouts []netip.AddrPort
	)
	// Duplicates can arrive until the sender gives up retransmitting.
	seenTTL := 2 * s.resendInterval * time.Duration(s.maxResends+1)

	s.mu.Lock()
	for addr, p := range s.peers {
		if now.Sub(p.lastRecv) > s.heartbeatExpiration {
			delete(s.peers, addr)
			timeouts = append(timeouts, addr)
			continue
		}
		for seq, o := range p.pending {
			if now.Sub(o.sentAt) < s.resendInterval {
				continue
			}
			if o.resends >= s.maxResends {
				delete(p.pending, seq)
				continue
			}
			o.resends++
			o.sentAt = now
			p.lastSend = now
			out = append(out, datagramTo{addr: addr, datagram: o.datagram})
		}
		if now.Sub(p.lastSend) >= s.heartbeatInterval {
			p.lastSend = now
			out = append(out, datagramTo{addr: addr, datagram: frame(kindHeartbeat, 0, nil)})
		}
		for seq, at := range p.seen {
			if now.Sub(at) > seenTTL {
				delete(p.seen, seq)
			}
		}
	}
	s.mu.Unlock()

	for _, d := range out {
		if err := s.write(d.addr, d.datagram); err != nil {
			s.logger.Debug(fmt.Sprintf("writing to %s: %v", d.addr, err))
		}
	}
	for _, addr := range timeouts {
		s.logger.Info(fmt.Sprintf("peer %s timed out", addr))
		s.emit(Event{Kind: EventTimeout, Addr: addr})
	}
}

// peerLocked returns the state for addr, creating it if needed. s.mu must be held.
func (s *Socket) peerLocked(addr netip.AddrPort, now time.Time) *peer {
	p, ok := s.peers[addr]
	if !ok {
		p = &peer{
			lastRecv: now,
			pending:  make(map[uint32]*outgoing),
			seen:     make(map[uint32]time.Time),
		}
		s.peers[addr] = p
	}
	return p
}

func (s *Socket) emit(ev Event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

func (s *Socket) write(addr netip.AddrPort, datagram []byte) error {
	if _, err := s.conn.WriteToUDPAddrPort(datagram, addr); err != nil {
		if s.stopped() {
			return ErrClosed
		}
		return err
	}
	return nil
}

func (s *Socket) stopped() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// normalize unmaps IPv4-in-IPv6 addresses so a peer has one map key.
func normalize(addr netip.AddrPort) netip.AddrPort {
	return netip.AddrPortFrom(addr.Addr().Unmap(), addr.Port())
}
