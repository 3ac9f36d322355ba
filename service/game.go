package service

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"sync/atomic"
	"time"

	"github.com/beka-birhanu/mazehem/gameencoder"
	"github.com/beka-birhanu/mazehem/log"
	"github.com/beka-birhanu/mazehem/maze"
	"github.com/beka-birhanu/mazehem/player"
	"github.com/beka-birhanu/mazehem/service/i"
	"github.com/beka-birhanu/mazehem/socket"
)

// Configuration errors.
var (
	ErrMissingSocket     = errors.New("socket is required")
	ErrMissingMaze       = errors.New("maze is required")
	ErrMissingEncoder    = errors.New("game encoder is required")
	ErrMissingHandshaker = errors.New("handshaker is required")
)

const (
	DefaultTickInterval  = 50 * time.Millisecond
	DefaultCellBatchSize = 10

	// maxEventsPerTick bounds how many queued events one drain handles
	// before the loop broadcasts.
	maxEventsPerTick = 256
)

// Config holds the game server dependencies.
type Config struct {
	Socket        i.Socket
	Maze          *maze.Maze
	GameEncoder   i.GameEncoder
	Handshaker    i.Handshaker
	Publisher     i.RosterPublisher // optional
	Logger        log.Logger
	TickInterval  time.Duration
	CellBatchSize int
}

// Server is the authoritative owner of the maze, the player roster and the
// session table. Only the goroutine running Run touches them.
type Server struct {
	socket     i.Socket
	maze       *maze.Maze
	encoder    i.GameEncoder
	handshaker i.Handshaker
	publisher  i.RosterPublisher
	logger     log.Logger

	tickInterval  time.Duration
	cellBatchSize int

	roster   player.Roster
	sessions *SessionTable
	winner   int

	metrics *Metrics
	info    atomic.Pointer[i.ServerInfo]
}

var (
	_ i.GameServer   = (*Server)(nil)
	_ i.InfoProvider = (*Server)(nil)
)

// NewServer creates a game server with every slot at its starting corner.
func NewServer(c *Config) (*Server, error) {
	switch {
	case c.Socket == nil:
		return nil, ErrMissingSocket
	case c.Maze == nil:
		return nil, ErrMissingMaze
	case c.GameEncoder == nil:
		return nil, ErrMissingEncoder
	case c.Handshaker == nil:
		return nil, ErrMissingHandshaker
	}

	s := &Server{
		socket:        c.Socket,
		maze:          c.Maze,
		encoder:       c.GameEncoder,
		handshaker:    c.Handshaker,
		publisher:     c.Publisher,
		logger:        c.Logger,
		tickInterval:  c.TickInterval,
		cellBatchSize: c.CellBatchSize,
		roster:        player.NewRoster(c.Maze.Width(), c.Maze.Height()),
		sessions:      NewSessionTable(),
		metrics:       &Metrics{},
	}
	if s.logger == nil {
		s.logger = log.NewNop()
	}
	if s.tickInterval <= 0 {
		s.tickInterval = DefaultTickInterval
	}
	if s.cellBatchSize <= 0 {
		s.cellBatchSize = DefaultCellBatchSize
	}
	s.publishInfo()
	return s, nil
}

// Run processes transport events and broadcasts the roster every tick until
// ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	events := s.socket.Events()
	s.logger.Info(fmt.Sprintf("game loop started: maze %dx%d, goal %s", s.maze.Width(), s.maze.Height(), s.maze.Goal()))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("game loop stopped")
			return ctx.Err()
		case ev := <-events:
			s.handleEvent(ev)
			s.drain(events)
			s.broadcast()
		case <-ticker.C:
			s.broadcast()
		}
	}
}

// Info returns the snapshot published after the latest broadcast.
func (s *Server) Info() i.ServerInfo {
	return *s.info.Load()
}

// Metrics returns the loop counters.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// drain handles events that are already queued without blocking.
func (s *Server) drain(events <-chan socket.Event) {
	for range maxEventsPerTick {
		select {
		case ev := <-events:
			s.handleEvent(ev)
		default:
			return
		}
	}
}

func (s *Server) handleEvent(ev socket.Event) {
	switch ev.Kind {
	case socket.EventPacket:
		s.handlePacket(ev.Addr, ev.Payload)
	case socket.EventConnect:
		s.logger.Debug(fmt.Sprintf("transport connect from %s", ev.Addr))
	case socket.EventTimeout:
		s.onTimeout(ev.Addr)
	}
}

func (s *Server) handlePacket(addr netip.AddrPort, payload []byte) {
	d, err := s.encoder.Unmarshal(payload)
	if err != nil {
		s.metrics.PacketsMalformed.Add(1)
		s.logger.Debug(fmt.Sprintf("dropping packet from %s: %v", addr, err))
		return
	}

	switch msg := d.(type) {
	case gameencoder.Key:
		s.onKey(addr, msg.Direction)
	case gameencoder.Connection:
		s.onConnection(addr)
	case gameencoder.Handshake:
		s.onHandshake(addr, msg.Ciphertext)
	default:
		s.metrics.PacketsMalformed.Add(1)
		s.logger.Debug(fmt.Sprintf("dropping unexpected %T from %s", d, addr))
	}
}

// onConnection offers the public key to a new or still pending address.
func (s *Server) onConnection(addr netip.AddrPort) {
	sess, err := s.sessions.Offer(addr, time.Now())
	if err != nil {
		s.metrics.ConnectionsIgnored.Add(1)
		s.logger.Warning(fmt.Sprintf("ignoring connection from %s: %v", addr, err))
		return
	}
	if sess.State == i.StateConnected {
		return
	}

	s.logger.Info(fmt.Sprintf("offering key to %s (session %s)", addr, sess.ID))
	s.send(addr, gameencoder.PublicKeyOffer{Key: s.handshaker.PublicKey()}, socket.Reliable)
}

// onHandshake admits a pending session whose challenge checks out and
// streams it the maze.
func (s *Server) onHandshake(addr netip.AddrPort, ciphertext []byte) {
	sess, ok := s.sessions.Lookup(addr)
	if !ok {
		s.metrics.HandshakesFailed.Add(1)
		s.logger.Debug(fmt.Sprintf("handshake from %s without a key offer", addr))
		return
	}
	if sess.State == i.StateConnected {
		return
	}

	if err := s.handshaker.VerifyChallenge(ciphertext); err != nil {
		s.metrics.HandshakesFailed.Add(1)
		s.logger.Warning(fmt.Sprintf("handshake from %s failed: %v", addr, err))
		return
	}

	sess, err := s.sessions.Admit(addr)
	if err != nil {
		s.metrics.ConnectionsIgnored.Add(1)
		s.logger.Warning(fmt.Sprintf("cannot admit %s: %v", addr, err))
		return
	}
	s.metrics.SessionsAdmitted.Add(1)
	s.logger.Info(fmt.Sprintf("client %s connected as player %d (session %s)", addr, sess.Slot, sess.ID))
	s.sendCells(addr)
}

// sendCells streams the maze to addr in fixed size batches.
func (s *Server) sendCells(addr netip.AddrPort) {
	cells := s.maze.Cells()
	for start := 0; start < len(cells); start += s.cellBatchSize {
		end := min(start+s.cellBatchSize, len(cells))
		s.send(addr, gameencoder.Cells{Cells: cells[start:end]}, socket.Reliable)
	}
}

// onKey applies a move for the player bound to addr. Illegal, stale and
// duplicate moves are dropped.
func (s *Server) onKey(addr netip.AddrPort, dir maze.Direction) {
	sess, ok := s.sessions.Lookup(addr)
	if !ok || sess.State != i.StateConnected {
		return
	}
	if dir == maze.Undefined {
		return
	}

	p := &s.roster[sess.Slot-1]
	to, ok := s.maze.Move(p.Coord, dir)
	if !ok {
		s.metrics.MovesRejected.Add(1)
		return
	}
	p.Coord = to
	s.metrics.MovesAccepted.Add(1)

	if to == s.maze.Goal() && s.winner == 0 {
		s.winner = p.Slot
		s.logger.Info(fmt.Sprintf("player %d reached the goal %s", p.Slot, to))
	}
}

// onTimeout frees the session for addr. The player keeps its last position.
func (s *Server) onTimeout(addr netip.AddrPort) {
	sess, ok := s.sessions.Remove(addr)
	if !ok {
		return
	}
	s.metrics.SessionsRemoved.Add(1)
	if sess.State == i.StateConnected {
		s.logger.Info(fmt.Sprintf("client %s disconnected, player %d stays at %s", addr, sess.Slot, s.roster[sess.Slot-1].Coord))
		return
	}
	s.logger.Info(fmt.Sprintf("client %s disconnected during handshake", addr))
}

// broadcast sends the full roster to every connected session.
func (s *Server) broadcast() {
	players := s.roster.Players()
	payload, err := s.encoder.Marshal(gameencoder.Players{Players: players})
	if err != nil {
		s.logger.Error(fmt.Sprintf("encoding roster: %v", err))
		return
	}
	for _, sess := range s.sessions.Admitted() {
		if err := s.socket.Send(sess.Addr, payload, socket.BestEffort); err != nil {
			s.metrics.SendErrors.Add(1)
			s.logger.Debug(fmt.Sprintf("sending roster to %s: %v", sess.Addr, err))
		}
	}
	s.metrics.Broadcasts.Add(1)

	if s.publisher != nil {
		s.publisher.PublishRoster(players)
	}
	s.publishInfo()
}

func (s *Server) send(addr netip.AddrPort, d gameencoder.Data, delivery socket.Delivery) {
	payload, err := s.encoder.Marshal(d)
	if err != nil {
		s.logger.Error(fmt.Sprintf("encoding %T: %v", d, err))
		return
	}
	if err := s.socket.Send(addr, payload, delivery); err != nil {
		s.metrics.SendErrors.Add(1)
		s.logger.Warning(fmt.Sprintf("sending %T to %s: %v", d, addr, err))
	}
}

func (s *Server) publishInfo() {
	s.info.Store(&i.ServerInfo{
		Width:     s.maze.Width(),
		Height:    s.maze.Height(),
		Goal:      s.maze.Goal(),
		Winner:    s.winner,
		Players:   s.roster.Players(),
		Sessions:  s.sessions.Infos(),
		Metrics:   s.metrics.Snapshot(),
		UpdatedAt: time.Now(),
	})
}
