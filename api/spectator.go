package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/beka-birhanu/mazehem/log"
	"github.com/beka-birhanu/mazehem/player"
	"github.com/gorilla/websocket"
	"github.com/matryer/way"
)

const (
	URISpectate = "/spectate"
	URIHealth   = "/healthz"

	spectatorQueue = 16
	writeWait      = 5 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
)

// Snapshot is the JSON document streamed to spectators.
type Snapshot struct {
	Players []PlayerView `json:"players"`
}

type PlayerView struct {
	Slot  int    `json:"slot"`
	X     uint   `json:"x"`
	Y     uint   `json:"y"`
	Color string `json:"color"`
}

// Spectator streams roster snapshots to read-only websocket observers.
type Spectator struct {
	router   *way.Router
	upgrader websocket.Upgrader
	logger   log.Logger

	mu      sync.Mutex
	conns   map[*spectatorConn]struct{}
	latest  []byte
	stopped bool
}

// NewSpectator returns a spectator feed with its routes registered.
func NewSpectator(logger log.Logger) *Spectator {
	if logger == nil {
		logger = log.NewNop()
	}
	s := &Spectator{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: logger,
		conns:  make(map[*spectatorConn]struct{}),
	}
	s.routes()
	return s
}

func (s *Spectator) routes() {
	s.router = way.NewRouter()
	s.router.HandleFunc(http.MethodGet, URISpectate, s.handleSpectate())
	s.router.HandleFunc(http.MethodGet, URIHealth, s.handleHealth())
}

func (s *Spectator) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// PublishRoster queues players for every spectator. Slow spectators miss
// snapshots rather than holding up the caller.
func (s *Spectator) PublishRoster(players []player.Player) {
	snap := Snapshot{Players: make([]PlayerView, len(players))}
	for n, p := range players {
		snap.Players[n] = PlayerView{Slot: p.Slot, X: p.Coord.X, Y: p.Coord.Y, Color: fmt.Sprintf("#%06x", p.Color)}
	}
	b, err := json.Marshal(snap)
	if err != nil {
		s.logger.Error(fmt.Sprintf("encoding snapshot: %v", err))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = b
	for c := range s.conns {
		c.enqueue(b)
	}
}

// Count returns the number of connected spectators.
func (s *Spectator) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Close disconnects every spectator and refuses new ones.
func (s *Spectator) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for c := range s.conns {
		c.close()
		delete(s.conns, c)
	}
}

func (s *Spectator) handleSpectate() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.logger.Warning(fmt.Sprintf("websocket upgrade from %s: %v", r.RemoteAddr, err))
			return
		}

		c := &spectatorConn{ws: ws, send: make(chan []byte, spectatorQueue)}
		s.mu.Lock()
		if s.stopped {
			s.mu.Unlock()
			_ = ws.Close()
			return
		}
		s.conns[c] = struct{}{}
		if s.latest != nil {
			c.enqueue(s.latest)
		}
		s.mu.Unlock()
		s.logger.Info(fmt.Sprintf("spectator %s joined", r.RemoteAddr))

		go c.writePump()
		go func() {
			c.readPump()
			s.remove(c)
			s.logger.Info(fmt.Sprintf("spectator %s left", r.RemoteAddr))
		}()
	}
}

func (s *Spectator) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("ok"))
	}
}

func (s *Spectator) remove(c *spectatorConn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conns[c]; ok {
		c.close()
		delete(s.conns, c)
	}
}

// spectatorConn is guarded by the Spectator's mutex except for its pumps.
type spectatorConn struct {
	ws     *websocket.Conn
	send   chan []byte
	closed bool
}

func (c *spectatorConn) enqueue(b []byte) {
	if c.closed {
		return
	}
	select {
	case c.send <- b:
	default:
	}
}

func (c *spectatorConn) close() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *spectatorConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards inbound frames and returns once the peer goes away.
func (c *spectatorConn) readPump() {
	c.ws.SetReadLimit(512)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			return
		}
	}
}
