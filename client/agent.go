// Package client keeps a game client in sync with the authoritative server.
package client

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"net/netip"
	"slices"
	"time"

	"github.com/beka-birhanu/mazehem/crypto"
	"github.com/beka-birhanu/mazehem/gameencoder"
	"github.com/beka-birhanu/mazehem/log"
	"github.com/beka-birhanu/mazehem/maze"
	"github.com/beka-birhanu/mazehem/player"
	"github.com/beka-birhanu/mazehem/service/i"
	"github.com/beka-birhanu/mazehem/socket"
)

// Agent errors.
var (
	ErrServerLost     = errors.New("connection to the server has been lost")
	ErrMissingSocket  = errors.New("socket is required")
	ErrMissingServer  = errors.New("server address is required")
	ErrMissingEncoder = errors.New("game encoder is required")
)

// DefaultTickInterval is how often input is sent upstream.
const DefaultTickInterval = 50 * time.Millisecond

// InputSource yields the most recent locally pressed direction.
type InputSource interface {
	// Sample returns the latest direction, or maze.Undefined if none.
	Sample() maze.Direction
}

// Sink is notified after the local view of the game changes.
type Sink interface {
	Render(cells []maze.Cell, players []player.Player)
}

// Config holds the agent dependencies. Width and Height size the default
// roster shown before the first snapshot arrives.
type Config struct {
	Socket       i.Socket
	Server       netip.AddrPort
	GameEncoder  i.GameEncoder
	Input        InputSource
	Sink         Sink
	Logger       log.Logger
	TickInterval time.Duration
	Width        uint
	Height       uint
}

// Agent forwards local input and mirrors the server's state. It does no
// prediction: what it shows is the last snapshot received.
type Agent struct {
	socket   i.Socket
	server   netip.AddrPort
	encoder  i.GameEncoder
	input    InputSource
	sink     Sink
	logger   log.Logger
	interval time.Duration

	cells     map[maze.Coord]maze.Cell
	players   []player.Player
	connected bool
}

// NewAgent returns an agent with an empty maze and the default roster.
func NewAgent(c *Config) (*Agent, error) {
	switch {
	case c.Socket == nil:
		return nil, ErrMissingSocket
	case !c.Server.IsValid():
		return nil, ErrMissingServer
	case c.GameEncoder == nil:
		return nil, ErrMissingEncoder
	}
	a := &Agent{
		socket:   c.Socket,
		server:   c.Server,
		encoder:  c.GameEncoder,
		input:    c.Input,
		sink:     c.Sink,
		logger:   c.Logger,
		interval: c.TickInterval,
		cells:    make(map[maze.Coord]maze.Cell),
		players:  player.NewRoster(c.Width, c.Height).Players(),
	}
	if a.logger == nil {
		a.logger = log.NewNop()
	}
	if a.interval <= 0 {
		a.interval = DefaultTickInterval
	}
	return a, nil
}

// Run connects to the server and keeps the agent in sync until ctx is
// cancelled or the server stops answering.
func (a *Agent) Run(ctx context.Context) error {
	if err := a.Connect(); err != nil {
		return err
	}

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	events := a.socket.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-events:
			if err := a.HandleEvent(ev); err != nil {
				return err
			}
		case <-ticker.C:
			if err := a.Tick(); err != nil {
				a.logger.Debug(fmt.Sprintf("sending input: %v", err))
			}
		}
	}
}

// Connect asks the server to start the handshake.
func (a *Agent) Connect() error {
	a.logger.Info(fmt.Sprintf("connecting to %s", a.server))
	return a.send(gameencoder.Connection{}, socket.Reliable)
}

// Tick sends the latest input, changed or not.
func (a *Agent) Tick() error {
	dir := maze.Undefined
	if a.input != nil {
		dir = a.input.Sample()
	}
	return a.send(gameencoder.Key{Direction: dir}, socket.BestEffort)
}

// HandleEvent applies one transport event. Only a timeout of the server
// returns an error.
func (a *Agent) HandleEvent(ev socket.Event) error {
	if ev.Addr != a.server {
		return nil
	}
	switch ev.Kind {
	case socket.EventTimeout:
		return ErrServerLost
	case socket.EventConnect:
		a.logger.Debug(fmt.Sprintf("transport connected to %s", ev.Addr))
	case socket.EventPacket:
		a.handlePacket(ev.Payload)
	}
	return nil
}

func (a *Agent) handlePacket(payload []byte) {
	d, err := a.encoder.Unmarshal(payload)
	if err != nil {
		a.logger.Debug(fmt.Sprintf("dropping packet: %v", err))
		return
	}

	switch msg := d.(type) {
	case gameencoder.PublicKeyOffer:
		a.answerOffer(msg.Key)
		return
	case gameencoder.Cells:
		a.mergeCells(msg.Cells)
	case gameencoder.Players:
		if len(msg.Players) != player.Slots {
			a.logger.Debug(fmt.Sprintf("dropping roster with %d players", len(msg.Players)))
			return
		}
		a.players = msg.Players
	default:
		a.logger.Debug(fmt.Sprintf("dropping unexpected %T", d))
		return
	}

	if !a.connected {
		a.connected = true
		a.logger.Info("connected")
	}
	if a.sink != nil {
		a.sink.Render(a.Cells(), a.Players())
	}
}

func (a *Agent) answerOffer(key []byte) {
	ct, err := crypto.EncryptChallenge(key)
	if err != nil {
		a.logger.Warning(fmt.Sprintf("ignoring key offer: %v", err))
		return
	}
	if err := a.send(gameencoder.Handshake{Ciphertext: ct}, socket.Reliable); err != nil {
		a.logger.Warning(fmt.Sprintf("sending handshake: %v", err))
	}
}

// mergeCells adds a batch to the local maze. Cells are keyed by coordinate
// and links are unioned, so repeated batches change nothing.
func (a *Agent) mergeCells(batch []maze.Cell) {
	for _, c := range batch {
		cur, ok := a.cells[c.Coord]
		if !ok {
			a.cells[c.Coord] = c.Clone()
			continue
		}
		for _, l := range c.Links {
			if !cur.LinksTo(l) {
				cur.Links = append(cur.Links, l)
			}
		}
		a.cells[c.Coord] = cur
	}
}

// Cells returns the received maze ordered by row, then column.
func (a *Agent) Cells() []maze.Cell {
	out := make([]maze.Cell, 0, len(a.cells))
	for _, c := range a.cells {
		out = append(out, c.Clone())
	}
	slices.SortFunc(out, func(x, y maze.Cell) int {
		return cmp.Or(cmp.Compare(x.Coord.Y, y.Coord.Y), cmp.Compare(x.Coord.X, y.Coord.X))
	})
	return out
}

// Players returns the last roster received.
func (a *Agent) Players() []player.Player {
	return slices.Clone(a.players)
}

// Connected reports whether any game state has arrived from the server.
func (a *Agent) Connected() bool {
	return a.connected
}

func (a *Agent) send(d gameencoder.Data, delivery socket.Delivery) error {
	payload, err := a.encoder.Marshal(d)
	if err != nil {
		return fmt.Errorf("encoding %T: %w", d, err)
	}
	return a.socket.Send(a.server, payload, delivery)
}
