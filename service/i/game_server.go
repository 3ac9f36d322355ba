package i

import (
	"context"
	"net/netip"
	"time"

	"github.com/beka-birhanu/mazehem/gameencoder"
	"github.com/beka-birhanu/mazehem/maze"
	"github.com/beka-birhanu/mazehem/player"
	"github.com/beka-birhanu/mazehem/socket"
)

// GameServer defines the authoritative maze game loop.
type GameServer interface {
	// Run processes transport events and broadcasts state until ctx is done.
	Run(ctx context.Context) error
}

// Socket is the packet transport the game loop and client agent run on.
type Socket interface {
	// Send delivers payload to addr using the given delivery mode.
	Send(addr netip.AddrPort, payload []byte, d socket.Delivery) error

	// Events returns inbound transport events.
	Events() <-chan socket.Event
}

// GameEncoder converts wire messages to and from bytes.
type GameEncoder interface {
	Marshal(gameencoder.Data) ([]byte, error)
	Unmarshal([]byte) (gameencoder.Data, error)
}

// Handshaker verifies a client's answer to the key offer.
type Handshaker interface {
	// PublicKey returns the key material offered to clients.
	PublicKey() []byte

	// VerifyChallenge returns nil when ciphertext decrypts to the challenge.
	VerifyChallenge(ciphertext []byte) error
}

// RosterPublisher receives every roster snapshot the loop broadcasts.
type RosterPublisher interface {
	PublishRoster([]player.Player)
}

// ServerInfo is a point in time copy of the game state for observers
// outside the game loop.
type ServerInfo struct {
	Width     uint
	Height    uint
	Goal      maze.Coord
	Winner    int // slot that reached the goal first, 0 if none
	Players   []player.Player
	Sessions  []SessionInfo
	Metrics   map[string]int64
	UpdatedAt time.Time
}

// InfoProvider exposes the latest ServerInfo. It is safe for concurrent use.
type InfoProvider interface {
	Info() ServerInfo
}
