// Package gameencoder defines the messages exchanged between game clients
// and the server, and their binary encoding.
package gameencoder

import (
	"github.com/beka-birhanu/mazehem/maze"
	"github.com/beka-birhanu/mazehem/player"
)

// Data is one message on the wire. The set of variants is closed.
type Data interface {
	isData()
}

// Connection asks the server to start a handshake.
type Connection struct{}

// PublicKeyOffer carries the server's DER encoded PKIX public key.
type PublicKeyOffer struct {
	Key []byte
}

// Handshake carries the encrypted challenge.
type Handshake struct {
	Ciphertext []byte
}

// Cells is one batch of maze geometry.
type Cells struct {
	Cells []maze.Cell
}

// Players is a full roster snapshot.
type Players struct {
	Players []player.Player
}

// Key is the latest sampled client input.
type Key struct {
	Direction maze.Direction
}

func (Connection) isData()     {}
func (PublicKeyOffer) isData() {}
func (Handshake) isData()      {}
func (Cells) isData()          {}
func (Players) isData()        {}
func (Key) isData()            {}
