package gameencoder

import (
	"errors"
	"fmt"

	"github.com/beka-birhanu/mazehem/maze"
	"github.com/beka-birhanu/mazehem/player"
	"google.golang.org/protobuf/encoding/protowire"
)

// Encoding errors.
var (
	ErrMalformed      = errors.New("malformed envelope")
	ErrUnknownVariant = errors.New("unknown data variant")
)

// Envelope field numbers. Exactly one is present per message.
const (
	fieldConnection     protowire.Number = 1
	fieldPublicKeyOffer protowire.Number = 2
	fieldHandshake      protowire.Number = 3
	fieldCells          protowire.Number = 4
	fieldPlayers        protowire.Number = 5
	fieldKey            protowire.Number = 6
)

// Nested message field numbers.
const (
	fieldCoordX protowire.Number = 1
	fieldCoordY protowire.Number = 2

	fieldCellCoord protowire.Number = 1
	fieldCellLinks protowire.Number = 2

	fieldBatchItem protowire.Number = 1

	fieldPlayerSlot  protowire.Number = 1
	fieldPlayerCoord protowire.Number = 2
	fieldPlayerColor protowire.Number = 3
)

// Protobuf encodes Data in protocol buffer wire format.
type Protobuf struct{}

// Marshal encodes d.
func (Protobuf) Marshal(d Data) ([]byte, error) {
	var b []byte
	switch v := d.(type) {
	case Connection, *Connection:
		b = protowire.AppendTag(b, fieldConnection, protowire.BytesType)
		b = protowire.AppendBytes(b, nil)
	case PublicKeyOffer:
		b = protowire.AppendTag(b, fieldPublicKeyOffer, protowire.BytesType)
		b = protowire.AppendBytes(b, v.Key)
	case Handshake:
		b = protowire.AppendTag(b, fieldHandshake, protowire.BytesType)
		b = protowire.AppendBytes(b, v.Ciphertext)
	case Cells:
		var batch []byte
		for _, c := range v.Cells {
			batch = protowire.AppendTag(batch, fieldBatchItem, protowire.BytesType)
			batch = protowire.AppendBytes(batch, appendCell(nil, c))
		}
		b = protowire.AppendTag(b, fieldCells, protowire.BytesType)
		b = protowire.AppendBytes(b, batch)
	case Players:
		var roster []byte
		for _, p := range v.Players {
			roster = protowire.AppendTag(roster, fieldBatchItem, protowire.BytesType)
			roster = protowire.AppendBytes(roster, appendPlayer(nil, p))
		}
		b = protowire.AppendTag(b, fieldPlayers, protowire.BytesType)
		b = protowire.AppendBytes(b, roster)
	case Key:
		if !v.Direction.Valid() {
			return nil, fmt.Errorf("%w: direction %d", ErrMalformed, v.Direction)
		}
		b = protowire.AppendTag(b, fieldKey, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(v.Direction))
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownVariant, d)
	}
	return b, nil
}

// Unmarshal decodes one envelope. Unknown fields are skipped; an envelope
// without exactly one known variant is malformed.
func (Protobuf) Unmarshal(b []byte) (Data, error) {
	var out Data
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, malformed(protowire.ParseError(n))
		}
		b = b[n:]

		var (
			d   Data
			err error
		)
		switch {
		case num == fieldConnection && typ == protowire.BytesType:
			_, n = protowire.ConsumeBytes(b)
			d = Connection{}
		case num == fieldPublicKeyOffer && typ == protowire.BytesType:
			var v []byte
			v, n = protowire.ConsumeBytes(b)
			d = PublicKeyOffer{Key: clone(v)}
		case num == fieldHandshake && typ == protowire.BytesType:
			var v []byte
			v, n = protowire.ConsumeBytes(b)
			d = Handshake{Ciphertext: clone(v)}
		case num == fieldCells && typ == protowire.BytesType:
			var v []byte
			v, n = protowire.ConsumeBytes(b)
			if n >= 0 {
				var cells []maze.Cell
				cells, err = decodeCells(v)
				d = Cells{Cells: cells}
			}
		case num == fieldPlayers && typ == protowire.BytesType:
			var v []byte
			v, n = protowire.ConsumeBytes(b)
			if n >= 0 {
				var players []player.Player
				players, err = decodePlayers(v)
				d = Players{Players: players}
			}
		case num == fieldKey && typ == protowire.VarintType:
			var v uint64
			v, n = protowire.ConsumeVarint(b)
			if n >= 0 {
				if v > uint64(maze.Right) {
					return nil, fmt.Errorf("%w: direction %d", ErrMalformed, v)
				}
				d = Key{Direction: maze.Direction(v)}
			}
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return nil, malformed(protowire.ParseError(n))
		}
		if err != nil {
			return nil, err
		}
		b = b[n:]

		if d == nil {
			continue
		}
		if out != nil {
			return nil, fmt.Errorf("%w: more than one variant", ErrMalformed)
		}
		out = d
	}
	if out == nil {
		return nil, fmt.Errorf("%w: no variant", ErrMalformed)
	}
	return out, nil
}

func appendCoord(b []byte, c maze.Coord) []byte {
	b = protowire.AppendTag(b, fieldCoordX, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(c.X))
	b = protowire.AppendTag(b, fieldCoordY, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(c.Y))
	return b
}

func appendCell(b []byte, c maze.Cell) []byte {
	b = protowire.AppendTag(b, fieldCellCoord, protowire.BytesType)
	b = protowire.AppendBytes(b, appendCoord(nil, c.Coord))
	for _, l := range c.Links {
		b = protowire.AppendTag(b, fieldCellLinks, protowire.BytesType)
		b = protowire.AppendBytes(b, appendCoord(nil, l))
	}
	return b
}

func appendPlayer(b []byte, p player.Player) []byte {
	b = protowire.AppendTag(b, fieldPlayerSlot, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(p.Slot))
	b = protowire.AppendTag(b, fieldPlayerCoord, protowire.BytesType)
	b = protowire.AppendBytes(b, appendCoord(nil, p.Coord))
	b = protowire.AppendTag(b, fieldPlayerColor, protowire.Fixed32Type)
	b = protowire.AppendFixed32(b, p.Color)
	return b
}

// each calls fn for every occurrence of field num in b and skips the rest.
func each(b []byte, fn func(num protowire.Number, typ protowire.Type, v []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return malformed(protowire.ParseError(n))
		}
		b = b[n:]
		n, err := fn(num, typ, b)
		if err != nil {
			return err
		}
		if n < 0 {
			return malformed(protowire.ParseError(n))
		}
		b = b[n:]
	}
	return nil
}

func decodeCoord(b []byte) (maze.Coord, error) {
	var c maze.Coord
	err := each(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		if typ != protowire.VarintType || (num != fieldCoordX && num != fieldCoordY) {
			return protowire.ConsumeFieldValue(num, typ, v), nil
		}
		x, n := protowire.ConsumeVarint(v)
		if n < 0 {
			return n, nil
		}
		if uint64(uint(x)) != x {
			return 0, fmt.Errorf("%w: coordinate overflow", ErrMalformed)
		}
		if num == fieldCoordX {
			c.X = uint(x)
		} else {
			c.Y = uint(x)
		}
		return n, nil
	})
	return c, err
}

func decodeCell(b []byte) (maze.Cell, error) {
	var (
		cell     maze.Cell
		hasCoord bool
	)
	err := each(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		if typ != protowire.BytesType || (num != fieldCellCoord && num != fieldCellLinks) {
			return protowire.ConsumeFieldValue(num, typ, v), nil
		}
		raw, n := protowire.ConsumeBytes(v)
		if n < 0 {
			return n, nil
		}
		c, err := decodeCoord(raw)
		if err != nil {
			return 0, err
		}
		if num == fieldCellCoord {
			cell.Coord, hasCoord = c, true
		} else {
			cell.Links = append(cell.Links, c)
		}
		return n, nil
	})
	if err == nil && !hasCoord {
		err = fmt.Errorf("%w: cell without coordinate", ErrMalformed)
	}
	return cell, err
}

func decodeCells(b []byte) ([]maze.Cell, error) {
	cells := []maze.Cell{}
	err := eachItem(b, func(raw []byte) error {
		c, err := decodeCell(raw)
		cells = append(cells, c)
		return err
	})
	return cells, err
}

func decodePlayer(b []byte) (player.Player, error) {
	var p player.Player
	err := each(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		switch {
		case num == fieldPlayerSlot && typ == protowire.VarintType:
			slot, n := protowire.ConsumeVarint(v)
			if n >= 0 {
				if slot > player.Slots {
					return 0, fmt.Errorf("%w: slot %d", ErrMalformed, slot)
				}
				p.Slot = int(slot)
			}
			return n, nil
		case num == fieldPlayerCoord && typ == protowire.BytesType:
			raw, n := protowire.ConsumeBytes(v)
			if n < 0 {
				return n, nil
			}
			c, err := decodeCoord(raw)
			p.Coord = c
			return n, err
		case num == fieldPlayerColor && typ == protowire.Fixed32Type:
			color, n := protowire.ConsumeFixed32(v)
			p.Color = color
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, v), nil
	})
	if err == nil && !player.ValidSlot(p.Slot) {
		err = fmt.Errorf("%w: slot %d", ErrMalformed, p.Slot)
	}
	return p, err
}

func decodePlayers(b []byte) ([]player.Player, error) {
	players := []player.Player{}
	err := eachItem(b, func(raw []byte) error {
		p, err := decodePlayer(raw)
		players = append(players, p)
		return err
	})
	return players, err
}

// eachItem walks the repeated item field of a batch message.
func eachItem(b []byte, fn func(raw []byte) error) error {
	return each(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		if num != fieldBatchItem || typ != protowire.BytesType {
			return protowire.ConsumeFieldValue(num, typ, v), nil
		}
		raw, n := protowire.ConsumeBytes(v)
		if n < 0 {
			return n, nil
		}
		return n, fn(raw)
	})
}

func malformed(err error) error {
	return fmt.Errorf("%w: %v", ErrMalformed, err)
}

func clone(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return append([]byte(nil), b...)
}
