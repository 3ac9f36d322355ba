package gameencoder

import (
	"testing"

	"github.com/beka-birhanu/mazehem/maze"
	"github.com/beka-birhanu/mazehem/player"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestEncodeCellsBatch(t *testing.T) {
	m, err := maze.New(4, 3, maze.WithSeed(9))
	require.NoError(t, err)

	enc := Protobuf{}
	b, err := enc.Marshal(Cells{Cells: m.Cells()[:10]})
	require.NoError(t, err)

	d, err := enc.Unmarshal(b)
	require.NoError(t, err)
	batch, ok := d.(Cells)
	require.True(t, ok, "got %T", d)
	assert.Equal(t, m.Cells()[:10], normalizeLinks(batch.Cells))
}

func TestEncodePlayersSnapshot(t *testing.T) {
	roster := player.NewRoster(50, 50)
	roster[2].Coord = maze.NewCoord(7, 48)

	enc := Protobuf{}
	b, err := enc.Marshal(Players{Players: roster.Players()})
	require.NoError(t, err)

	d, err := enc.Unmarshal(b)
	require.NoError(t, err)
	assert.Equal(t, Players{Players: roster.Players()}, d)
}

func TestEncodeHandshakeMessages(t *testing.T) {
	enc := Protobuf{}

	b, err := enc.Marshal(Connection{})
	require.NoError(t, err)
	d, err := enc.Unmarshal(b)
	require.NoError(t, err)
	assert.Equal(t, Connection{}, d)

	b, err = enc.Marshal(PublicKeyOffer{Key: []byte("der")})
	require.NoError(t, err)
	d, err = enc.Unmarshal(b)
	require.NoError(t, err)
	assert.Equal(t, PublicKeyOffer{Key: []byte("der")}, d)

	b, err = enc.Marshal(Handshake{Ciphertext: []byte{1, 2, 3}})
	require.NoError(t, err)
	d, err = enc.Unmarshal(b)
	require.NoError(t, err)
	assert.Equal(t, Handshake{Ciphertext: []byte{1, 2, 3}}, d)
}

func TestEncodeKeyKeepsUndefined(t *testing.T) {
	enc := Protobuf{}
	b, err := enc.Marshal(Key{Direction: maze.Undefined})
	require.NoError(t, err)
	d, err := enc.Unmarshal(b)
	require.NoError(t, err)
	assert.Equal(t, Key{Direction: maze.Undefined}, d)

	_, err = enc.Marshal(Key{Direction: maze.Direction(42)})
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestUnmarshalRejectsGarbage(t *testing.T) {
	enc := Protobuf{}
	inputs := [][]byte{
		nil,
		{0xff},
		{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x01},
		[]byte("hello world"),
		protowire.AppendVarint(protowire.AppendTag(nil, fieldKey, protowire.VarintType), 9),
	}
	for _, in := range inputs {
		_, err := enc.Unmarshal(in)
		assert.ErrorIs(t, err, ErrMalformed, "input %x", in)
	}
}

func TestUnmarshalRejectsTwoVariants(t *testing.T) {
	enc := Protobuf{}
	a, err := enc.Marshal(Connection{})
	require.NoError(t, err)
	b, err := enc.Marshal(Key{Direction: maze.Up})
	require.NoError(t, err)

	_, err = enc.Unmarshal(append(a, b...))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestUnmarshalSkipsUnknownFields(t *testing.T) {
	enc := Protobuf{}
	b := protowire.AppendTag(nil, 99, protowire.BytesType)
	b = protowire.AppendBytes(b, []byte("future"))
	key, err := enc.Marshal(Key{Direction: maze.Left})
	require.NoError(t, err)

	d, err := enc.Unmarshal(append(b, key...))
	require.NoError(t, err)
	assert.Equal(t, Key{Direction: maze.Left}, d)
}

func TestUnmarshalRejectsBadSlot(t *testing.T) {
	enc := Protobuf{}
	b, err := enc.Marshal(Players{Players: []player.Player{{Slot: 0}}})
	require.NoError(t, err)
	_, err = enc.Unmarshal(b)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestMarshalUnknownVariant(t *testing.T) {
	_, err := Protobuf{}.Marshal(nil)
	assert.ErrorIs(t, err, ErrUnknownVariant)
}

// normalizeLinks maps empty link lists to nil so decoded cells compare
// equal to generated ones.
func normalizeLinks(cells []maze.Cell) []maze.Cell {
	for i := range cells {
		if len(cells[i].Links) == 0 {
			cells[i].Links = nil
		}
	}
	return cells
}
