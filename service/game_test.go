package service

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/beka-birhanu/mazehem/crypto"
	"github.com/beka-birhanu/mazehem/gameencoder"
	"github.com/beka-birhanu/mazehem/log"
	"github.com/beka-birhanu/mazehem/maze"
	"github.com/beka-birhanu/mazehem/player"
	"github.com/beka-birhanu/mazehem/service/i"
	"github.com/beka-birhanu/mazehem/socket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var testKey = sync.OnceValue(func() *crypto.RSA {
	k, err := crypto.GenerateRSA(1024)
	if err != nil {
		panic(err)
	}
	return k
})

type sentPacket struct {
	addr     netip.AddrPort
	data     gameencoder.Data
	delivery socket.Delivery
}

type fakeSocket struct {
	mu     sync.Mutex
	sent   []sentPacket
	events chan socket.Event
	failTo map[netip.AddrPort]bool
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{events: make(chan socket.Event, 64), failTo: make(map[netip.AddrPort]bool)}
}

func (f *fakeSocket) Send(addr netip.AddrPort, payload []byte, d socket.Delivery) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failTo[addr] {
		return errors.New("unreachable")
	}
	data, err := gameencoder.Protobuf{}.Unmarshal(payload)
	if err != nil {
		return err
	}
	f.sent = append(f.sent, sentPacket{addr: addr, data: data, delivery: d})
	return nil
}

func (f *fakeSocket) Events() <-chan socket.Event {
	return f.events
}

// take returns and clears the packets sent so far.
func (f *fakeSocket) take() []sentPacket {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.sent
	f.sent = nil
	return out
}

type fixture struct {
	server *Server
	socket *fakeSocket
	maze   *maze.Maze
	logs   *observer.ObservedLogs
}

func newFixture(t *testing.T, width, height uint) *fixture {
	t.Helper()
	m, err := maze.New(width, height, maze.WithSeed(1))
	require.NoError(t, err)

	core, logs := observer.New(zapcore.DebugLevel)
	sock := newFakeSocket()
	s, err := NewServer(&Config{
		Socket:      sock,
		Maze:        m,
		GameEncoder: gameencoder.Protobuf{},
		Handshaker:  testKey(),
		Logger:      log.FromZap(zap.New(core)),
	})
	require.NoError(t, err)
	return &fixture{server: s, socket: sock, maze: m, logs: logs}
}

func addr(n int) netip.AddrPort {
	return netip.MustParseAddrPort(fmt.Sprintf("10.0.0.%d:7070", n))
}

func (f *fixture) deliver(t *testing.T, from netip.AddrPort, d gameencoder.Data) {
	t.Helper()
	payload, err := gameencoder.Protobuf{}.Marshal(d)
	require.NoError(t, err)
	f.server.handleEvent(socket.Event{Kind: socket.EventPacket, Addr: from, Payload: payload})
}

// connect runs the whole handshake for from and clears the sent packets.
func (f *fixture) connect(t *testing.T, from netip.AddrPort) {
	t.Helper()
	f.deliver(t, from, gameencoder.Connection{})
	sent := f.socket.take()
	require.Len(t, sent, 1)
	offer, ok := sent[0].data.(gameencoder.PublicKeyOffer)
	require.True(t, ok)

	ct, err := crypto.EncryptChallenge(offer.Key)
	require.NoError(t, err)
	f.deliver(t, from, gameencoder.Handshake{Ciphertext: ct})
	f.socket.take()
}

func (f *fixture) sessionState(from netip.AddrPort) i.SessionState {
	s, ok := f.server.sessions.Lookup(from)
	if !ok {
		return i.StateUnknown
	}
	return s.State
}

func TestNewServerValidatesConfig(t *testing.T) {
	m, err := maze.New(3, 3)
	require.NoError(t, err)

	_, err = NewServer(&Config{Maze: m, GameEncoder: gameencoder.Protobuf{}, Handshaker: testKey()})
	assert.ErrorIs(t, err, ErrMissingSocket)
	_, err = NewServer(&Config{Socket: newFakeSocket(), GameEncoder: gameencoder.Protobuf{}, Handshaker: testKey()})
	assert.ErrorIs(t, err, ErrMissingMaze)
	_, err = NewServer(&Config{Socket: newFakeSocket(), Maze: m, Handshaker: testKey()})
	assert.ErrorIs(t, err, ErrMissingEncoder)
	_, err = NewServer(&Config{Socket: newFakeSocket(), Maze: m, GameEncoder: gameencoder.Protobuf{}})
	assert.ErrorIs(t, err, ErrMissingHandshaker)
}

func TestHandshakeAdmitsAndStreamsMaze(t *testing.T) {
	f := newFixture(t, 7, 5)
	client := addr(1)

	f.deliver(t, client, gameencoder.Connection{})
	assert.Equal(t, i.StateKeyOffered, f.sessionState(client))

	sent := f.socket.take()
	require.Len(t, sent, 1)
	assert.Equal(t, socket.Reliable, sent[0].delivery)
	offer, ok := sent[0].data.(gameencoder.PublicKeyOffer)
	require.True(t, ok)
	assert.Equal(t, testKey().PublicKey(), offer.Key)

	ct, err := crypto.EncryptChallenge(offer.Key)
	require.NoError(t, err)
	f.deliver(t, client, gameencoder.Handshake{Ciphertext: ct})
	assert.Equal(t, i.StateConnected, f.sessionState(client))

	received := map[maze.Coord]bool{}
	for _, p := range f.socket.take() {
		assert.Equal(t, client, p.addr)
		assert.Equal(t, socket.Reliable, p.delivery)
		batch, ok := p.data.(gameencoder.Cells)
		require.True(t, ok, "got %T", p.data)
		assert.LessOrEqual(t, len(batch.Cells), DefaultCellBatchSize)
		for _, c := range batch.Cells {
			received[c.Coord] = true
		}
	}
	assert.Len(t, received, f.maze.Len())
	assert.Equal(t, int64(1), f.server.Metrics().SessionsAdmitted.Load())
}

func TestHandshakeMismatchKeepsSessionPending(t *testing.T) {
	f := newFixture(t, 5, 5)
	client := addr(1)

	f.deliver(t, client, gameencoder.Connection{})
	f.socket.take()

	bad, err := crypto.Encrypt(testKey().PublicKey(), []byte("wrong"))
	require.NoError(t, err)
	f.deliver(t, client, gameencoder.Handshake{Ciphertext: bad})
	f.deliver(t, client, gameencoder.Handshake{Ciphertext: []byte("garbage")})
	assert.Equal(t, i.StateKeyOffered, f.sessionState(client))
	assert.Empty(t, f.socket.take())
	assert.Equal(t, int64(2), f.server.Metrics().HandshakesFailed.Load())

	// The client may retry without reconnecting.
	good, err := crypto.EncryptChallenge(testKey().PublicKey())
	require.NoError(t, err)
	f.deliver(t, client, gameencoder.Handshake{Ciphertext: good})
	assert.Equal(t, i.StateConnected, f.sessionState(client))
}

func TestHandshakeWithoutConnectionIsDropped(t *testing.T) {
	f := newFixture(t, 5, 5)
	ct, err := crypto.EncryptChallenge(testKey().PublicKey())
	require.NoError(t, err)

	f.deliver(t, addr(1), gameencoder.Handshake{Ciphertext: ct})
	assert.Equal(t, i.StateUnknown, f.sessionState(addr(1)))
	assert.Empty(t, f.socket.take())
}

func TestDuplicateConnectionIsNoOp(t *testing.T) {
	f := newFixture(t, 5, 5)
	f.connect(t, addr(1))

	f.deliver(t, addr(1), gameencoder.Connection{})
	assert.Empty(t, f.socket.take())
	assert.Equal(t, 1, f.server.sessions.AdmittedCount())

	s, _ := f.server.sessions.Lookup(addr(1))
	assert.Equal(t, 1, s.Slot)
}

func TestSessionCap(t *testing.T) {
	f := newFixture(t, 6, 6)
	for n := 1; n <= 4; n++ {
		f.connect(t, addr(n))
	}

	fifth := addr(5)
	f.deliver(t, fifth, gameencoder.Connection{})
	assert.Empty(t, f.socket.take(), "no key offered to a fifth client")
	assert.Equal(t, i.StateUnknown, f.sessionState(fifth))
	assert.Equal(t, int64(1), f.server.Metrics().ConnectionsIgnored.Load())

	f.server.broadcast()
	recipients := map[netip.AddrPort]bool{}
	for _, p := range f.socket.take() {
		recipients[p.addr] = true
	}
	assert.Len(t, recipients, 4)
	assert.False(t, recipients[fifth])
}

func TestSlotsFollowJoinOrder(t *testing.T) {
	f := newFixture(t, 6, 6)
	for n := 1; n <= 3; n++ {
		f.connect(t, addr(n))
	}
	for n := 1; n <= 3; n++ {
		s, ok := f.server.sessions.Lookup(addr(n))
		require.True(t, ok)
		assert.Equal(t, n, s.Slot)
	}
}

func TestBroadcastSendsFullRoster(t *testing.T) {
	f := newFixture(t, 6, 6)
	f.connect(t, addr(1))

	f.server.broadcast()
	sent := f.socket.take()
	require.Len(t, sent, 1)
	assert.Equal(t, socket.BestEffort, sent[0].delivery)
	snapshot, ok := sent[0].data.(gameencoder.Players)
	require.True(t, ok)
	assert.Equal(t, player.NewRoster(6, 6).Players(), snapshot.Players)
}

func TestRejectedMoveLeavesPlayerInPlace(t *testing.T) {
	// Find a seed whose maze has no passage between (0,0) and (0,1).
	var m *maze.Maze
	for seed := uint64(0); ; seed++ {
		var err error
		m, err = maze.New(6, 6, maze.WithSeed(seed))
		require.NoError(t, err)
		if !m.Connected(maze.NewCoord(0, 0), maze.NewCoord(0, 1)) {
			break
		}
	}

	sock := newFakeSocket()
	s, err := NewServer(&Config{Socket: sock, Maze: m, GameEncoder: gameencoder.Protobuf{}, Handshaker: testKey()})
	require.NoError(t, err)
	f := &fixture{server: s, socket: sock, maze: m}
	f.connect(t, addr(1))

	f.deliver(t, addr(1), gameencoder.Key{Direction: maze.Down})
	f.server.broadcast()
	sent := sock.take()
	require.Len(t, sent, 1)
	snapshot := sent[0].data.(gameencoder.Players)
	assert.Equal(t, maze.NewCoord(0, 0), snapshot.Players[0].Coord)
	assert.Equal(t, int64(1), s.Metrics().MovesRejected.Load())
}

func TestMovesFollowPassages(t *testing.T) {
	f := newFixture(t, 8, 8)
	f.connect(t, addr(1))

	for step := 0; step < 200; step++ {
		before := f.server.roster[0].Coord
		dir := maze.Directions[step%len(maze.Directions)]
		f.deliver(t, addr(1), gameencoder.Key{Direction: dir})
		after := f.server.roster[0].Coord
		if after != before {
			assert.True(t, f.maze.Connected(before, after), "moved through a wall %s -> %s", before, after)
		}
		assert.True(t, f.maze.InBound(after))
	}
	assert.Equal(t, player.NewRoster(8, 8)[1], f.server.roster[1], "other slots untouched")
}

func TestKeyFromUnadmittedAddressIgnored(t *testing.T) {
	f := newFixture(t, 5, 5)
	f.deliver(t, addr(9), gameencoder.Key{Direction: maze.Right})
	f.deliver(t, addr(9), gameencoder.Connection{})
	f.deliver(t, addr(9), gameencoder.Key{Direction: maze.Right})
	assert.Equal(t, player.NewRoster(5, 5), f.server.roster)
}

func TestTimeoutFreesSlotAndKeepsPosition(t *testing.T) {
	f := newFixture(t, 8, 8)
	f.connect(t, addr(1))
	f.connect(t, addr(2))

	moved := maze.NewCoord(3, 3)
	f.server.roster[0].Coord = moved
	f.server.handleEvent(socket.Event{Kind: socket.EventTimeout, Addr: addr(1)})

	assert.Equal(t, i.StateUnknown, f.sessionState(addr(1)))
	assert.Equal(t, moved, f.server.roster[0].Coord)

	f.server.broadcast()
	for _, p := range f.socket.take() {
		assert.NotEqual(t, addr(1), p.addr)
	}

	// A newcomer takes the freed slot.
	f.connect(t, addr(3))
	s, ok := f.server.sessions.Lookup(addr(3))
	require.True(t, ok)
	assert.Equal(t, 1, s.Slot)
	assert.Equal(t, moved, f.server.roster[0].Coord)
	assert.NotEmpty(t, f.logs.FilterMessageSnippet("disconnected").All())
}

func TestMalformedPacketDropped(t *testing.T) {
	f := newFixture(t, 5, 5)
	f.server.handleEvent(socket.Event{Kind: socket.EventPacket, Addr: addr(1), Payload: []byte{0xff, 0xff}})
	f.deliver(t, addr(1), gameencoder.Players{Players: player.NewRoster(5, 5).Players()})

	assert.Equal(t, int64(2), f.server.Metrics().PacketsMalformed.Load())
	assert.Empty(t, f.socket.take())
}

func TestGoalRecordsFirstArrival(t *testing.T) {
	f := newFixture(t, 5, 5)
	f.connect(t, addr(1))

	goal := f.maze.Goal()
	var next maze.Coord
	var dir maze.Direction
	for _, d := range maze.Directions {
		if n, ok := f.maze.Move(goal, d); ok {
			next, dir = n, d
			break
		}
	}
	f.server.roster[0].Coord = next
	f.deliver(t, addr(1), gameencoder.Key{Direction: opposite(dir)})

	assert.Equal(t, goal, f.server.roster[0].Coord)
	f.server.broadcast()
	assert.Equal(t, 1, f.server.Info().Winner)
}

func TestRunBroadcastsOnTickAndStops(t *testing.T) {
	f := newFixture(t, 5, 5)
	f.server.tickInterval = 5 * time.Millisecond
	f.connect(t, addr(1))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.server.Run(ctx) }()

	payload, err := gameencoder.Protobuf{}.Marshal(gameencoder.Key{Direction: maze.Undefined})
	require.NoError(t, err)
	f.socket.events <- socket.Event{Kind: socket.EventPacket, Addr: addr(1), Payload: payload}

	assert.Eventually(t, func() bool {
		return f.server.Metrics().Broadcasts.Load() >= 3
	}, time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	info := f.server.Info()
	assert.Len(t, info.Players, player.Slots)
	require.Len(t, info.Sessions, 1)
	assert.Equal(t, i.StateConnected, info.Sessions[0].State)
}

func TestBroadcastSendErrorsCounted(t *testing.T) {
	f := newFixture(t, 5, 5)
	f.connect(t, addr(1))
	f.socket.failTo[addr(1)] = true

	f.server.broadcast()
	assert.Equal(t, int64(1), f.server.Metrics().SendErrors.Load())
}

func opposite(d maze.Direction) maze.Direction {
	switch d {
	case maze.Up:
		return maze.Down
	case maze.Down:
		return maze.Up
	case maze.Left:
		return maze.Right
	default:
		return maze.Left
	}
}
