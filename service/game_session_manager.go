package service

import (
	"errors"
	"net/netip"
	"time"

	"github.com/beka-birhanu/mazehem/player"
	"github.com/beka-birhanu/mazehem/service/i"
	"github.com/google/uuid"
)

// Session table errors.
var (
	ErrSessionTableFull = errors.New("session table full")
	ErrTooManyPending   = errors.New("too many pending handshakes")
	ErrUnknownSession   = errors.New("unknown session")
)

const (
	maxSessions        = player.Slots // admitted sessions, one per slot
	maxPendingSessions = 16           // sessions waiting for a handshake
)

// ClientSession binds a remote address to its handshake state and, once
// connected, to a player slot.
type ClientSession struct {
	ID        uuid.UUID
	Addr      netip.AddrPort
	Slot      int // 1..4 once connected
	State     i.SessionState
	CreatedAt time.Time
}

func (s *ClientSession) info() i.SessionInfo {
	return i.SessionInfo{ID: s.ID, Addr: s.Addr, Slot: s.Slot, State: s.State, CreatedAt: s.CreatedAt}
}

// SessionTable tracks every address that started a handshake. It is owned
// by the game loop and not safe for concurrent use.
type SessionTable struct {
	sessions map[netip.AddrPort]*ClientSession
	slots    [player.Slots]*ClientSession
	pending  int
}

// NewSessionTable returns an empty table.
func NewSessionTable() *SessionTable {
	return &SessionTable{sessions: make(map[netip.AddrPort]*ClientSession)}
}

// Lookup returns the session for addr.
func (t *SessionTable) Lookup(addr netip.AddrPort) (*ClientSession, bool) {
	s, ok := t.sessions[addr]
	return s, ok
}

// Offer records that a key was offered to addr. An address that already has
// a session keeps it. New addresses are refused while every slot is taken or
// too many handshakes are pending.
func (t *SessionTable) Offer(addr netip.AddrPort, now time.Time) (*ClientSession, error) {
	if s, ok := t.sessions[addr]; ok {
		return s, nil
	}
	if t.AdmittedCount() >= maxSessions {
		return nil, ErrSessionTableFull
	}
	if t.pending >= maxPendingSessions {
		return nil, ErrTooManyPending
	}

	s := &ClientSession{
		ID:        uuid.New(),
		Addr:      addr,
		State:     i.StateKeyOffered,
		CreatedAt: now,
	}
	t.sessions[addr] = s
	t.pending++
	return s, nil
}

// Admit promotes a pending session to connected and binds the lowest free
// slot to it, which is join order on a fresh server.
func (t *SessionTable) Admit(addr netip.AddrPort) (*ClientSession, error) {
	s, ok := t.sessions[addr]
	if !ok {
		return nil, ErrUnknownSession
	}
	if s.State == i.StateConnected {
		return s, nil
	}
	for idx, bound := range t.slots {
		if bound != nil {
			continue
		}
		t.slots[idx] = s
		s.Slot = idx + 1
		s.State = i.StateConnected
		t.pending--
		return s, nil
	}
	return nil, ErrSessionTableFull
}

// Remove deletes the session for addr and frees its slot.
func (t *SessionTable) Remove(addr netip.AddrPort) (*ClientSession, bool) {
	s, ok := t.sessions[addr]
	if !ok {
		return nil, false
	}
	delete(t.sessions, addr)
	if s.State == i.StateConnected {
		t.slots[s.Slot-1] = nil
	} else {
		t.pending--
	}
	return s, true
}

// Admitted returns the connected sessions in slot order.
func (t *SessionTable) Admitted() []*ClientSession {
	out := make([]*ClientSession, 0, maxSessions)
	for _, s := range t.slots {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

// AdmittedCount returns the number of connected sessions.
func (t *SessionTable) AdmittedCount() int {
	n := 0
	for _, s := range t.slots {
		if s != nil {
			n++
		}
	}
	return n
}

// PendingCount returns the number of sessions still in the handshake.
func (t *SessionTable) PendingCount() int {
	return t.pending
}

// Infos returns a copy of every session, connected ones first in slot order.
func (t *SessionTable) Infos() []i.SessionInfo {
	out := make([]i.SessionInfo, 0, len(t.sessions))
	for _, s := range t.Admitted() {
		out = append(out, s.info())
	}
	for _, s := range t.sessions {
		if s.State != i.StateConnected {
			out = append(out, s.info())
		}
	}
	return out
}
