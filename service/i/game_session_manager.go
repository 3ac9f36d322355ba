package i

import (
	"net/netip"
	"time"

	"github.com/google/uuid"
)

// SessionState is the handshake progress of a remote address.
type SessionState uint8

const (
	StateUnknown SessionState = iota
	StateKeyOffered
	StateConnected
)

func (s SessionState) String() string {
	switch s {
	case StateKeyOffered:
		return "key-offered"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// SessionInfo is a read-only view of a client session.
type SessionInfo struct {
	ID        uuid.UUID
	Addr      netip.AddrPort
	Slot      int // 1..4, 0 until connected
	State     SessionState
	CreatedAt time.Time
}
