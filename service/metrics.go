package service

import "sync/atomic"

// Metrics counts what the game loop did. Counters are written by the loop
// and may be read from any goroutine.
type Metrics struct {
	PacketsMalformed   atomic.Int64 // undecodable payloads
	MovesAccepted      atomic.Int64
	MovesRejected      atomic.Int64 // illegal or stale Key messages
	HandshakesFailed   atomic.Int64 // decryption errors and challenge mismatches
	ConnectionsIgnored atomic.Int64 // refused because the table was full
	SessionsAdmitted   atomic.Int64
	SessionsRemoved    atomic.Int64
	Broadcasts         atomic.Int64
	SendErrors         atomic.Int64
}

// Snapshot returns the current counter values.
func (m *Metrics) Snapshot() map[string]int64 {
	return map[string]int64{
		"packets_malformed":   m.PacketsMalformed.Load(),
		"moves_accepted":      m.MovesAccepted.Load(),
		"moves_rejected":      m.MovesRejected.Load(),
		"handshakes_failed":   m.HandshakesFailed.Load(),
		"connections_ignored": m.ConnectionsIgnored.Load(),
		"sessions_admitted":   m.SessionsAdmitted.Load(),
		"sessions_removed":    m.SessionsRemoved.Load(),
		"broadcasts":          m.Broadcasts.Load(),
		"send_errors":         m.SendErrors.Load(),
	}
}
