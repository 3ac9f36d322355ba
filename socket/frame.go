package socket

import "encoding/binary"

// Datagram kinds.
const (
	kindUnreliable byte = iota
	kindReliable
	kindAck
	kindHeartbeat
)

// headerSize is kind (1) + sequence number (4).
const headerSize = 5

func frame(kind byte, seq uint32, payload []byte) []byte {
	b := make([]byte, headerSize+len(payload))
	b[0] = kind
	binary.BigEndian.PutUint32(b[1:headerSize], seq)
	copy(b[headerSize:], payload)
	return b
}

func parseFrame(b []byte) (kind byte, seq uint32, payload []byte, ok bool) {
	if len(b) < headerSize || b[0] > kindHeartbeat {
		return 0, 0, nil, false
	}
	return b[0], binary.BigEndian.Uint32(b[1:headerSize]), b[headerSize:], true
}
