package gossip

import (
	"strings"
)

// Wire protocol: a datagram is "<kind>:<name>" where name is the sender's
// own identity. There is no length prefix, checksum or version.

// NodeID names a peer. In practice it is the peer's hostname.
type NodeID string

type MsgType uint8

const (
	MsgUnknown MsgType = iota
	MsgPing
	MsgPong
)

const (
	pingPrefix = "ping:"
	pongPrefix = "pong:"
)

// MaxDatagram is the largest payload the transports will read.
const MaxDatagram = 1024

func (t MsgType) String() string {
	switch t {
	case MsgPing:
		return "ping"
	case MsgPong:
		return "pong"
	default:
		return "unknown"
	}
}

type Message struct {
	Type MsgType
	From NodeID
	// Raw holds the original payload, kept for logging unknown messages.
	Raw []byte
}

// Encode renders a ping or pong. Unknown messages encode to their raw bytes.
func Encode(m Message) []byte {
	switch m.Type {
	case MsgPing:
		return []byte(pingPrefix + string(m.From))
	case MsgPong:
		return []byte(pongPrefix + string(m.From))
	default:
		return append([]byte(nil), m.Raw...)
	}
}

// Decode classifies a datagram. The sender name is everything after the
// prefix, byte for byte.
func Decode(b []byte) Message {
	s := string(b)
	raw := append([]byte(nil), b...)
	switch {
	case strings.HasPrefix(s, pingPrefix):
		return Message{Type: MsgPing, From: NodeID(s[len(pingPrefix):]), Raw: raw}
	case strings.HasPrefix(s, pongPrefix):
		return Message{Type: MsgPong, From: NodeID(s[len(pongPrefix):]), Raw: raw}
	default:
		return Message{Type: MsgUnknown, Raw: raw}
	}
}

func Ping(from NodeID) []byte { return Encode(Message{Type: MsgPing, From: from}) }

func Pong(from NodeID) []byte { return Encode(Message{Type: MsgPong, From: from}) }

// ValidName reports whether id can be carried in a ping or pong.
func ValidName(id NodeID) bool {
	return id != "" && !strings.Contains(string(id), ":")
}
