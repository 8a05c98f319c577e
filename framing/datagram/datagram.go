// Package datagram implements gestalt's datagram framing protocols. Since
// UDP is message-oriented, one datagram is one frame: there is no buffer
// to maintain across calls, only a single parse/build pass per packet.
package datagram

import (
	"encoding/binary"
	"fmt"

	"github.com/claws/gestalt/gerrors"
)

// MaxPayloadLen mirrors the stream protocols' ceiling.
const MaxPayloadLen = 1<<31 - 1

// Message is one message recovered from a single datagram.
type Message struct {
	Payload    []byte
	TypeID     uint32
	HaveTypeID bool
}

// Protocol parses exactly one datagram's worth of bytes and builds the
// bytes for exactly one outbound datagram.
type Protocol interface {
	Parse(data []byte) (Message, error)
	Build(payload []byte, typeID uint32) ([]byte, error)
}

// NetstringProtocol mirrors the stream length-prefixed protocol's wire
// format, applied to a single datagram with no internal buffering. An
// empty payload is rejected at send time since a zero-length netstring
// datagram carries no distinguishable type information.
type NetstringProtocol struct{}

func (NetstringProtocol) Parse(data []byte) (Message, error) {
	if len(data) < 4 {
		return Message{}, fmt.Errorf("datagram shorter than netstring header: %w", gerrors.ErrInvalidFrame)
	}
	length := binary.LittleEndian.Uint32(data[:4])
	if length == 0 || length > MaxPayloadLen {
		return Message{}, fmt.Errorf("netstring datagram length %d: %w", length, gerrors.ErrInvalidFrame)
	}
	if len(data) != 4+int(length) {
		return Message{}, fmt.Errorf("netstring datagram: partial frame: %w", gerrors.ErrInvalidFrame)
	}
	payload := make([]byte, length)
	copy(payload, data[4:])
	return Message{Payload: payload}, nil
}

func (NetstringProtocol) Build(payload []byte, _ uint32) ([]byte, error) {
	if len(payload) == 0 || len(payload) > MaxPayloadLen {
		return nil, fmt.Errorf("netstring datagram length %d: %w", len(payload), gerrors.ErrTypeMismatch)
	}
	out := make([]byte, 4+len(payload))
	binary.LittleEndian.PutUint32(out[:4], uint32(len(payload)))
	copy(out[4:], payload)
	return out, nil
}

// MTIProtocol mirrors the stream length+id protocol: an 8-byte header of
// (length, type_id) little-endian uint32 fields. A zero-length payload is
// valid — an id-only signal carrying no data.
type MTIProtocol struct{}

func (MTIProtocol) Parse(data []byte) (Message, error) {
	if len(data) < 8 {
		return Message{}, fmt.Errorf("datagram shorter than mti header: %w", gerrors.ErrInvalidFrame)
	}
	length := binary.LittleEndian.Uint32(data[0:4])
	typeID := binary.LittleEndian.Uint32(data[4:8])
	if length > MaxPayloadLen {
		return Message{}, fmt.Errorf("mti datagram length %d: %w", length, gerrors.ErrInvalidFrame)
	}
	if len(data) != 8+int(length) {
		return Message{}, fmt.Errorf("mti datagram: partial frame: %w", gerrors.ErrInvalidFrame)
	}
	if length == 0 {
		return Message{TypeID: typeID, HaveTypeID: true}, nil
	}
	payload := make([]byte, length)
	copy(payload, data[8:])
	return Message{Payload: payload, TypeID: typeID, HaveTypeID: true}, nil
}

func (MTIProtocol) Build(payload []byte, typeID uint32) ([]byte, error) {
	if len(payload) > MaxPayloadLen {
		return nil, fmt.Errorf("mti datagram length %d: %w", len(payload), gerrors.ErrInvalidFrame)
	}
	out := make([]byte, 8+len(payload))
	binary.LittleEndian.PutUint32(out[0:4], uint32(len(payload)))
	binary.LittleEndian.PutUint32(out[4:8], typeID)
	copy(out[8:], payload)
	return out, nil
}
