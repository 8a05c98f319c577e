// Package stream's MTI (message type identifier) protocol frames each
// message with an 8-byte header of two little-endian uint32 fields:
// payload length and an opaque type identifier. Unlike NetstringParser, a
// payload length of zero is valid here — it delivers an empty-payload
// message carrying only the type id, a pure signal.
//
// Parsing reads the fixed-size header first, then reads exactly as many
// payload bytes as the header declares.
package stream

import (
	"encoding/binary"
	"fmt"

	"github.com/claws/gestalt/gerrors"
)

const mtiHeaderSize = 8

// MTIParser implements the length+id-prefixed framing protocol.
type MTIParser struct {
	buf     []byte
	state   parserState
	wantLen uint32
	typeID  uint32
}

// Feed implements Parser.
func (p *MTIParser) Feed(data []byte) ([]Message, error) {
	p.buf = append(p.buf, data...)
	var out []Message
	for {
		switch p.state {
		case stateWaitHeader:
			if len(p.buf) < mtiHeaderSize {
				return out, nil
			}
			length := binary.LittleEndian.Uint32(p.buf[0:4])
			typeID := binary.LittleEndian.Uint32(p.buf[4:8])
			if length > MaxPayloadLen {
				return out, fmt.Errorf("mti frame length %d: %w", length, gerrors.ErrInvalidFrame)
			}
			if length == 0 {
				p.buf = p.buf[mtiHeaderSize:]
				out = append(out, Message{Payload: nil, TypeID: typeID, HaveTypeID: true})
				continue
			}
			p.wantLen = length
			p.typeID = typeID
			p.state = stateWaitPayload
		case stateWaitPayload:
			total := mtiHeaderSize + int(p.wantLen)
			if len(p.buf) < total {
				return out, nil
			}
			payload := make([]byte, p.wantLen)
			copy(payload, p.buf[mtiHeaderSize:total])
			p.buf = p.buf[total:]
			p.state = stateWaitHeader
			out = append(out, Message{Payload: payload, TypeID: p.typeID, HaveTypeID: true})
		}
	}
}

// Frame implements Parser.
func (p *MTIParser) Frame(payload []byte, typeID uint32) ([]byte, error) {
	if len(payload) > MaxPayloadLen {
		return nil, fmt.Errorf("mti frame length %d: %w", len(payload), gerrors.ErrInvalidFrame)
	}
	out := make([]byte, mtiHeaderSize+len(payload))
	binary.LittleEndian.PutUint32(out[0:4], uint32(len(payload)))
	binary.LittleEndian.PutUint32(out[4:8], typeID)
	copy(out[mtiHeaderSize:], payload)
	return out, nil
}
