package stream

import (
	"encoding/binary"
	"fmt"

	"github.com/claws/gestalt/gerrors"
)

const netstringHeaderSize = 4

type parserState int

const (
	stateWaitHeader parserState = iota
	stateWaitPayload
)

// NetstringParser implements the length-prefixed framing protocol: one
// uint32 little-endian length field followed by that many payload bytes.
// A length of zero or greater than MaxPayloadLen is invalid and closes
// the connection.
type NetstringParser struct {
	buf      []byte
	state    parserState
	wantLen  uint32
}

// Feed implements Parser.
func (p *NetstringParser) Feed(data []byte) ([]Message, error) {
	p.buf = append(p.buf, data...)
	var out []Message
	for {
		switch p.state {
		case stateWaitHeader:
			if len(p.buf) < netstringHeaderSize {
				return out, nil
			}
			length := binary.LittleEndian.Uint32(p.buf[:netstringHeaderSize])
			if length == 0 || length > MaxPayloadLen {
				return out, fmt.Errorf("netstring frame length %d: %w", length, gerrors.ErrInvalidFrame)
			}
			p.wantLen = length
			p.state = stateWaitPayload
		case stateWaitPayload:
			total := netstringHeaderSize + int(p.wantLen)
			if len(p.buf) < total {
				return out, nil
			}
			payload := make([]byte, p.wantLen)
			copy(payload, p.buf[netstringHeaderSize:total])
			p.buf = p.buf[total:]
			p.state = stateWaitHeader
			out = append(out, Message{Payload: payload})
		}
	}
}

// Frame implements Parser. typeID is ignored.
func (p *NetstringParser) Frame(payload []byte, _ uint32) ([]byte, error) {
	if len(payload) == 0 || len(payload) > MaxPayloadLen {
		return nil, fmt.Errorf("netstring frame length %d: %w", len(payload), gerrors.ErrInvalidFrame)
	}
	out := make([]byte, netstringHeaderSize+len(payload))
	binary.LittleEndian.PutUint32(out[:netstringHeaderSize], uint32(len(payload)))
	copy(out[netstringHeaderSize:], payload)
	return out, nil
}
