// Package peer generates the opaque peer identifiers that stream and
// datagram endpoints assign to a connection as soon as it is established.
package peer

import (
	"crypto/rand"
	"encoding/hex"
)

// ID is a 10 hex character token derived from 5 random bytes. It is a
// routing key into an in-memory map, never serialized onto the wire.
type ID string

// New generates a fresh peer ID. It only fails if the system entropy
// source is unavailable, which crypto/rand surfaces as a panic-worthy
// condition on every supported platform, so the error is not expected in
// practice but is still returned rather than swallowed.
func New() (ID, error) {
	var buf [5]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	return ID(hex.EncodeToString(buf[:])), nil
}
