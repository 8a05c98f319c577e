// Package payload implements gestalt's encode/decode pipeline: serialize
// then optionally compress on the way out, decompress then deserialize on
// the way in, threading type identifiers and compression labels through a
// caller-owned headers map.
package payload

import (
	"github.com/claws/gestalt/compression"
	"github.com/claws/gestalt/serialization"
)

// Header keys placed into the caller-owned Headers map.
const (
	HeaderTypeID       = "x-type-id"
	HeaderCompression  = "compression"
)

// Options configures one Encode/Decode call.
type Options struct {
	// Serialization is a convenience name or MIME type; empty picks the
	// registry's type-based default.
	Serialization string
	// Compression is a convenience name or MIME type; empty skips
	// compression entirely.
	Compression string
	// TypeIdentifier is consulted for schema-bound serializers on encode.
	// On decode, when HaveTypeID is false, Decode fills it from an int
	// value under Headers[HeaderTypeID].
	TypeIdentifier int
	HaveTypeID     bool
}

// Pipeline binds a serialization and compression registry together. The
// zero value uses the process-wide default registries.
type Pipeline struct {
	Serializers  *serialization.Registry
	Compressors  *compression.Registry
}

// Default is the pipeline built from the package-wide default registries.
var Default = &Pipeline{Serializers: serialization.Default, Compressors: compression.Default}

func (p *Pipeline) serializers() *serialization.Registry {
	if p.Serializers != nil {
		return p.Serializers
	}
	return serialization.Default
}

func (p *Pipeline) compressors() *compression.Registry {
	if p.Compressors != nil {
		return p.Compressors
	}
	return compression.Default
}

// Encode serializes value, optionally compresses the result, and returns
// the bytes to place on the wire plus the content_type/content_encoding to
// carry alongside them. headers receives x-type-id (if the serializer is
// schema-bound and resolved one) and compression (the MIME type of the
// compression codec used), mutating the caller's map in place.
func (p *Pipeline) Encode(value any, opt Options, headers map[string]any) (contentType string, contentEncoding serialization.ContentEncoding, body []byte, err error) {
	extras := &serialization.Extras{TypeIdentifier: opt.TypeIdentifier, HaveTypeID: opt.HaveTypeID}
	contentType, contentEncoding, body, err = p.serializers().Dumps(value, opt.Serialization, extras)
	if err != nil {
		return "", "", nil, err
	}
	if extras.HaveTypeID && headers != nil {
		headers[HeaderTypeID] = extras.TypeIdentifier
	}
	if opt.Compression != "" {
		mime, compressed, cerr := p.compressors().Compress(body, opt.Compression)
		if cerr != nil {
			return "", "", nil, cerr
		}
		body = compressed
		if headers != nil {
			headers[HeaderCompression] = mime
		}
	}
	return contentType, contentEncoding, body, nil
}

// Decode reverses Encode: it decompresses body when headers carries a
// compression label, then deserializes with the serializer named by
// contentType, passing through opt.TypeIdentifier/HaveTypeID for
// schema-bound formats. When opt.HaveTypeID is false and
// headers[HeaderTypeID] holds an int, that value is used.
func (p *Pipeline) Decode(body []byte, contentType string, opt Options, headers map[string]any) (any, error) {
	if headers != nil {
		if compMIME, ok := headers[HeaderCompression]; ok {
			if s, ok := compMIME.(string); ok && s != "" {
				_, decompressed, err := p.compressors().Decompress(body, s)
				if err != nil {
					return nil, err
				}
				body = decompressed
			}
		}
		if !opt.HaveTypeID {
			if tid, ok := headers[HeaderTypeID]; ok {
				if n, ok := tid.(int); ok {
					opt.TypeIdentifier = n
					opt.HaveTypeID = true
				}
			}
		}
	}
	extras := &serialization.Extras{TypeIdentifier: opt.TypeIdentifier, HaveTypeID: opt.HaveTypeID}
	return p.serializers().Loads(body, contentType, extras)
}
