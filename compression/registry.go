// Package compression implements gestalt's named byte-to-byte codec
// registry: identity, zlib, deflate, gzip, bzip2, lzma, brotli and snappy,
// keyed bijectively by convenience name and MIME type.
package compression

import (
	"fmt"
	"sync"

	"github.com/claws/gestalt/gerrors"
)

// Codec compresses and decompresses byte slices. The identity codec's
// Compress/Decompress are both the identity function.
type Codec interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}

// Entry is one registered codec: a convenience name, a MIME type, and the
// codec implementation. The identity entry has an empty Name and MIME.
type Entry struct {
	Name string
	MIME string
	Codec
}

// Registry is the compression codec table. The zero value is usable.
// Registration is expected to happen during initialization, before any
// endpoint using the registry is started; lookups and registration are
// both safe for concurrent use from multiple goroutines.
type Registry struct {
	mu        sync.RWMutex
	byName    map[string]*Entry
	byMIME    map[string]*Entry
	nameToMIME map[string]string
	mimeToName map[string]string
}

// NewRegistry returns a Registry preloaded with the identity codec and
// every codec this module ships a Go implementation for.
func NewRegistry() *Registry {
	r := &Registry{
		byName:     make(map[string]*Entry),
		byMIME:     make(map[string]*Entry),
		nameToMIME: make(map[string]string),
		mimeToName: make(map[string]string),
	}
	r.Register("", "", identityCodec{})
	r.Register(NameZlib, MIMEZlib, zlibCodec{})
	r.Register(NameDeflate, MIMEDeflate, deflateCodec{})
	r.Register(NameGzip, MIMEGzip, gzipCodec{})
	r.Register(NameBzip2, MIMEBzip2, bzip2Codec{})
	r.Register(NameLZMA, MIMELZMA, lzmaCodec{})
	r.Register(NameBrotli, MIMEBrotli, brotliCodec{})
	r.Register(NameSnappy, MIMESnappy, snappyCodec{})
	return r
}

// Register adds or replaces a codec under name and mime. name == "" marks
// the identity codec.
func (r *Registry) Register(name, mime string, codec Codec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.byName == nil {
		r.byName = make(map[string]*Entry)
		r.byMIME = make(map[string]*Entry)
		r.nameToMIME = make(map[string]string)
		r.mimeToName = make(map[string]string)
	}
	e := &Entry{Name: name, MIME: mime, Codec: codec}
	r.byName[name] = e
	r.byMIME[mime] = e
	r.nameToMIME[name] = mime
	r.mimeToName[mime] = name
}

// GetCodec looks an entry up by convenience name or MIME type,
// whichever key matches.
func (r *Registry) GetCodec(nameOrMIME string) (*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.byName[nameOrMIME]; ok {
		return e, nil
	}
	if e, ok := r.byMIME[nameOrMIME]; ok {
		return e, nil
	}
	return nil, fmt.Errorf("compression codec %q: %w", nameOrMIME, gerrors.ErrUnknownCodec)
}

// SupportedCodecs lists the registered convenience names, including the
// identity codec's empty name. bothOnly does not change the result: the
// Codec interface requires both Compress and Decompress, so every
// registered codec has both sides.
func (r *Registry) SupportedCodecs(bothOnly bool) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	return names
}

// Compress encodes data with the codec named by nameOrMIME and returns the
// MIME type to record alongside the compressed bytes.
func (r *Registry) Compress(data []byte, nameOrMIME string) (mime string, out []byte, err error) {
	e, err := r.GetCodec(nameOrMIME)
	if err != nil {
		return "", nil, err
	}
	out, err = e.Compress(data)
	if err != nil {
		return "", nil, err
	}
	return e.MIME, out, nil
}

// Decompress reverses Compress.
func (r *Registry) Decompress(data []byte, nameOrMIME string) (mime string, out []byte, err error) {
	e, err := r.GetCodec(nameOrMIME)
	if err != nil {
		return "", nil, err
	}
	out, err = e.Decompress(data)
	if err != nil {
		return "", nil, err
	}
	return e.MIME, out, nil
}

// Default is the process-wide registry used when an endpoint or broker
// role is not constructed with an explicit one.
var Default = NewRegistry()
