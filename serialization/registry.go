// Package serialization implements gestalt's named value-to-bytes codec
// registry (raw, text, JSON, msgpack, YAML, protobuf, avro) and the
// type-identifier registry that lets schema-bound formats round-trip over
// a wire carrying no native type information.
package serialization

import (
	"fmt"
	"sync"

	"github.com/claws/gestalt/gerrors"
	"google.golang.org/protobuf/proto"
)

// ContentEncoding records whether a serializer's bytes are meant to be
// interpreted as UTF-8 text or as opaque binary.
type ContentEncoding string

const (
	EncodingUTF8   ContentEncoding = "utf-8"
	EncodingBinary ContentEncoding = "binary"
)

// Extras carries the side information a codec's Dumps/Loads may need
// beyond the value and bytes themselves — today only the schema-bound
// codecs (protobuf, avro) use it, to carry the type_identifier.
type Extras struct {
	TypeIdentifier int
	HaveTypeID     bool
}

// Serializer is the interface every registered codec implements.
type Serializer interface {
	Dumps(value any, extras *Extras) ([]byte, error)
	Loads(data []byte, extras *Extras) (any, error)
}

// Each schema-bound serializer (protobuf, avro) owns its own id-to-schema
// table internally — see protobufSerializer.RegisterMessage and
// avroSerializer.RegisterSchema — since the shape of a "schema handle"
// differs enough between the two (a message prototype vs. a parsed avro
// schema) that a single generic map adds a layer without removing one.
// Both let a caller supply an id or let the registry auto-assign the next
// unused one; ids must be registered in the same order on both ends of a
// connection to agree.

// Entry is one registered serializer: a convenience name, a MIME type,
// its content encoding, and the serializer implementation.
type Entry struct {
	Name            string
	MIME            string
	ContentEncoding ContentEncoding
	Serializer
}

// Registry is the serialization codec table.
type Registry struct {
	mu          sync.RWMutex
	byName      map[string]*Entry
	byMIME      map[string]*Entry
	defaultName string
}

// NewRegistry returns a Registry preloaded with every serializer this
// module ships, defaulting to JSON when no name is given to Dumps.
func NewRegistry() *Registry {
	r := &Registry{
		byName:      make(map[string]*Entry),
		byMIME:      make(map[string]*Entry),
		defaultName: NameJSON,
	}
	r.Register(&Entry{Name: NameRaw, MIME: MIMERaw, ContentEncoding: EncodingBinary, Serializer: rawSerializer{}})
	r.Register(&Entry{Name: NameText, MIME: MIMEText, ContentEncoding: EncodingUTF8, Serializer: textSerializer{}})
	r.Register(&Entry{Name: NameJSON, MIME: MIMEJSON, ContentEncoding: EncodingUTF8, Serializer: jsonSerializer{}})
	r.Register(&Entry{Name: NameMsgpack, MIME: MIMEMsgpack, ContentEncoding: EncodingBinary, Serializer: msgpackSerializer{}})
	r.Register(&Entry{Name: NameYAML, MIME: MIMEYAML, ContentEncoding: EncodingUTF8, Serializer: yamlSerializer{}})
	r.Register(&Entry{Name: NameProtobuf, MIME: MIMEProtobuf, ContentEncoding: EncodingBinary, Serializer: &protobufSerializer{}})
	r.Register(&Entry{Name: NameAvro, MIME: MIMEAvro, ContentEncoding: EncodingBinary, Serializer: &avroSerializer{}})
	return r
}

// RegisterProtobufMessage binds id (or the next free id when id is 0) to
// prototype's message type for the registry's protobuf entry, returning
// the id it was bound to.
func (r *Registry) RegisterProtobufMessage(id int, prototype proto.Message) int {
	e, err := r.GetEntry(NameProtobuf)
	if err != nil {
		panic("serialization: protobuf entry missing from registry")
	}
	return e.Serializer.(*protobufSerializer).RegisterMessage(id, prototype)
}

// GetProtobufIDForObject returns the type_identifier value was registered
// under via RegisterProtobufMessage, if any.
func (r *Registry) GetProtobufIDForObject(value proto.Message) (int, bool) {
	e, err := r.GetEntry(NameProtobuf)
	if err != nil {
		return 0, false
	}
	return e.Serializer.(*protobufSerializer).GetIDForObject(value)
}

// RegisterAvroSchema parses and binds schemaJSON to id (or the next free
// id when id is 0) for the registry's avro entry.
func (r *Registry) RegisterAvroSchema(id int, schemaJSON string) (int, error) {
	e, err := r.GetEntry(NameAvro)
	if err != nil {
		return 0, err
	}
	return e.Serializer.(*avroSerializer).RegisterSchema(id, schemaJSON)
}

// Register adds or replaces e under its Name and MIME keys.
func (r *Registry) Register(e *Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[e.Name] = e
	r.byMIME[e.MIME] = e
}

// SetDefault changes the serializer Dumps falls back to when no name is
// given and the value is neither []byte nor string.
func (r *Registry) SetDefault(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaultName = name
}

// GetEntry looks up by convenience name or MIME type.
func (r *Registry) GetEntry(nameOrMIME string) (*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.byName[nameOrMIME]; ok {
		return e, nil
	}
	if e, ok := r.byMIME[nameOrMIME]; ok {
		return e, nil
	}
	return nil, fmt.Errorf("serializer %q: %w", nameOrMIME, gerrors.ErrUnknownCodec)
}

// Dumps encodes value, returning the MIME type, content encoding and
// bytes to carry on the wire. When name is empty, resolution falls back
// by Go type: []byte -> raw, string -> text, else the registry's
// configured default (normally json).
func (r *Registry) Dumps(value any, name string, extras *Extras) (mime string, enc ContentEncoding, data []byte, err error) {
	if name == "" {
		switch value.(type) {
		case []byte:
			name = NameRaw
		case string:
			name = NameText
		default:
			r.mu.RLock()
			name = r.defaultName
			r.mu.RUnlock()
		}
	}
	e, err := r.GetEntry(name)
	if err != nil {
		return "", "", nil, err
	}
	data, err = e.Dumps(value, extras)
	if err != nil {
		return "", "", nil, fmt.Errorf("encode with %q: %w", name, err)
	}
	return e.MIME, e.ContentEncoding, data, nil
}

// Loads decodes data using the serializer named by mime (or convenience
// name). An empty payload is returned unchanged.
func (r *Registry) Loads(data []byte, mime string, extras *Extras) (any, error) {
	if len(data) == 0 {
		return data, nil
	}
	e, err := r.GetEntry(mime)
	if err != nil {
		return nil, err
	}
	v, err := e.Loads(data, extras)
	if err != nil {
		return nil, fmt.Errorf("decode with %q: %w", mime, err)
	}
	return v, nil
}

// Default is the process-wide registry used when a component is not
// constructed with an explicit one.
var Default = NewRegistry()
