package serialization

import (
	"fmt"
	"sync"

	"github.com/claws/gestalt/gerrors"
	"google.golang.org/protobuf/proto"
)

const (
	NameProtobuf = "protobuf"
	MIMEProtobuf = "application/x-protobuf"
)

// protobufSerializer resolves messages by an explicitly registered
// integer type_identifier rather than by looking descriptors up in a
// process-wide symbol database. RegisterMessage binds an id to a
// prototype instance; Dumps/Loads use proto.Clone/proto.Marshal against
// that prototype.
type protobufSerializer struct {
	mu        sync.RWMutex
	prototype map[int]proto.Message
	idByName  map[string]int
}

// RegisterMessage binds id to the concrete type of prototype. If id is 0
// the next unused positive integer is assigned and returned.
func (s *protobufSerializer) RegisterMessage(id int, prototype proto.Message) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.prototype == nil {
		s.prototype = make(map[int]proto.Message)
		s.idByName = make(map[string]int)
	}
	if id == 0 {
		id = 1
		for {
			if _, taken := s.prototype[id]; !taken {
				break
			}
			id++
		}
	}
	s.prototype[id] = prototype
	s.idByName[string(prototype.ProtoReflect().Descriptor().FullName())] = id
	return id
}

// GetIDForObject returns the id prototype was registered under, if any.
func (s *protobufSerializer) GetIDForObject(value proto.Message) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.idByName[string(value.ProtoReflect().Descriptor().FullName())]
	return id, ok
}

func (s *protobufSerializer) Dumps(value any, extras *Extras) ([]byte, error) {
	msg, ok := value.(proto.Message)
	if !ok {
		return nil, fmt.Errorf("protobuf serializer requires proto.Message, got %T: %w", value, gerrors.ErrTypeMismatch)
	}
	if extras != nil && !extras.HaveTypeID {
		s.mu.RLock()
		name := string(msg.ProtoReflect().Descriptor().FullName())
		if id, ok := s.idByName[name]; ok {
			extras.TypeIdentifier = id
			extras.HaveTypeID = true
		}
		s.mu.RUnlock()
	}
	return proto.Marshal(msg)
}

func (s *protobufSerializer) Loads(data []byte, extras *Extras) (any, error) {
	if extras == nil || !extras.HaveTypeID {
		return nil, fmt.Errorf("protobuf decode requires a type_identifier in extras")
	}
	s.mu.RLock()
	prototype, ok := s.prototype[extras.TypeIdentifier]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("protobuf type_identifier %d: %w", extras.TypeIdentifier, gerrors.ErrUnknownCodec)
	}
	msg := proto.Clone(prototype)
	proto.Reset(msg)
	if err := proto.Unmarshal(data, msg); err != nil {
		return nil, err
	}
	return msg, nil
}
