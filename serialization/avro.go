package serialization

import (
	"fmt"
	"sync"

	"github.com/claws/gestalt/gerrors"
	"github.com/hamba/avro/v2"
)

const (
	NameAvro = "avro"
	MIMEAvro = "application/x-avro"
)

// avroSerializer resolves a parsed avro.Schema by type_identifier, the Go
// analogue of gestalt.serialization.SchemaRegistry.
type avroSerializer struct {
	mu     sync.RWMutex
	schema map[int]avro.Schema
	nextID int
}

// RegisterSchema parses schemaJSON and binds it to id (or the next unused
// id when id is 0), returning the id it was bound to.
func (s *avroSerializer) RegisterSchema(id int, schemaJSON string) (int, error) {
	parsed, err := avro.Parse(schemaJSON)
	if err != nil {
		return 0, fmt.Errorf("parse avro schema: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.schema == nil {
		s.schema = make(map[int]avro.Schema)
		s.nextID = 1
	}
	if id == 0 {
		for {
			if _, taken := s.schema[s.nextID]; !taken {
				id = s.nextID
				s.nextID++
				break
			}
			s.nextID++
		}
	}
	s.schema[id] = parsed
	return id, nil
}

func (s *avroSerializer) Dumps(value any, extras *Extras) ([]byte, error) {
	if extras == nil || !extras.HaveTypeID {
		return nil, fmt.Errorf("avro encode requires a type_identifier in extras")
	}
	s.mu.RLock()
	schema, ok := s.schema[extras.TypeIdentifier]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("avro type_identifier %d: %w", extras.TypeIdentifier, gerrors.ErrUnknownCodec)
	}
	return avro.Marshal(schema, value)
}

func (s *avroSerializer) Loads(data []byte, extras *Extras) (any, error) {
	if extras == nil || !extras.HaveTypeID {
		return nil, fmt.Errorf("avro decode requires a type_identifier in extras")
	}
	s.mu.RLock()
	schema, ok := s.schema[extras.TypeIdentifier]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("avro type_identifier %d: %w", extras.TypeIdentifier, gerrors.ErrUnknownCodec)
	}
	var v map[string]any
	if err := avro.Unmarshal(schema, data, &v); err != nil {
		return nil, err
	}
	return v, nil
}
