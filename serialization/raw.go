package serialization

import (
	"fmt"

	"github.com/claws/gestalt/gerrors"
)

const (
	NameRaw = "raw"
	MIMERaw = "application/data"

	NameText = "text"
	MIMEText = "text/plain"
)

// rawSerializer passes []byte straight through. It is the format chosen
// automatically by Dumps when the value is already a byte slice.
type rawSerializer struct{}

func (rawSerializer) Dumps(value any, _ *Extras) ([]byte, error) {
	b, ok := value.([]byte)
	if !ok {
		return nil, fmt.Errorf("raw serializer requires []byte, got %T: %w", value, gerrors.ErrTypeMismatch)
	}
	return b, nil
}

func (rawSerializer) Loads(data []byte, _ *Extras) (any, error) {
	return data, nil
}

// textSerializer passes strings through as UTF-8 bytes.
type textSerializer struct{}

func (textSerializer) Dumps(value any, _ *Extras) ([]byte, error) {
	s, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("text serializer requires string, got %T: %w", value, gerrors.ErrTypeMismatch)
	}
	return []byte(s), nil
}

func (textSerializer) Loads(data []byte, _ *Extras) (any, error) {
	return string(data), nil
}
