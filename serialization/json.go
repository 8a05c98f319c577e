package serialization

import "encoding/json"

const (
	NameJSON = "json"
	MIMEJSON = "application/json"
)

// jsonSerializer encodes with Go's standard library encoding/json. Loads
// decodes into a generic any (map[string]any / []any / scalars) since the
// registry has no destination type to decode into; callers wanting a
// concrete struct re-marshal/unmarshal the returned value or bypass the
// registry and call json directly.
type jsonSerializer struct{}

func (jsonSerializer) Dumps(value any, _ *Extras) ([]byte, error) {
	return json.Marshal(value)
}

func (jsonSerializer) Loads(data []byte, _ *Extras) (any, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}
