package serialization

import "gopkg.in/yaml.v3"

const (
	NameYAML = "yaml"
	MIMEYAML = "application/x-yaml"
)

type yamlSerializer struct{}

func (yamlSerializer) Dumps(value any, _ *Extras) ([]byte, error) {
	return yaml.Marshal(value)
}

func (yamlSerializer) Loads(data []byte, _ *Extras) (any, error) {
	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}
