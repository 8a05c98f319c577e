package serialization

import "github.com/vmihailenco/msgpack/v5"

const (
	NameMsgpack = "msgpack"
	MIMEMsgpack = "application/x-msgpack"
)

type msgpackSerializer struct{}

func (msgpackSerializer) Dumps(value any, _ *Extras) ([]byte, error) {
	return msgpack.Marshal(value)
}

func (msgpackSerializer) Loads(data []byte, _ *Extras) (any, error) {
	var v any
	if err := msgpack.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}
