package serialization

import "encoding/json"

// jsonSerializer is the canonical textual encoding: encoding/json.
type jsonSerializer struct{}

// JSON returns the default Serializer.
func JSON() Serializer {
	return jsonSerializer{}
}

func (jsonSerializer) Name() string { return "json" }

func (jsonSerializer) Serialize(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, ErrEncodeFailed(err)
	}
	return data, nil
}

func (jsonSerializer) Deserialize(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return ErrDecodeFailed(err)
	}
	return nil
}
