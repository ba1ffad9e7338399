package messages

import "github.com/bytedance/sonic"

// api mirrors encoding/json behavior (HTML escaping, sorted map keys) so
// pass-through metadata reaches the browser in its familiar shape.
var api = sonic.ConfigStd

// Marshal encodes an outbound message.
func Marshal(v any) ([]byte, error) {
	return api.Marshal(v)
}

// Unmarshal decodes an inbound message.
func Unmarshal(data []byte, v any) error {
	return api.Unmarshal(data, v)
}
