//go:build nojsonsimd

package jsonx

import stdjson "encoding/json"

// Marshal encodes v with encoding/json.
func Marshal(v any) ([]byte, error) {
	return stdjson.Marshal(v)
}

// Unmarshal decodes data into v with encoding/json.
func Unmarshal(data []byte, v any) error {
	return stdjson.Unmarshal(data, v)
}

// Implementation names the active encoder for startup logs.
func Implementation() string {
	return "encoding/json"
}
