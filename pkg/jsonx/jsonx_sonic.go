//go:build !nojsonsimd

package jsonx

import "github.com/bytedance/sonic"

var fastJSON = sonic.ConfigStd

// Marshal encodes v with sonic.
func Marshal(v any) ([]byte, error) {
	return fastJSON.Marshal(v)
}

// Unmarshal decodes data into v with sonic.
func Unmarshal(data []byte, v any) error {
	return fastJSON.Unmarshal(data, v)
}

// Implementation names the active encoder for startup logs.
func Implementation() string {
	return "sonic"
}
