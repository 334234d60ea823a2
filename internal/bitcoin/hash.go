package bitcoin

type sum256Func func([]byte) [32]byte

// sum256 is the SHA-256 backend of the nonce search, chosen by build tag.
var sum256 sum256Func

// DoubleSHA256 hashes b twice with the selected backend.
func DoubleSHA256(b []byte) [32]byte {
	first := sum256(b)
	return sum256(first[:])
}
