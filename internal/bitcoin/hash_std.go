//go:build noavx

package bitcoin

import stdsha "crypto/sha256"

func init() {
	sum256 = stdsha.Sum256
}

// HashImplementationName names the SHA-256 backend in use.
func HashImplementationName() string {
	return "crypto/sha256"
}
