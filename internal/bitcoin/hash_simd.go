//go:build !noavx

package bitcoin

import simdsha "github.com/minio/sha256-simd"

func init() {
	sum256 = simdsha.Sum256
}

// HashImplementationName names the SHA-256 backend in use.
func HashImplementationName() string {
	return "sha256-simd"
}
