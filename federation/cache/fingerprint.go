package cache

import "github.com/cespare/xxhash/v2"

// Fingerprint computes the 64-bit xxhash fingerprint of raw query text (for
// the parse cache) or of a canonical byte encoding of a normalized
// selection set (for the normalize/plan caches).
func Fingerprint(b []byte) uint64 {
	return xxhash.Sum64(b)
}

// FingerprintString is Fingerprint over a string without an extra copy.
func FingerprintString(s string) uint64 {
	return xxhash.Sum64String(s)
}
