package signature

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"hash"
)

// Algorithm selects the HMAC hash function.
type Algorithm string

const (
	SHA1   Algorithm = "sha1"
	SHA256 Algorithm = "sha256"
	SHA512 Algorithm = "sha512"
)

// Encoding selects how a computed MAC is rendered for comparison.
type Encoding string

const (
	Hex    Encoding = "hex"
	Base64 Encoding = "base64"
)

func hashFor(alg Algorithm) func() hash.Hash {
	switch alg {
	case SHA1:
		return sha1.New
	case SHA512:
		return sha512.New
	default:
		return sha256.New
	}
}

// computeHMAC computes the MAC of payload under secret and encodes it.
func computeHMAC(alg Algorithm, enc Encoding, secret string, payload []byte) string {
	mac := hmac.New(hashFor(alg), []byte(secret))
	mac.Write(payload)
	sum := mac.Sum(nil)
	if enc == Base64 {
		return base64.StdEncoding.EncodeToString(sum)
	}
	return hex.EncodeToString(sum)
}

// timingSafeEqual compares two encoded signatures without leaking the position
// of the first mismatch. A length mismatch is rejected up front: it is a
// rejection reason in its own right, and checking it first means the
// constant-time comparison only ever sees equal-length buffers.
func timingSafeEqual(expected, actual string) bool {
	if len(expected) != len(actual) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(actual)) == 1
}
