package signature

import "strings"

// GenericVerifier verifies a configurable HMAC scheme: algorithm, encoding,
// and an optional header prefix to strip (e.g. "sha256=") before comparison.
// New providers whose scheme is a plain body MAC are onboarded with a config
// entry instead of new verification code.
type GenericVerifier struct {
	Name      string
	Algorithm Algorithm
	Encoding  Encoding

	// Prefix, when set, is stripped from the signature header value. A header
	// that lacks the expected prefix is rejected.
	Prefix string
}

func (v *GenericVerifier) Provider() string {
	if v.Name == "" {
		return "generic"
	}
	return v.Name
}

func (v *GenericVerifier) Verify(req Request, secret string) Result {
	if secret == "" {
		return fail(v.Provider(), "webhook secret not configured")
	}
	sig := req.Signature
	if sig == "" {
		return fail(v.Provider(), "signature header missing")
	}

	if v.Prefix != "" {
		if !strings.HasPrefix(sig, v.Prefix) {
			return fail(v.Provider(), "signature header missing expected prefix")
		}
		sig = strings.TrimPrefix(sig, v.Prefix)
	}

	alg := v.Algorithm
	if alg == "" {
		alg = SHA256
	}
	enc := v.Encoding
	if enc == "" {
		enc = Hex
	}

	expected := computeHMAC(alg, enc, secret, req.Payload)
	if !timingSafeEqual(expected, sig) {
		return fail(v.Provider(), "signature mismatch")
	}
	return pass(v.Provider())
}
