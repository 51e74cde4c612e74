package signature

// PlainVerifier verifies simple-HMAC schemes (Postmark-style): the signed
// payload is the raw body, HMAC-SHA256, base64-encoded. The provider supplies
// no timestamp, so there is no replay tolerance to enforce; that is a
// provider-imposed limitation, not a gap in this implementation.
type PlainVerifier struct{}

func (v *PlainVerifier) Provider() string { return "postmark" }

func (v *PlainVerifier) Verify(req Request, secret string) Result {
	if secret == "" {
		return fail(v.Provider(), "webhook secret not configured")
	}
	if req.Signature == "" {
		return fail(v.Provider(), "signature header missing")
	}

	expected := computeHMAC(SHA256, Base64, secret, req.Payload)
	if !timingSafeEqual(expected, req.Signature) {
		return fail(v.Provider(), "signature mismatch")
	}
	return pass(v.Provider())
}
