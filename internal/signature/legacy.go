package signature

import (
	"sort"
	"strings"
)

// LegacyVerifier verifies the legacy SHA1 scheme (Twilio-style): the signed
// payload is the full request URL with every parameter appended as key then
// value, sorted by key, with no separators. HMAC-SHA1, base64-encoded.
type LegacyVerifier struct{}

func (v *LegacyVerifier) Provider() string { return "twilio" }

func (v *LegacyVerifier) Verify(req Request, secret string) Result {
	if secret == "" {
		return fail(v.Provider(), "webhook secret not configured")
	}
	if req.Signature == "" {
		return fail(v.Provider(), "signature header missing")
	}
	if req.URL == "" {
		return fail(v.Provider(), "request url missing")
	}

	expected := computeHMAC(SHA1, Base64, secret, []byte(legacySignedPayload(req.URL, req.Params)))
	if !timingSafeEqual(expected, req.Signature) {
		return fail(v.Provider(), "signature mismatch")
	}
	return pass(v.Provider())
}

func legacySignedPayload(url string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(url)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(params[k])
	}
	return b.String()
}
