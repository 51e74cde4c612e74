package signature

import (
	"fmt"
	"strconv"
	"time"
)

// TokenVerifier verifies timestamp+token schemes (Mailgun-style): the signed
// payload is "{timestamp}{token}", HMAC-SHA256, hex-encoded.
type TokenVerifier struct {
	// Tolerance is the maximum allowed clock skew in seconds. Zero means
	// DefaultTolerance.
	Tolerance int64

	// Now overrides the clock for tests.
	Now func() time.Time
}

func (v *TokenVerifier) Provider() string { return "mailgun" }

func (v *TokenVerifier) Verify(req Request, secret string) Result {
	if secret == "" {
		return fail(v.Provider(), "webhook secret not configured")
	}
	if req.Signature == "" {
		return fail(v.Provider(), "signature missing")
	}
	if req.Timestamp == "" || req.Token == "" {
		return fail(v.Provider(), "timestamp or token missing")
	}

	ts, err := strconv.ParseInt(req.Timestamp, 10, 64)
	if err != nil {
		return fail(v.Provider(), "malformed timestamp")
	}

	tolerance := v.Tolerance
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	now := time.Now
	if v.Now != nil {
		now = v.Now
	}
	age := now().Unix() - ts
	if age > tolerance || age < -tolerance {
		return fail(v.Provider(), fmt.Sprintf("timestamp outside tolerance: %ds", age))
	}

	expected := computeHMAC(SHA256, Hex, secret, []byte(req.Timestamp+req.Token))
	if !timingSafeEqual(expected, req.Signature) {
		return fail(v.Provider(), "signature mismatch")
	}
	return pass(v.Provider())
}
