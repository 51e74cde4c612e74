package signature

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// StripeVerifier verifies Stripe-style signature headers of the form
// "t=<unix-seconds>,v1=<hex-hmac-sha256>". The MAC is computed over
// "{t}.{payload}", so the timestamp is covered by the signature and cannot be
// advanced by a replayer.
type StripeVerifier struct {
	// Tolerance is the maximum allowed clock skew in seconds. Zero means
	// DefaultTolerance.
	Tolerance int64

	// Now overrides the clock for tests.
	Now func() time.Time
}

func (v *StripeVerifier) Provider() string { return "stripe" }

func (v *StripeVerifier) Verify(req Request, secret string) Result {
	if secret == "" {
		return fail(v.Provider(), "webhook secret not configured")
	}
	if req.Signature == "" {
		return fail(v.Provider(), "signature header missing")
	}

	ts, sig, err := parseStripeHeader(req.Signature)
	if err != nil {
		return fail(v.Provider(), err.Error())
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

	signed := strconv.FormatInt(ts, 10) + "." + string(req.Payload)
	expected := computeHMAC(SHA256, Hex, secret, []byte(signed))
	if !timingSafeEqual(expected, sig) {
		return fail(v.Provider(), "signature mismatch")
	}
	return pass(v.Provider())
}

// parseStripeHeader extracts the t and v1 elements from the signature header.
func parseStripeHeader(header string) (int64, string, error) {
	var tsRaw, sig string
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			tsRaw = value
		case "v1":
			sig = value
		}
	}
	if tsRaw == "" || sig == "" {
		return 0, "", fmt.Errorf("malformed signature header")
	}
	ts, err := strconv.ParseInt(tsRaw, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("malformed signature timestamp")
	}
	return ts, sig, nil
}
