// Package signature verifies inbound webhook authenticity using
// provider-specific HMAC schemes.
//
// Each provider family is a Verifier variant sharing one interface:
//
//   - StripeVerifier: "t=<unix-seconds>,v1=<hex-hmac-sha256>" headers over
//     "{t}.{payload}", with a bounded replay window
//   - TokenVerifier: HMAC over "{timestamp}{token}" (Mailgun style)
//   - PlainVerifier: base64 HMAC-SHA256 over the raw body (Postmark style)
//   - LegacyVerifier: base64 HMAC-SHA1 over URL + sorted params (Twilio style)
//   - GenericVerifier: configurable algorithm, encoding, and header prefix
//
// # Security Model
//
//   - All comparisons use crypto/subtle after an explicit length check
//   - Every path fails closed when the secret or signature is absent
//   - Results never distinguish format, mismatch, or timestamp failures to
//     the caller; the Error field is for server logs only
//   - Verification runs over the raw received bytes, never a re-serialized
//     payload
//
// An IP AllowList is available as a secondary layer. It is weaker than
// signature verification and must never be the sole gate.
package signature
