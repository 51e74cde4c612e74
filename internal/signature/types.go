package signature

// Result is the outcome of a single verification call. It is produced fresh
// per call and never persisted.
//
// Error is a human-readable reason intended for server logs only. Handlers
// must respond to the caller with a generic message regardless of the reason,
// so that format, mismatch, and timestamp failures are indistinguishable from
// outside.
type Result struct {
	Valid    bool
	Error    string
	Provider string
}

// Request carries the provider-specific inputs of a verification call.
//
// Payload must be the raw request body exactly as received; signatures are
// computed over the received bytes, not over a re-serialized object.
type Request struct {
	// Payload is the raw request body.
	Payload []byte

	// Signature is the value of the provider's signature header.
	Signature string

	// Timestamp is the separately transmitted timestamp, for schemes that
	// carry it outside the signature header.
	Timestamp string

	// Token is the per-event token, for timestamp+token schemes.
	Token string

	// URL is the full request URL, for schemes that sign the URL.
	URL string

	// Params are the request parameters, for schemes that sign sorted params.
	Params map[string]string
}

// Verifier proves that a webhook request was produced by a claimed external
// provider. Each provider family is one implementation; onboarding a new
// provider means adding a variant, not editing a dispatch chain.
type Verifier interface {
	// Provider returns the provider family name carried in results.
	Provider() string

	// Verify checks the request against the shared secret. It fails closed:
	// a missing secret or signature is a rejection, never a pass-through.
	Verify(req Request, secret string) Result
}

// DefaultTolerance bounds the replay window for timestamped schemes.
const DefaultTolerance = 300 // seconds

func fail(provider, reason string) Result {
	return Result{Valid: false, Error: reason, Provider: provider}
}

func pass(provider string) Result {
	return Result{Valid: true, Provider: provider}
}
