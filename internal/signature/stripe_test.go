package signature

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

func stripeHeader(payload []byte, secret string, ts int64) string {
	sig := computeHMAC(SHA256, Hex, secret, []byte(fmt.Sprintf("%d.%s", ts, payload)))
	return fmt.Sprintf("t=%d,v1=%s", ts, sig)
}

func TestStripeVerify(t *testing.T) {
	secret := "whsec_test"
	payload := []byte(`{"type":"checkout.session.completed"}`)
	now := time.Unix(1700000000, 0)
	v := &StripeVerifier{Now: func() time.Time { return now }}

	tests := []struct {
		name      string
		payload   []byte
		signature string
		secret    string
		wantValid bool
	}{
		{
			name:      "valid signature",
			payload:   payload,
			signature: stripeHeader(payload, secret, now.Unix()),
			secret:    secret,
			wantValid: true,
		},
		{
			name:      "tampered payload",
			payload:   []byte(`{"type":"checkout.session.expired"}`),
			signature: stripeHeader(payload, secret, now.Unix()),
			secret:    secret,
			wantValid: false,
		},
		{
			name:      "all-zero v1 of correct length",
			payload:   payload,
			signature: fmt.Sprintf("t=%d,v1=%s", now.Unix(), strings.Repeat("0", 64)),
			secret:    secret,
			wantValid: false,
		},
		{
			name:      "wrong length v1",
			payload:   payload,
			signature: fmt.Sprintf("t=%d,v1=abc123", now.Unix()),
			secret:    secret,
			wantValid: false,
		},
		{
			name:      "missing secret",
			payload:   payload,
			signature: stripeHeader(payload, secret, now.Unix()),
			secret:    "",
			wantValid: false,
		},
		{
			name:      "missing signature header",
			payload:   payload,
			signature: "",
			secret:    secret,
			wantValid: false,
		},
		{
			name:      "malformed header",
			payload:   payload,
			signature: "not-a-stripe-header",
			secret:    secret,
			wantValid: false,
		},
		{
			name:      "non-numeric timestamp",
			payload:   payload,
			signature: "t=soon,v1=" + strings.Repeat("0", 64),
			secret:    secret,
			wantValid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := v.Verify(Request{Payload: tt.payload, Signature: tt.signature}, tt.secret)
			if got.Valid != tt.wantValid {
				t.Errorf("Verify() valid = %v, want %v (error: %s)", got.Valid, tt.wantValid, got.Error)
			}
			if !got.Valid && got.Error == "" {
				t.Error("rejection must carry a log-facing error reason")
			}
			if got.Provider != "stripe" {
				t.Errorf("provider = %q, want stripe", got.Provider)
			}
		})
	}
}

func TestStripeVerifyTolerance(t *testing.T) {
	secret := "whsec_test"
	payload := []byte(`{"id":"evt_1"}`)
	now := time.Unix(1700000000, 0)
	v := &StripeVerifier{Now: func() time.Time { return now }}

	// Stale timestamp with a correct HMAC over that stale timestamp: the
	// tolerance check must reject independently of signature correctness.
	stale := now.Unix() - DefaultTolerance - 1
	got := v.Verify(Request{Payload: payload, Signature: stripeHeader(payload, secret, stale)}, secret)
	if got.Valid {
		t.Fatal("stale timestamp accepted")
	}
	if !strings.Contains(got.Error, "timestamp") {
		t.Errorf("expected a timestamp-related error, got %q", got.Error)
	}

	// Future skew beyond tolerance is also rejected.
	future := now.Unix() + DefaultTolerance + 1
	if got := v.Verify(Request{Payload: payload, Signature: stripeHeader(payload, secret, future)}, secret); got.Valid {
		t.Error("future timestamp accepted")
	}

	// Just inside the window passes.
	edge := now.Unix() - DefaultTolerance
	if got := v.Verify(Request{Payload: payload, Signature: stripeHeader(payload, secret, edge)}, secret); !got.Valid {
		t.Errorf("timestamp at tolerance edge rejected: %s", got.Error)
	}

	// Custom tolerance narrows the window.
	narrow := &StripeVerifier{Tolerance: 10, Now: func() time.Time { return now }}
	if got := narrow.Verify(Request{Payload: payload, Signature: stripeHeader(payload, secret, now.Unix()-11)}, secret); got.Valid {
		t.Error("timestamp outside narrowed tolerance accepted")
	}
}

func TestStripeVerifySingleByteMutation(t *testing.T) {
	secret := "whsec_test"
	payload := []byte(`{"amount":4200}`)
	now := time.Unix(1700000000, 0)
	v := &StripeVerifier{Now: func() time.Time { return now }}
	header := stripeHeader(payload, secret, now.Unix())

	if got := v.Verify(Request{Payload: payload, Signature: header}, secret); !got.Valid {
		t.Fatalf("baseline verification failed: %s", got.Error)
	}

	// Flip one payload byte.
	mutated := append([]byte(nil), payload...)
	mutated[len(mutated)/2] ^= 0x01
	if got := v.Verify(Request{Payload: mutated, Signature: header}, secret); got.Valid {
		t.Error("mutated payload accepted")
	}

	// Flip one signature hex digit.
	i := strings.Index(header, "v1=") + 3
	flipped := header[:i]
	if header[i] == '0' {
		flipped += "1"
	} else {
		flipped += "0"
	}
	flipped += header[i+1:]
	if got := v.Verify(Request{Payload: payload, Signature: flipped}, secret); got.Valid {
		t.Error("mutated signature accepted")
	}
}
