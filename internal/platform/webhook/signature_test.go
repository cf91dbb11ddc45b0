package webhook

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

var testNow = time.Unix(1700000000, 0)

func newTestVerifier() *Verifier {
	return NewVerifier("whsec_test").WithClock(func() time.Time { return testNow })
}

func TestSignPayload(t *testing.T) {
	sig := SignPayload([]byte(`{"id":"evt_1"}`), "whsec_test", 1700000000)
	if len(sig) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(sig))
	}
	if sig == SignPayload([]byte(`{"id":"evt_1"}`), "whsec_test", 1700000001) {
		t.Error("signature must depend on the timestamp")
	}
}

func TestVerify_Valid(t *testing.T) {
	body := []byte(`{"id":"evt_1","type":"invoice.payment_succeeded"}`)
	if err := newTestVerifier().Verify(body, SignHeader(body, "whsec_test", testNow)); err != nil {
		t.Fatalf("expected valid signature, got %v", err)
	}
}

func TestVerify_MultipleSignatures(t *testing.T) {
	body := []byte(`{}`)
	h := fmt.Sprintf("t=%d,v1=deadbeef,v1=%s", testNow.Unix(), SignPayload(body, "whsec_test", testNow.Unix()))
	if err := newTestVerifier().Verify(body, h); err != nil {
		t.Fatalf("expected one matching signature to suffice, got %v", err)
	}
}

func TestVerify_Failures(t *testing.T) {
	body := []byte(`{"id":"evt_1"}`)
	tests := []struct {
		name   string
		header string
		body   []byte
	}{
		{"wrong secret", SignHeader(body, "other", testNow), body},
		{"tampered body", SignHeader(body, "whsec_test", testNow), []byte(`{"id":"evt_2"}`)},
		{"too old", SignHeader(body, "whsec_test", testNow.Add(-6*time.Minute)), body},
		{"from the future", SignHeader(body, "whsec_test", testNow.Add(6*time.Minute)), body},
		{"missing timestamp", "v1=abc", body},
		{"missing signature", fmt.Sprintf("t=%d", testNow.Unix()), body},
		{"garbage", "nonsense", body},
		{"empty", "", body},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := newTestVerifier().Verify(tt.body, tt.header)
			if !errors.Is(err, ErrSignatureVerificationFailed) {
				t.Errorf("expected ErrSignatureVerificationFailed, got %v", err)
			}
		})
	}
}

func TestVerify_NoSecret(t *testing.T) {
	body := []byte(`{}`)
	v := NewVerifier("").WithClock(func() time.Time { return testNow })
	if err := v.Verify(body, SignHeader(body, "", testNow)); !errors.Is(err, ErrSignatureVerificationFailed) {
		t.Errorf("expected failure without a secret, got %v", err)
	}
}
