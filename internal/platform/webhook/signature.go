// Package webhook verifies signed inbound webhooks from the payment processor.
// The signature header has the form "t=<unix seconds>,v1=<hex hmac>[,v1=...]"
// where each v1 value is HMAC-SHA256 over "<t>.<raw body>".
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// HeaderName is the request header carrying the signature.
const HeaderName = "Stripe-Signature"

// DefaultTolerance bounds how old a signed timestamp may be.
const DefaultTolerance = 5 * time.Minute

var ErrSignatureVerificationFailed = errors.New("webhook signature verification failed")

// SignPayload computes the hex HMAC-SHA256 of "<timestamp>.<payload>".
func SignPayload(payload []byte, secret string, timestamp int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignHeader builds a complete signature header value for payload.
func SignHeader(payload []byte, secret string, ts time.Time) string {
	t := ts.Unix()
	return fmt.Sprintf("t=%d,v1=%s", t, SignPayload(payload, secret, t))
}

type header struct {
	timestamp  int64
	signatures []string
}

func parseHeader(h string) (header, error) {
	var out header
	haveT := false
	for _, part := range strings.Split(h, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return out, fmt.Errorf("%w: bad timestamp", ErrSignatureVerificationFailed)
			}
			out.timestamp, haveT = ts, true
		case "v1":
			out.signatures = append(out.signatures, v)
		}
	}
	if !haveT {
		return out, fmt.Errorf("%w: missing timestamp", ErrSignatureVerificationFailed)
	}
	if len(out.signatures) == 0 {
		return out, fmt.Errorf("%w: no v1 signature", ErrSignatureVerificationFailed)
	}
	return out, nil
}

// Verifier checks signature headers against one shared secret.
type Verifier struct {
	secret    string
	tolerance time.Duration
	now       func() time.Time
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: secret, tolerance: DefaultTolerance, now: time.Now}
}

// WithClock replaces the wall clock, for tests.
func (v *Verifier) WithClock(now func() time.Time) *Verifier {
	v.now = now
	return v
}

// Verify returns nil only if some v1 signature in sigHeader matches payload
// and the timestamp is within tolerance. An empty secret verifies nothing.
func (v *Verifier) Verify(payload []byte, sigHeader string) error {
	if v.secret == "" {
		return fmt.Errorf("%w: no signing secret configured", ErrSignatureVerificationFailed)
	}
	h, err := parseHeader(sigHeader)
	if err != nil {
		return err
	}
	age := v.now().Sub(time.Unix(h.timestamp, 0))
	if age > v.tolerance || age < -v.tolerance {
		return fmt.Errorf("%w: timestamp outside tolerance", ErrSignatureVerificationFailed)
	}
	expected := []byte(SignPayload(payload, v.secret, h.timestamp))
	for _, sig := range h.signatures {
		if hmac.Equal(expected, []byte(sig)) {
			return nil
		}
	}
	return fmt.Errorf("%w: no matching signature", ErrSignatureVerificationFailed)
}
