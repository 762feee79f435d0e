package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	SignatureHeader = "thawani-signature"
	TimestampHeader = "thawani-timestamp"
)

var (
	ErrVerifierNotConfigured = errors.New("webhook secret not configured")
	ErrMissingSignature      = errors.New("missing webhook signature")
	ErrSignatureMismatch     = errors.New("webhook signature mismatch")
	ErrStaleTimestamp        = errors.New("webhook timestamp outside tolerance")
)

// SignatureVerifier authenticates a raw webhook delivery before any of it is trusted.
type SignatureVerifier interface {
	Verify(body []byte, headers http.Header) error
}

// HMACVerifier checks hex(HMAC-SHA256(secret, body + "-" + timestamp)).
type HMACVerifier struct {
	secret    []byte
	tolerance time.Duration
	now       func() time.Time
}

func NewHMACVerifier(secret string, tolerance time.Duration) *HMACVerifier {
	return &HMACVerifier{
		secret:    []byte(secret),
		tolerance: tolerance,
		now:       time.Now,
	}
}

// WithClock swaps the time source; used by tests.
func (v *HMACVerifier) WithClock(now func() time.Time) *HMACVerifier {
	v.now = now
	return v
}

func (v *HMACVerifier) Verify(body []byte, headers http.Header) error {
	if len(v.secret) == 0 {
		return ErrVerifierNotConfigured
	}

	signature := strings.TrimSpace(headers.Get(SignatureHeader))
	timestamp := strings.TrimSpace(headers.Get(TimestampHeader))
	if signature == "" || timestamp == "" {
		return ErrMissingSignature
	}

	if v.tolerance > 0 {
		unix, err := strconv.ParseInt(timestamp, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: invalid timestamp %q", ErrStaleTimestamp, timestamp)
		}
		skew := v.now().Sub(time.Unix(unix, 0))
		if skew < 0 {
			skew = -skew
		}
		if skew > v.tolerance {
			return ErrStaleTimestamp
		}
	}

	provided, err := hex.DecodeString(strings.ToLower(signature))
	if err != nil {
		return ErrSignatureMismatch
	}
	if !hmac.Equal(provided, v.mac(body, timestamp)) {
		return ErrSignatureMismatch
	}
	return nil
}

func (v *HMACVerifier) mac(body []byte, timestamp string) []byte {
	h := hmac.New(sha256.New, v.secret)
	h.Write(body)
	h.Write([]byte("-"))
	h.Write([]byte(timestamp))
	return h.Sum(nil)
}

// Sign produces the signature header value for body and timestamp.
func Sign(secret string, body []byte, timestamp string) string {
	v := NewHMACVerifier(secret, 0)
	return hex.EncodeToString(v.mac(body, timestamp))
}
