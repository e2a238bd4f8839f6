package signature

import (
	"crypto/hmac"
	"errors"
	"time"
)

// Verification failures. Both are logged by callers but never retried; a bad
// signature does not self-correct.
var (
	// ErrInvalidSignature is returned when the MAC does not match.
	ErrInvalidSignature = errors.New("signature: invalid signature")

	// ErrStaleTimestamp is returned when the signed timestamp is outside the
	// accepted skew window, even if the MAC itself matches. Replay mitigation.
	ErrStaleTimestamp = errors.New("signature: timestamp outside tolerance")
)

// Verify checks whether the given signature matches the expected HMAC-SHA256
// signature for the payload, secret, and timestamp.
func Verify(payload []byte, secret string, timestamp int64, sig string) bool {
	expected := Sign(payload, secret, timestamp)
	return hmac.Equal([]byte(expected), []byte(sig))
}

// VerifyAt validates both the MAC and the signed timestamp against a skew
// tolerance. payload must be the raw, unmodified request bytes; verifying a
// re-serialized body drifts from what the sender actually signed.
//
// The timestamp is checked first so a replayed signature is rejected even
// when the MAC would match.
func VerifyAt(payload []byte, secret string, timestamp int64, sig string, tolerance time.Duration, now time.Time) error {
	skew := now.UTC().Sub(time.Unix(timestamp, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > tolerance {
		return ErrStaleTimestamp
	}

	if !Verify(payload, secret, timestamp, sig) {
		return ErrInvalidSignature
	}
	return nil
}
