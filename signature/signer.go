// Package signature implements the webhook signing scheme: HMAC-SHA256
// over "{timestamp}.{payload}", carried as "v1=<hex>".
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// Sign computes the signature header value for a payload. The unix
// timestamp is part of the signed content, so the same body signed at a
// different time produces a different signature.
func Sign(payload []byte, secret string, timestamp int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte{'.'})
	mac.Write(payload)
	return "v1=" + hex.EncodeToString(mac.Sum(nil))
}
