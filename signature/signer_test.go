package signature_test

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"testing"

	"github.com/xraph/gateway/signature"
)

func TestSignKnownVector(t *testing.T) {
	payload := []byte(`{"event":"test"}`)
	secret := "whsec_testsecret123"
	ts := int64(1700000000)

	got := signature.Sign(payload, secret, ts)

	// Recompute independently via the documented scheme.
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	want := "v1=" + hex.EncodeToString(mac.Sum(nil))

	if got != want {
		t.Errorf("Sign() = %q, want %q", got, want)
	}
}

func TestSignVerify(t *testing.T) {
	payload := []byte(`{"shipment_id":"shp_01h2x","weight_kg":12}`)
	secret := "whsec_roundtripsecret"
	ts := int64(1700000001)
	sig := signature.Sign(payload, secret, ts)

	tests := []struct {
		name    string
		payload []byte
		secret  string
		ts      int64
		want    bool
	}{
		{"valid", payload, secret, ts, true},
		{"tampered payload", []byte(`{"shipment_id":"shp_01h2x","weight_kg":13}`), secret, ts, false},
		{"wrong secret", payload, "whsec_wrong", ts, false},
		{"wrong timestamp", payload, secret, ts + 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := signature.Verify(tt.payload, tt.secret, tt.ts, sig); got != tt.want {
				t.Errorf("Verify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSignatureFormat(t *testing.T) {
	sig := signature.Sign([]byte("test"), "secret", 123)

	if !strings.HasPrefix(sig, "v1=") {
		t.Errorf("signature should start with %q, got %q", "v1=", sig)
	}
	// "v1=" plus 64 hex chars of SHA-256.
	if len(sig) != 67 {
		t.Errorf("expected signature length 67, got %d", len(sig))
	}
}
