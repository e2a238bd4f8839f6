package signature_test

import (
	"strings"
	"testing"

	"github.com/xraph/gateway/signature"
)

func TestGenerateSecretFormat(t *testing.T) {
	secret := signature.GenerateSecret()

	if !strings.HasPrefix(secret, "whsec_") {
		t.Errorf("secret should start with whsec_, got %q", secret)
	}
	if len(secret) != 70 {
		t.Errorf("expected length 70, got %d", len(secret))
	}
	for _, r := range secret[len("whsec_"):] {
		if !strings.ContainsRune("0123456789abcdef", r) {
			t.Fatalf("non-hex character %q in secret body", r)
		}
	}
}

func TestGenerateSecretUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for range 50 {
		s := signature.GenerateSecret()
		if seen[s] {
			t.Fatalf("GenerateSecret returned a repeated value: %q", s)
		}
		seen[s] = true
	}
}
