package signature

import (
	"crypto/rand"
	"encoding/hex"
)

const secretPrefix = "whsec_"

// GenerateSecret creates a random endpoint signing secret: the "whsec_"
// prefix followed by 32 random bytes hex encoded, 70 characters total.
func GenerateSecret() string {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic("signature: read random: " + err.Error())
	}
	return secretPrefix + hex.EncodeToString(b[:])
}
