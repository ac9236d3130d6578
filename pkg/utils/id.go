package utils

import (
	"github.com/google/uuid"
)

// GenerateID generates a random request/correlation ID
func GenerateID() string {
	return uuid.NewString()
}

// ShortSignature abbreviates a base58 signature for log output
func ShortSignature(sig string) string {
	if len(sig) <= 16 {
		return sig
	}
	return sig[:8] + "..." + sig[len(sig)-8:]
}
