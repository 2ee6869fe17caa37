package whatsapp

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// VerifySignature verifies the Meta webhook signature
// The signature is in the format: sha256=<hex_signature>
func VerifySignature(signature string, payload []byte, appSecret string) error {
	if !strings.HasPrefix(signature, "sha256=") {
		return fmt.Errorf("invalid signature format: missing sha256= prefix")
	}

	expectedSig := signature[7:] // Remove "sha256=" prefix

	// Compute HMAC-SHA256
	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(payload)
	computedSig := hex.EncodeToString(mac.Sum(nil))

	// Constant-time comparison to prevent timing attacks
	if !hmac.Equal([]byte(expectedSig), []byte(computedSig)) {
		return fmt.Errorf("signature verification failed")
	}

	return nil
}
