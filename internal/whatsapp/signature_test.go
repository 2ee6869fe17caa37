package whatsapp

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

func sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature_Valid(t *testing.T) {
	payload := []byte(`{"object":"whatsapp_business_account"}`)
	require.NoError(t, VerifySignature(sign(payload, "app-secret"), payload, "app-secret"))
}

func TestVerifySignature_WrongSecret(t *testing.T) {
	payload := []byte(`{"object":"whatsapp_business_account"}`)
	err := VerifySignature(sign(payload, "other-secret"), payload, "app-secret")
	require.Error(t, err)
	require.Contains(t, err.Error(), "verification failed")
}

func TestVerifySignature_TamperedPayload(t *testing.T) {
	payload := []byte(`{"object":"whatsapp_business_account"}`)
	sig := sign(payload, "app-secret")
	err := VerifySignature(sig, []byte(`{"object":"tampered"}`), "app-secret")
	require.Error(t, err)
}

func TestVerifySignature_MissingPrefix(t *testing.T) {
	err := VerifySignature("deadbeef", []byte("payload"), "app-secret")
	require.Error(t, err)
	require.Contains(t, err.Error(), "sha256=")
}
