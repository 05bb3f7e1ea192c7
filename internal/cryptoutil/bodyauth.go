package cryptoutil

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignatureHeader is the request header carrying the body signature.
const SignatureHeader = "X-Hmac-Signature"

const signaturePrefix = "sha256="

// SignBody computes the "sha256=<hex>" signature of a raw request body under
// the shared API key.
func SignBody(key, body []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// VerifyBody checks a "sha256=<hex>" signature against the raw request body
// in constant time. Malformed headers and empty bodies are rejected.
func VerifyBody(key, body []byte, signature string) bool {
	if len(body) == 0 || !strings.HasPrefix(signature, signaturePrefix) {
		return false
	}
	got, err := hex.DecodeString(strings.TrimPrefix(signature, signaturePrefix))
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, key)
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}
