// Package signing computes the HMAC-SHA256 request signature and headers
// required by the cloud 2FA API.
package signing

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// EmptyBody is signed in place of an actual request body for requests that
// carry no payload (e.g. GET /v1/push/status/{id}).
const EmptyBody = "{}"

// nonceBytes gives each nonce 128 bits of entropy.
const nonceBytes = 16

// Headers are the request headers the cloud API expects. Only Timestamp,
// Nonce and the body enter the MAC; Content-Type and the integration key
// never do.
type Headers struct {
	ContentType    string
	IntegrationKey string
	Signature      string
	Timestamp      string
	Nonce          string
}

// Signer produces authenticated headers for one integration's secret key.
type Signer struct {
	integrationKey string
	secretKey      string
	now            func() time.Time
}

// New builds a Signer for the given integration/secret key pair.
func New(integrationKey, secretKey string) *Signer {
	return &Signer{integrationKey: integrationKey, secretKey: secretKey, now: time.Now}
}

// Sign computes the headers for body (pass EmptyBody for bodyless
// requests). Returns an error only if the entropy source fails.
func (s *Signer) Sign(body string) (Headers, error) {
	nonce, err := generateNonce()
	if err != nil {
		return Headers{}, err
	}

	timestamp := s.now().Unix()

	return Headers{
		ContentType:    "application/json",
		IntegrationKey: s.integrationKey,
		Signature:      Compute(s.secretKey, timestamp, nonce, body),
		Timestamp:      fmt.Sprintf("%d", timestamp),
		Nonce:          nonce,
	}, nil
}

// Compute is the pure signature function: lowercase-hex
// HMAC-SHA256(secret, timestamp||nonce||body). Exposed standalone so
// tests can recompute and compare without constructing a Signer.
func Compute(secretKey string, timestamp int64, nonce, body string) string {
	mac := hmac.New(sha256.New, []byte(secretKey))
	fmt.Fprintf(mac, "%d%s%s", timestamp, nonce, body)

	return hex.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the signature and compares it in constant time. It is
// not used on the proxy's outbound path (the cloud service verifies our
// signature, we never verify our own).
func Verify(secretKey string, timestamp int64, nonce, body, signature string) bool {
	expected := Compute(secretKey, timestamp, nonce, body)

	return hmac.Equal([]byte(expected), []byte(signature))
}

func generateNonce() (string, error) {
	buf := make([]byte, nonceBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}

	return hex.EncodeToString(buf), nil
}
