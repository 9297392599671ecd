// File: internal/infra/security/webhook_signature.go
package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
)

// WebhookVerifier checks GitHub-style HMAC signatures over raw request bodies.
// The shared secret never leaves this type.
type WebhookVerifier struct {
	secret []byte
}

func NewWebhookVerifier(secret string) (*WebhookVerifier, error) {
	if secret == "" {
		return nil, fmt.Errorf("webhook secret must not be empty")
	}
	return &WebhookVerifier{secret: []byte(secret)}, nil
}

// Sign returns the header value for body: "sha256=" followed by the hex HMAC
// digest. Tests use it to build signed requests.
func (v *WebhookVerifier) Sign(body []byte) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks an X-Hub-Signature-256 header value against body. The
// comparison is constant time.
func (v *WebhookVerifier) Verify(body []byte, header string) bool {
	if !strings.HasPrefix(header, "sha256=") {
		return false
	}
	want := v.Sign(body)
	return subtle.ConstantTimeCompare([]byte(header), []byte(want)) == 1
}
