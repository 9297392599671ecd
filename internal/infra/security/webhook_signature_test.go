package security

import "testing"

func TestWebhookVerifier(t *testing.T) {
	v, err := NewWebhookVerifier("s3cr3t")
	if err != nil {
		t.Fatalf("NewWebhookVerifier: %v", err)
	}
	body := []byte(`{"action":"labeled"}`)

	t.Run("round trip", func(t *testing.T) {
		if !v.Verify(body, v.Sign(body)) {
			t.Fatal("expected a self-signed body to verify")
		}
	})

	t.Run("tampered body", func(t *testing.T) {
		sig := v.Sign(body)
		if v.Verify([]byte(`{"action":"opened"}`), sig) {
			t.Fatal("expected a tampered body to fail")
		}
	})

	t.Run("wrong secret", func(t *testing.T) {
		other, err := NewWebhookVerifier("different")
		if err != nil {
			t.Fatalf("NewWebhookVerifier: %v", err)
		}
		if v.Verify(body, other.Sign(body)) {
			t.Fatal("expected a foreign signature to fail")
		}
	})

	t.Run("missing prefix", func(t *testing.T) {
		if v.Verify(body, "deadbeef") {
			t.Fatal("expected a bare digest to fail")
		}
	})

	t.Run("empty header", func(t *testing.T) {
		if v.Verify(body, "") {
			t.Fatal("expected an empty header to fail")
		}
	})
}

func TestNewWebhookVerifierRejectsEmptySecret(t *testing.T) {
	if _, err := NewWebhookVerifier(""); err == nil {
		t.Fatal("expected an error for an empty secret")
	}
}
