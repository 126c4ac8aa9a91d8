package billing

import (
	"strings"
	"testing"
)

func TestVerifyWebhookSignature(t *testing.T) {
	payload := []byte(`{"order_id":"zp_123","payment_status":"success"}`)
	sig := SignWebhookPayload(payload, "secret")

	tests := []struct {
		name   string
		header string
		secret string
		want   bool
	}{
		{"valid", sig, "secret", true},
		{"valid with prefix", "sha256=" + sig, "secret", true},
		{"upper case hex", "SHA256=" + strings.ToUpper(sig), "secret", true},
		{"wrong secret", sig, "other", false},
		{"not hex", "zzz", "secret", false},
		{"empty header", "", "secret", false},
		{"empty secret", sig, "", false},
	}
	for _, tt := range tests {
		if got := VerifyWebhookSignature(payload, tt.header, tt.secret); got != tt.want {
			t.Fatalf("%s: VerifyWebhookSignature() = %v, want %v", tt.name, got, tt.want)
		}
	}

	if VerifyWebhookSignature([]byte(`{"tampered":true}`), sig, "secret") {
		t.Fatal("signature accepted for a different payload")
	}
}
