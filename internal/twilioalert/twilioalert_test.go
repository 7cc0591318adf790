package twilioalert

import (
	"context"
	"testing"
)

func TestMockClient_SendAlert(t *testing.T) {
	ctx := context.Background()
	mock := NewMockClient()

	err := mock.SendAlert(ctx, "+15550001111", "New order received")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(mock.SentAlerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(mock.SentAlerts))
	}

	if mock.SentAlerts[0].Body != "New order received" {
		t.Errorf("expected body %q, got %q", "New order received", mock.SentAlerts[0].Body)
	}
}

func TestNewClientRequiresCredentials(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "")
	t.Setenv("TWILIO_AUTH_TOKEN", "")
	t.Setenv("TWILIO_FROM_NUMBER", "")

	if _, err := NewClient(); err == nil {
		t.Error("expected error when credentials are missing")
	}
	if _, err := NewClient(WithAccountSID("AC123"), WithAuthToken("tok")); err == nil {
		t.Error("expected error when from number is missing")
	}
	if _, err := NewClient(WithAccountSID("AC123"), WithAuthToken("tok"), WithFromNumber("+15550001111")); err != nil {
		t.Errorf("unexpected error with full credentials: %v", err)
	}
}
