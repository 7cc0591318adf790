package whatsapp

import (
	"context"
	"testing"
)

func TestMockClient_SendMessage(t *testing.T) {
	ctx := context.Background()
	mock := NewMockClient()

	err := mock.SendMessage(ctx, "251911000000", "Welcome to PrintFlow")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(mock.SentMessages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(mock.SentMessages))
	}

	if mock.SentMessages[0].To != "251911000000" {
		t.Errorf("expected recipient %q, got %q", "251911000000", mock.SentMessages[0].To)
	}

	if mock.SentMessages[0].Body != "Welcome to PrintFlow" {
		t.Errorf("expected body %q, got %q", "Welcome to PrintFlow", mock.SentMessages[0].Body)
	}
}

func TestClient_SendMessageValidation(t *testing.T) {
	c := &Client{}
	if err := c.SendMessage(context.Background(), "251911000000", "hi"); err == nil {
		t.Error("expected error for uninitialized client")
	}
}
