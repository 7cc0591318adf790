package messaging

import (
	"context"
	"strings"
	"testing"

	"github.com/BTreeMap/PrintFlow/internal/flow"
	"github.com/BTreeMap/PrintFlow/internal/models"
	"github.com/BTreeMap/PrintFlow/internal/store"
)

// mockService records outgoing messages and lets tests inject responses.
type mockService struct {
	sent      []string
	responses chan models.Response
}

func newMockService() *mockService {
	return &mockService{responses: make(chan models.Response, 10)}
}

func (m *mockService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return recipient, nil
}

func (m *mockService) SendMessage(_ context.Context, to, body string) error {
	m.sent = append(m.sent, to+"|"+body)
	return nil
}

func (m *mockService) Start(context.Context) error { return nil }
func (m *mockService) Stop() error                 { return nil }

func (m *mockService) Responses() <-chan models.Response {
	return m.responses
}

func (m *mockService) lastSent(t *testing.T) string {
	t.Helper()
	if len(m.sent) == 0 {
		t.Fatal("no messages sent")
	}
	return m.sent[len(m.sent)-1]
}

func newHandler(t *testing.T) (*ResponseHandler, *mockService) {
	t.Helper()
	svc := newMockService()
	engine := flow.NewEngine(store.NewInMemoryStore(), nil)
	return NewResponseHandler(svc, engine, "Test Printing"), svc
}

func send(t *testing.T, h *ResponseHandler, from, body string) {
	t.Helper()
	if err := h.HandleResponse(context.Background(), models.Response{From: from, Body: body}); err != nil {
		t.Fatalf("HandleResponse(%q): unexpected error: %v", body, err)
	}
}

func TestHandlerShowsMenu(t *testing.T) {
	h, svc := newHandler(t)
	for _, greeting := range []string{"hi", "Hello", "start", "menu", "help"} {
		send(t, h, "+15550001111", greeting)
		if !strings.Contains(svc.lastSent(t), "Welcome to Test Printing") {
			t.Errorf("greeting %q did not produce the menu: %q", greeting, svc.lastSent(t))
		}
	}
}

func TestHandlerListsServices(t *testing.T) {
	h, svc := newHandler(t)
	send(t, h, "+15550001111", "services")
	got := svc.lastSent(t)
	if !strings.Contains(got, "1. Business Cards") || !strings.Contains(got, "Custom Printing") {
		t.Errorf("services reply missing catalog entries: %q", got)
	}
}

func TestHandlerUnknownInputOutsideFlow(t *testing.T) {
	h, svc := newHandler(t)
	send(t, h, "+15550001111", "what is this")
	got := svc.lastSent(t)
	if !strings.Contains(got, "didn't understand") {
		t.Errorf("unknown input reply = %q", got)
	}
}

func TestHandlerRunsOrderFlow(t *testing.T) {
	h, svc := newHandler(t)
	user := "+251911000000"

	send(t, h, user, "order")
	if !strings.Contains(svc.lastSent(t), "full name") {
		t.Fatalf("order start did not prompt for name: %q", svc.lastSent(t))
	}

	for _, input := range []string{"Abel", "skip", "Banner", "5", "2025-03-10"} {
		send(t, h, user, input)
	}
	send(t, h, user, "+251911000000")

	got := svc.lastSent(t)
	if !strings.Contains(got, "order has been placed successfully") {
		t.Fatalf("completed order reply = %q", got)
	}

	// Flow is over: the next input falls back to the menu.
	send(t, h, user, "thanks")
	if !strings.Contains(svc.lastSent(t), "Welcome to Test Printing") {
		t.Errorf("post-completion input should hit the menu: %q", svc.lastSent(t))
	}
}

func TestHandlerRejectionStaysInFlow(t *testing.T) {
	h, svc := newHandler(t)
	user := "+15550001111"

	send(t, h, user, "order")
	send(t, h, user, "Abel")
	send(t, h, user, "skip")
	send(t, h, user, "Banner")
	send(t, h, user, "abc")
	if svc.lastSent(t) != user+"|quantity must be a number" {
		t.Fatalf("rejection reply = %q", svc.lastSent(t))
	}

	// Still on the quantity step.
	send(t, h, user, "5")
	if !strings.Contains(svc.lastSent(t), "delivery date") {
		t.Errorf("valid retry did not advance: %q", svc.lastSent(t))
	}
}

func TestHandlerCancel(t *testing.T) {
	h, svc := newHandler(t)
	user := "+15550001111"

	send(t, h, user, "cancel")
	if !strings.Contains(svc.lastSent(t), "Nothing to cancel") {
		t.Errorf("cancel without a flow = %q", svc.lastSent(t))
	}

	send(t, h, user, "message")
	send(t, h, user, "Noah")
	send(t, h, user, "cancel")
	if !strings.Contains(svc.lastSent(t), "Cancelled. Nothing was saved.") {
		t.Errorf("cancel reply = %q", svc.lastSent(t))
	}

	// Back at the menu.
	send(t, h, user, "anything")
	if !strings.Contains(svc.lastSent(t), "didn't understand") {
		t.Errorf("input after cancel should fall back to menu: %q", svc.lastSent(t))
	}
}

func TestHandlerCommandKeywordsRestartFlows(t *testing.T) {
	h, svc := newHandler(t)
	user := "+15550001111"

	send(t, h, user, "order")
	send(t, h, user, "Abel")
	// A keyword mid-flow starts the other flow; the order session is
	// replaced the next time the order keyword is used.
	send(t, h, user, "schedule")
	if !strings.Contains(svc.lastSent(t), "schedule a consultation") {
		t.Errorf("schedule keyword mid-flow = %q", svc.lastSent(t))
	}

	send(t, h, user, "Sara")
	send(t, h, user, "sara@example.com")
	send(t, h, user, "25/12/2025 14:00")
	if !strings.Contains(svc.lastSent(t), "consultation has been scheduled") {
		t.Errorf("schedule completion = %q", svc.lastSent(t))
	}
}

func TestHandlerRunConsumesChannel(t *testing.T) {
	h, svc := newHandler(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	svc.responses <- models.Response{From: "+15550001111", Body: "services"}
	// Closing the channel ends Run.
	close(svc.responses)
	<-done
	cancel()

	if len(svc.sent) != 1 || !strings.Contains(svc.sent[0], "Business Cards") {
		t.Errorf("Run did not route the queued response: %v", svc.sent)
	}
}
