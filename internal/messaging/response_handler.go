// Package messaging chat routing: maps incoming customer messages to
// menu commands and in-progress flow steps.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/BTreeMap/PrintFlow/internal/flow"
	"github.com/BTreeMap/PrintFlow/internal/models"
)

// Menu keywords recognized outside of an active flow.
const (
	cmdOrder    = "order"
	cmdSchedule = "schedule"
	cmdMessage  = "message"
	cmdServices = "services"
	cmdCancel   = "cancel"
	cmdStart    = "start"
	cmdMenu     = "menu"
	cmdHelp     = "help"
)

// ResponseHandler routes incoming chat messages. Menu keywords start
// and cancel flows; any other input advances the sender's active flow
// through the engine.
type ResponseHandler struct {
	service      Service
	engine       *flow.Engine
	businessName string

	mu     sync.Mutex
	active map[string]models.FlowKind // sender -> flow kind in progress
}

// NewResponseHandler creates a handler routing messages between the
// chat service and the flow engine.
func NewResponseHandler(service Service, engine *flow.Engine, businessName string) *ResponseHandler {
	if businessName == "" {
		businessName = "PrintFlow"
	}
	return &ResponseHandler{
		service:      service,
		engine:       engine,
		businessName: businessName,
		active:       make(map[string]models.FlowKind),
	}
}

// Run consumes the service's response channel until the context is
// cancelled or the channel closes.
func (h *ResponseHandler) Run(ctx context.Context) {
	slog.Info("ResponseHandler.Run: starting chat router")
	for {
		select {
		case <-ctx.Done():
			slog.Info("ResponseHandler.Run: stopping")
			return
		case resp, ok := <-h.service.Responses():
			if !ok {
				slog.Info("ResponseHandler.Run: response channel closed")
				return
			}
			if err := h.HandleResponse(ctx, resp); err != nil {
				slog.Error("ResponseHandler.Run: handle failed", "from", resp.From, "error", err)
			}
		}
	}
}

// HandleResponse routes one incoming message and replies through the
// chat service.
func (h *ResponseHandler) HandleResponse(ctx context.Context, resp models.Response) error {
	body := strings.TrimSpace(resp.Body)
	command := strings.ToLower(body)
	slog.Debug("ResponseHandler.HandleResponse", "from", resp.From, "command_candidate", command)

	switch command {
	case cmdStart, cmdMenu, cmdHelp, "hi", "hello":
		return h.reply(ctx, resp.From, h.menuText())
	case cmdServices:
		return h.reply(ctx, resp.From, h.servicesText())
	case cmdOrder:
		return h.startFlow(ctx, resp.From, models.FlowKindOrder)
	case cmdSchedule:
		return h.startFlow(ctx, resp.From, models.FlowKindSchedule)
	case cmdMessage:
		return h.startFlow(ctx, resp.From, models.FlowKindMessage)
	case cmdCancel:
		return h.cancel(ctx, resp.From)
	}

	kind, ok := h.activeKind(resp.From)
	if !ok {
		// No flow in progress and not a recognized keyword.
		return h.reply(ctx, resp.From, "Sorry, I didn't understand that.\n\n"+h.menuText())
	}
	return h.advance(ctx, resp.From, kind, body)
}

func (h *ResponseHandler) startFlow(ctx context.Context, from string, kind models.FlowKind) error {
	res, err := h.engine.Start(from, kind)
	if err != nil {
		return fmt.Errorf("start %s flow for %s failed: %w", kind, from, err)
	}
	h.setActive(from, kind)
	return h.reply(ctx, from, res.Prompt)
}

func (h *ResponseHandler) cancel(ctx context.Context, from string) error {
	kind, ok := h.activeKind(from)
	if !ok {
		return h.reply(ctx, from, "Nothing to cancel.\n\n"+h.menuText())
	}
	res := h.engine.Cancel(from, kind)
	h.clearActive(from)
	return h.reply(ctx, from, res.Message)
}

func (h *ResponseHandler) advance(ctx context.Context, from string, kind models.FlowKind, body string) error {
	res, err := h.engine.SubmitStep(ctx, from, kind, body)
	if err != nil {
		if errors.Is(err, models.ErrSaveFailed) {
			slog.Error("ResponseHandler.advance: save failed, awaiting retry", "from", from, "kind", kind, "error", err)
			return h.reply(ctx, from, "Sorry, we hit a problem saving your details. Please send any message to try again.")
		}
		return fmt.Errorf("advance %s flow for %s failed: %w", kind, from, err)
	}

	switch res.Status {
	case models.AdvanceRejected:
		return h.reply(ctx, from, res.Message)
	case models.AdvanceNeedMore:
		return h.reply(ctx, from, res.Prompt)
	case models.AdvanceCompleted:
		h.clearActive(from)
		return h.reply(ctx, from, res.Message)
	case models.AdvanceTimedOut:
		h.clearActive(from)
		return h.reply(ctx, from, res.Message)
	default:
		return fmt.Errorf("unexpected advance status %q for %s", res.Status, from)
	}
}

func (h *ResponseHandler) reply(ctx context.Context, to, body string) error {
	if err := h.service.SendMessage(ctx, to, body); err != nil {
		return fmt.Errorf("reply to %s failed: %w", to, err)
	}
	return nil
}

func (h *ResponseHandler) menuText() string {
	return fmt.Sprintf(
		"Welcome to %s! I'm your printing assistant.\n\n"+
			"What I can help you with:\n"+
			"- Type 'services' to see our printing offerings\n"+
			"- Type 'order' to place an order\n"+
			"- Type 'schedule' to book a consultation\n"+
			"- Type 'message' to send us a message\n\n"+
			"You can type 'cancel' anytime to go back to the menu.",
		h.businessName)
}

func (h *ResponseHandler) servicesText() string {
	def, ok := flow.Get(models.FlowKindOrder)
	if !ok {
		return "Our service catalog is currently unavailable."
	}
	var services []string
	for _, step := range def.Steps {
		if len(step.Rule.Services) > 0 {
			services = step.Rule.Services
			break
		}
	}
	text := "Our printing services:\n"
	for i, svc := range services {
		text += fmt.Sprintf("%d. %s\n", i+1, svc)
	}
	text += "\nType 'order' to place an order."
	return text
}

func (h *ResponseHandler) activeKind(from string) (models.FlowKind, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	kind, ok := h.active[from]
	return kind, ok
}

func (h *ResponseHandler) setActive(from string, kind models.FlowKind) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.active[from] = kind
}

func (h *ResponseHandler) clearActive(from string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.active, from)
}
