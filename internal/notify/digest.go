package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BTreeMap/PrintFlow/internal/models"
	"github.com/BTreeMap/PrintFlow/internal/store"
)

// DefaultDigestCron sends the daily digest at 09:00 server time.
const DefaultDigestCron = "0 9 * * *"

// Digest summarizes the open intake backlog for the owner: pending
// orders, unconfirmed consultations, unanswered messages, and any
// dead-lettered notifications that need manual follow-up.
type Digest struct {
	st     store.Store
	outbox store.OutboxRepo
	alert  AlertSender
	target string
}

// NewDigest creates a digest addressed to the given owner contact.
func NewDigest(st store.Store, outbox store.OutboxRepo, alert AlertSender, target string) *Digest {
	return &Digest{st: st, outbox: outbox, alert: alert, target: target}
}

// Send builds the digest and delivers it. Nothing is sent when there is
// no open work.
func (d *Digest) Send(ctx context.Context) error {
	body, err := d.build()
	if err != nil {
		return fmt.Errorf("failed to build digest: %w", err)
	}
	if body == "" {
		slog.Debug("Digest.Send: no open work, skipping")
		return nil
	}
	if err := d.alert.SendAlert(ctx, d.target, body); err != nil {
		return fmt.Errorf("failed to send digest: %w", err)
	}
	slog.Info("Digest.Send: digest delivered", "target", d.target)
	return nil
}

func (d *Digest) build() (string, error) {
	orders, err := d.st.ListOrders(models.StatusPending)
	if err != nil {
		return "", err
	}
	schedules, err := d.st.ListSchedules(models.StatusPending)
	if err != nil {
		return "", err
	}
	messages, err := d.st.ListMessages(models.StatusPending)
	if err != nil {
		return "", err
	}
	dead, err := d.outbox.ListDeadNotifications()
	if err != nil {
		return "", err
	}

	if len(orders) == 0 && len(schedules) == 0 && len(messages) == 0 && len(dead) == 0 {
		return "", nil
	}

	var b strings.Builder
	b.WriteString("DAILY INTAKE DIGEST\n")
	fmt.Fprintf(&b, "\nPending orders: %d\n", len(orders))
	for _, o := range orders {
		fmt.Fprintf(&b, "  #%d %s - %s x%d (due %s)\n", o.ID, o.CustomerName, o.ProductType, o.Quantity, o.DeliveryDate)
	}
	fmt.Fprintf(&b, "\nPending consultations: %d\n", len(schedules))
	for _, s := range schedules {
		fmt.Fprintf(&b, "  #%d %s - %s\n", s.ID, s.CustomerName, s.PreferredDatetime)
	}
	fmt.Fprintf(&b, "\nUnanswered messages: %d\n", len(messages))
	for _, m := range messages {
		fmt.Fprintf(&b, "  #%d %s\n", m.ID, m.CustomerName)
	}
	if len(dead) > 0 {
		fmt.Fprintf(&b, "\nWARNING: %d notification(s) could not be delivered and need manual follow-up.\n", len(dead))
	}
	return b.String(), nil
}
