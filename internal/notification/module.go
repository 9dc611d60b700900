// Package notification turns domain events into customer and repairer
// notifications. Domain modules publish events and know nothing about
// phones, mailboxes or templates; everything rendered here goes through
// the outbox except the completion code, which is sent directly because
// the plain code must never be persisted.
package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"repairlink_backend/internal/chat"
	"repairlink_backend/internal/directory"
	"repairlink_backend/internal/email"
	"repairlink_backend/internal/events"
	"repairlink_backend/internal/notification/outbox"
	"repairlink_backend/internal/sms"
	"repairlink_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const deliveryMaxAttempts = 5

// Module handles all notification-related event subscriptions and outbox
// delivery.
type Module struct {
	outbox    *outbox.Repository
	templates *Registry
	sms       sms.Sender
	email     email.Sender
	chat      chat.Opener
	directory directory.Resolver
	log       *logger.Logger
}

// NewModule creates the notification module.
func NewModule(pool *pgxpool.Pool, smsSender sms.Sender, emailSender email.Sender, chatOpener chat.Opener, dir directory.Resolver, log *logger.Logger) (*Module, error) {
	templates, err := LoadTemplates()
	if err != nil {
		return nil, err
	}
	return &Module{
		outbox:    outbox.New(pool),
		templates: templates,
		sms:       smsSender,
		email:     emailSender,
		chat:      chatOpener,
		directory: dir,
		log:       log,
	}, nil
}

// Name returns the module name for logging.
func (m *Module) Name() string {
	return "notification"
}

// Subscribe registers this module's handlers on the event bus.
func (m *Module) Subscribe(bus events.Bus) {
	bus.Subscribe(events.RequestAssigned{}.EventName(), events.HandlerFunc(m.onRequestAssigned))
	bus.Subscribe(events.QuoteSubmitted{}.EventName(), events.HandlerFunc(m.onQuoteSubmitted))
	bus.Subscribe(events.QuoteAccepted{}.EventName(), events.HandlerFunc(m.onQuoteAccepted))
	bus.Subscribe(events.QuoteRejected{}.EventName(), events.HandlerFunc(m.onQuoteRejected))
	bus.Subscribe(events.CompletionCodeIssued{}.EventName(), events.HandlerFunc(m.onCompletionCodeIssued))
	bus.Subscribe(events.RepairerWithdrew{}.EventName(), events.HandlerFunc(m.onRepairerWithdrew))
	bus.Subscribe(events.PaymentIntentCreated{}.EventName(), events.HandlerFunc(m.onPaymentIntentCreated))
	bus.Subscribe(events.PaymentSettled{}.EventName(), events.HandlerFunc(m.onPaymentSettled))
}

func (m *Module) onRequestAssigned(ctx context.Context, event events.Event) error {
	e, ok := event.(events.RequestAssigned)
	if !ok {
		return fmt.Errorf("unexpected event type %T", event)
	}

	if err := m.chat.OpenConversation(ctx, e.RequestID, e.CustomerID, e.RepairerID); err != nil {
		// Chat is best effort; assignment already happened.
		m.log.Error("failed to open conversation", "request_id", e.RequestID, "error", err)
	}

	_, err := m.outbox.Insert(ctx, outbox.InsertParams{
		RequestID: e.RequestID,
		Channel:   outbox.ChannelSMS,
		Template:  "request_assigned_sms",
		Recipient: e.ContactPhone,
		Payload:   map[string]any{"Category": e.Category},
	})
	return err
}

func (m *Module) onQuoteSubmitted(ctx context.Context, event events.Event) error {
	e, ok := event.(events.QuoteSubmitted)
	if !ok {
		return fmt.Errorf("unexpected event type %T", event)
	}

	_, err := m.outbox.Insert(ctx, outbox.InsertParams{
		RequestID: e.RequestID,
		Channel:   outbox.ChannelSMS,
		Template:  "quote_submitted_sms",
		Recipient: e.ContactPhone,
		Payload: map[string]any{
			"Amount":  formatAmount(e.AmountCents),
			"Revised": e.Revised,
		},
	})
	return err
}

func (m *Module) onQuoteAccepted(ctx context.Context, event events.Event) error {
	e, ok := event.(events.QuoteAccepted)
	if !ok {
		return fmt.Errorf("unexpected event type %T", event)
	}

	contact, err := m.directory.GetContact(ctx, e.RepairerID)
	if err != nil {
		return fmt.Errorf("resolve repairer contact: %w", err)
	}
	if contact.Phone == "" {
		return nil
	}

	_, err = m.outbox.Insert(ctx, outbox.InsertParams{
		RequestID: e.RequestID,
		Channel:   outbox.ChannelSMS,
		Template:  "quote_accepted_sms",
		Recipient: contact.Phone,
		Payload:   map[string]any{"Amount": formatAmount(e.AmountCents)},
	})
	return err
}

func (m *Module) onQuoteRejected(ctx context.Context, event events.Event) error {
	e, ok := event.(events.QuoteRejected)
	if !ok {
		return fmt.Errorf("unexpected event type %T", event)
	}

	_, err := m.outbox.Insert(ctx, outbox.InsertParams{
		RequestID: e.RequestID,
		Channel:   outbox.ChannelSMS,
		Template:  "quote_rejected_sms",
		Recipient: e.ContactPhone,
		Payload:   map[string]any{"Fee": formatAmount(e.FeeCents)},
	})
	return err
}

// onCompletionCodeIssued sends the code synchronously. The plain code lives
// only on this in-process event; writing it to the outbox would persist it.
func (m *Module) onCompletionCodeIssued(ctx context.Context, event events.Event) error {
	e, ok := event.(events.CompletionCodeIssued)
	if !ok {
		return fmt.Errorf("unexpected event type %T", event)
	}

	message := fmt.Sprintf(
		"RepairLink: your completion code is %s. Share it with your repairer only when the work is done. Expires at %s.",
		e.Code, e.ExpiresAt.Format("15:04"),
	)
	if err := m.sms.SendSMS(ctx, e.ContactPhone, message); err != nil {
		return fmt.Errorf("send completion code: %w", err)
	}
	return nil
}

func (m *Module) onRepairerWithdrew(ctx context.Context, event events.Event) error {
	e, ok := event.(events.RepairerWithdrew)
	if !ok {
		return fmt.Errorf("unexpected event type %T", event)
	}

	_, err := m.outbox.Insert(ctx, outbox.InsertParams{
		RequestID: e.RequestID,
		Channel:   outbox.ChannelSMS,
		Template:  "repairer_withdrew_sms",
		Recipient: e.ContactPhone,
		Payload:   map[string]any{},
	})
	return err
}

func (m *Module) onPaymentIntentCreated(ctx context.Context, event events.Event) error {
	e, ok := event.(events.PaymentIntentCreated)
	if !ok {
		return fmt.Errorf("unexpected event type %T", event)
	}
	if e.Method != "standard" {
		return nil
	}

	contact, err := m.directory.GetContact(ctx, e.CustomerID)
	if err != nil {
		return fmt.Errorf("resolve customer contact: %w", err)
	}
	if contact.Phone == "" {
		return nil
	}

	_, err = m.outbox.Insert(ctx, outbox.InsertParams{
		RequestID: e.RequestID,
		Channel:   outbox.ChannelSMS,
		Template:  "payment_requested_sms",
		Recipient: contact.Phone,
		Payload:   map[string]any{"Amount": formatAmount(e.AmountCents)},
	})
	return err
}

func (m *Module) onPaymentSettled(ctx context.Context, event events.Event) error {
	e, ok := event.(events.PaymentSettled)
	if !ok {
		return fmt.Errorf("unexpected event type %T", event)
	}

	customer, err := m.directory.GetContact(ctx, e.CustomerID)
	if err != nil {
		return fmt.Errorf("resolve customer contact: %w", err)
	}
	if customer.Email != "" {
		if _, err := m.outbox.Insert(ctx, outbox.InsertParams{
			RequestID: e.RequestID,
			Channel:   outbox.ChannelEmail,
			Template:  "receipt_email",
			Recipient: customer.Email,
			Payload: map[string]any{
				"Amount":    formatAmount(e.AmountCents),
				"Category":  "service",
				"RequestID": e.RequestID.String(),
				"PaymentID": e.PaymentID.String(),
			},
		}); err != nil {
			return err
		}
	}

	if e.Method != "standard" || e.RepairerID == nil {
		return nil
	}
	repairer, err := m.directory.GetContact(ctx, *e.RepairerID)
	if err != nil {
		return fmt.Errorf("resolve repairer contact: %w", err)
	}
	if repairer.Email == "" {
		return nil
	}
	_, err = m.outbox.Insert(ctx, outbox.InsertParams{
		RequestID: e.RequestID,
		Channel:   outbox.ChannelEmail,
		Template:  "payout_email",
		Recipient: repairer.Email,
		Payload: map[string]any{
			"Amount":     formatAmount(e.AmountCents),
			"Commission": formatAmount(e.CommissionCents),
			"Payout":     formatAmount(e.PayoutCents),
			"RequestID":  e.RequestID.String(),
		},
	})
	return err
}

// Outbox exposes the outbox repository for the scheduler dispatcher.
func (m *Module) Outbox() *outbox.Repository {
	return m.outbox
}

// DeliverOutboxRecord delivers one claimed record. Called by the scheduler
// worker; a returned error makes asynq retry the task while the record's own
// attempt counter bounds total tries.
func (m *Module) DeliverOutboxRecord(ctx context.Context, id uuid.UUID) error {
	rec, err := m.outbox.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if rec.Status == outbox.StatusSucceeded || rec.Status == outbox.StatusFailed {
		return nil
	}

	if err := m.outbox.MarkProcessing(ctx, rec.ID); err != nil {
		return err
	}

	if err := m.deliver(ctx, rec); err != nil {
		m.log.Error("notification delivery failed",
			"id", rec.ID, "template", rec.Template, "attempts", rec.Attempts+1, "error", err)
		if rec.Attempts+1 >= deliveryMaxAttempts {
			return m.outbox.MarkFailed(ctx, rec.ID, err.Error())
		}
		msg := err.Error()
		if markErr := m.outbox.MarkPending(ctx, rec.ID, &msg); markErr != nil {
			return markErr
		}
		return err
	}

	return m.outbox.MarkSucceeded(ctx, rec.ID)
}

func (m *Module) deliver(ctx context.Context, rec outbox.Record) error {
	if rec.Recipient == "" {
		return fmt.Errorf("record has no recipient")
	}

	var data map[string]any
	if len(rec.Payload) > 0 {
		if err := json.Unmarshal(rec.Payload, &data); err != nil {
			return fmt.Errorf("unmarshal payload: %w", err)
		}
	}

	subject, body, err := m.templates.Render(rec.Template, data)
	if err != nil {
		return err
	}

	switch rec.Channel {
	case outbox.ChannelSMS:
		return m.sms.SendSMS(ctx, rec.Recipient, body)
	case outbox.ChannelEmail:
		return m.email.SendEmail(ctx, rec.Recipient, subject, body)
	default:
		return fmt.Errorf("unsupported channel %q", rec.Channel)
	}
}

func formatAmount(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}
