package notification

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"

	"github.com/frahmantamala/client-portal/internal/core/events"
	"github.com/frahmantamala/client-portal/internal/paymentgateway"
	"github.com/frahmantamala/client-portal/pkg/mailer"
)

var paymentEmail = template.Must(template.New("payment").Parse(`<html><body>
<p>Hello {{.Name}},</p>
<p>{{.Lead}}</p>
<table>
<tr><td>Payment</td><td>#{{.PaymentID}}</td></tr>
<tr><td>Amount</td><td>{{.Amount}}</td></tr>
{{if .Description}}<tr><td>Description</td><td>{{.Description}}</td></tr>{{end}}
</table>
<p>{{.Closing}}</p>
</body></html>`))

type paymentEmailData struct {
	Name        string
	Lead        string
	PaymentID   int64
	Amount      string
	Description string
	Closing     string
}

// EventSubscriber is the interface the event bus exposes for subscriptions.
type EventSubscriber interface {
	Subscribe(eventType string, handler events.Handler)
}

// EmailNotifier mails the payer when a payment settles. It runs off the event
// bus, so a slow or failing mail server never delays reconciliation.
type EmailNotifier struct {
	contacts ContactLookup
	mail     MailSender
	logger   *slog.Logger
}

func NewEmailNotifier(contacts ContactLookup, mail MailSender, logger *slog.Logger) *EmailNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &EmailNotifier{contacts: contacts, mail: mail, logger: logger}
}

func (e *EmailNotifier) Register(bus EventSubscriber) {
	bus.Subscribe(events.EventTypePaymentCompleted, e.HandlePaymentSettled)
	bus.Subscribe(events.EventTypePaymentFailed, e.HandlePaymentSettled)
}

func (e *EmailNotifier) HandlePaymentSettled(ctx context.Context, event events.Event) error {
	settled, ok := event.(*events.PaymentSettledEvent)
	if !ok {
		return fmt.Errorf("unexpected event payload %T for %s", event, event.EventType())
	}
	log := e.logger.With("payment_id", settled.PaymentID, "event_type", settled.EventType())

	email, name, err := e.contacts.Contact(ctx, settled.OwnerID)
	if err != nil {
		log.Error("cannot resolve payer email", "user_id", settled.OwnerID, "error", err)
		return err
	}

	data := paymentEmailData{
		Name:        name,
		PaymentID:   settled.PaymentID,
		Amount:      paymentgateway.FormatAmount(settled.Amount, settled.Currency),
		Description: settled.Description,
	}
	var subject string
	switch settled.EventType() {
	case events.EventTypePaymentCompleted:
		subject = "Payment received"
		data.Lead = "We have received your payment. Thank you!"
		data.Closing = "A receipt is available in your client portal."
	default:
		subject = "Payment not completed"
		data.Lead = "Your payment was not completed and you have not been charged."
		data.Closing = "You can start a new payment from your client portal at any time."
	}

	var body bytes.Buffer
	if err := paymentEmail.Execute(&body, data); err != nil {
		return fmt.Errorf("render payment email: %w", err)
	}

	if err := e.mail.Send(email, subject, body.String()); err != nil {
		if errors.Is(err, mailer.ErrDisabled) {
			return nil
		}
		log.Error("failed to send payment email", "error", err)
		return err
	}
	return nil
}
