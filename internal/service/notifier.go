package service

import (
	"context"
	"fmt"

	"termin/internal/document"
	"termin/internal/domain"
	"termin/internal/metrics"
	"termin/internal/models"

	"github.com/rs/zerolog"
)

// Notifier sends the booking e-mails. Subjects and bodies come from the
// active DB template for each key, or the built-in text next to each send.
type Notifier struct {
	mail         domain.MailSender
	templates    domain.TemplateResolver
	from         string
	staffAddress string
	appName      string
	logger       *zerolog.Logger
}

type NotifierConfig struct {
	From         string
	StaffAddress string
	AppName      string
}

func NewNotifier(mail domain.MailSender, templates domain.TemplateResolver, cfg NotifierConfig, logger *zerolog.Logger) *Notifier {
	staff := cfg.StaffAddress
	if staff == "" {
		staff = cfg.From
	}
	return &Notifier{
		mail:         mail,
		templates:    templates,
		from:         cfg.From,
		staffAddress: staff,
		appName:      cfg.AppName,
		logger:       logger,
	}
}

// SendReceived tells the customer the request is being processed.
func (n *Notifier) SendReceived(ctx context.Context, b *models.Booking) error {
	subject, body, err := n.resolve(ctx, models.TemplateBookingReceived, b)
	if err != nil {
		return err
	}
	if subject == "" {
		subject = "Your booking is being processed"
		body = fmt.Sprintf("Dear %s,\n\n"+
			"Thank you for your booking on %s at %s.\n"+
			"Your request has been received and is being processed.\n"+
			"You will receive a confirmation email once it is approved.\n\n"+
			"Best regards,\n%s",
			b.Name, b.DateString(), b.Time, n.appName)
	}

	return n.send(ctx, models.TemplateBookingReceived, domain.Message{
		From:    n.from,
		To:      []string{b.Email},
		Subject: subject,
		Body:    body,
	})
}

// SendStaffNew tells the staff mailbox about a new submission.
func (n *Notifier) SendStaffNew(ctx context.Context, b *models.Booking) error {
	subject, body, err := n.resolve(ctx, models.TemplateNewBookingAdmin, b)
	if err != nil {
		return err
	}
	if subject == "" {
		subject = "New booking submitted"
		body = fmt.Sprintf("New booking received:\n\n"+
			"Name: %s\n"+
			"Email: %s\n"+
			"Phone: %s\n"+
			"Date/Time: %s %s\n"+
			"Status: %s\n",
			b.Name, b.Email, b.Phone, b.DateString(), b.Time, b.Status)
	}

	return n.send(ctx, models.TemplateNewBookingAdmin, domain.Message{
		From:    n.from,
		To:      []string{n.staffAddress},
		Subject: subject,
		Body:    body,
	})
}

// SendConfirmed mails the confirmation with the receipt attached.
func (n *Notifier) SendConfirmed(ctx context.Context, b *models.Booking, receipt []byte) error {
	subject, body, err := n.resolve(ctx, models.TemplateBookingConfirmed, b)
	if err != nil {
		return err
	}
	if subject == "" {
		subject = "Your booking is confirmed"
		body = fmt.Sprintf("Dear %s,\n\n"+
			"We are happy to confirm your booking on %s at %s.\n"+
			"Your booking confirmation is attached to this email.\n\n"+
			"Best regards,\n%s",
			b.Name, b.DateString(), b.Time, n.appName)
	}

	return n.send(ctx, models.TemplateBookingConfirmed, domain.Message{
		From:    n.from,
		To:      []string{b.Email},
		Subject: subject,
		Body:    body,
		Attachment: &domain.Attachment{
			Filename:    document.Filename(b.ID),
			Data:        receipt,
			ContentType: document.ContentType,
		},
	})
}

// resolve returns an empty subject when no active template exists.
func (n *Notifier) resolve(ctx context.Context, key string, b *models.Booking) (subject, body string, err error) {
	if n.templates == nil {
		return "", "", nil
	}
	subject, body, ok, err := n.templates.Resolve(ctx, key, b.Fields())
	if err != nil {
		return "", "", fmt.Errorf("resolve %s template: %w", key, err)
	}
	if !ok {
		return "", "", nil
	}
	return subject, body, nil
}

func (n *Notifier) send(ctx context.Context, kind string, msg domain.Message) error {
	err := n.mail.Send(ctx, msg)
	metrics.IncNotification(kind, err)
	if err != nil {
		n.logger.Error().Err(err).Str("kind", kind).Strs("to", msg.To).Msg("notification failed")
		return fmt.Errorf("send %s: %w", kind, err)
	}
	n.logger.Info().Str("kind", kind).Strs("to", msg.To).Msg("notification sent")
	return nil
}
