package clients

import (
	"context"
	"fmt"
	"time"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/sony/gobreaker"

	"github.com/nls08/NLS-Portal-sub001/logging"
	"github.com/nls08/NLS-Portal-sub001/models"
)

type SendgridMailer struct {
	client  *sendgrid.Client
	from    *sgmail.Email
	prefix  string
	breaker *gobreaker.CircuitBreaker
}

func NewSendgridMailer(apiKey, fromAddress, fromName string) *SendgridMailer {
	return &SendgridMailer{
		client:  sendgrid.NewSendClient(apiKey),
		from:    sgmail.NewEmail(fromName, fromAddress),
		prefix:  "[" + fromName + "] ",
		breaker: NewBreaker("sendgrid-cb", 30*time.Second),
	}
}

func (m *SendgridMailer) message(to []models.UserRef, subject, body string) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = m.prefix + subject
	for _, u := range to {
		p.AddTos(sgmail.NewEmail(u.Name, u.Email))
	}

	msg := sgmail.NewV3Mail()
	msg.SetFrom(m.from)
	msg.AddPersonalizations(p)
	msg.AddContent(sgmail.NewContent("text/plain", body))
	return msg
}

func (m *SendgridMailer) Send(ctx context.Context, to []models.UserRef, subject, body string) error {
	recipients := withAddress(to)
	if len(recipients) == 0 {
		return nil
	}
	msg := m.message(recipients, subject, body)

	return guarded(m.breaker, "sendgrid", func() error {
		resp, err := m.client.SendWithContext(ctx, msg)
		if err != nil {
			return fmt.Errorf("sending email: %w", err)
		}
		if resp.StatusCode >= 300 {
			return fmt.Errorf("sendgrid responded %d: %s", resp.StatusCode, resp.Body)
		}
		logging.Logger.Infof("Event ID: EMAIL_SENT, Description: Sent %q to %d recipient(s)", subject, len(recipients))
		return nil
	})
}

// LogMailer only logs messages. It is used when no SendGrid key is configured.
type LogMailer struct{}

func (LogMailer) Send(_ context.Context, to []models.UserRef, subject, body string) error {
	recipients := withAddress(to)
	for _, u := range recipients {
		logging.Logger.Infof("Event ID: EMAIL_LOGGED, Description: To %s <%s>: %s", u.Name, u.Email, subject)
	}
	return nil
}

func withAddress(to []models.UserRef) []models.UserRef {
	out := make([]models.UserRef, 0, len(to))
	for _, u := range to {
		if u.Email != "" {
			out = append(out, u)
		}
	}
	return out
}
