// Package email provides the SMTP mail transport. It implements the
// engine's Transport contract: send a message, report accepted and
// rejected recipients, and verify connectivity for health checks.
package email

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	mail "gopkg.in/mail.v2"

	"github.com/campushub/messaging/internal/model"
)

// Client sends messages over SMTP.
type Client struct {
	smtpHost string
	smtpPort int
	username string
	password string
	from     string
	timeout  time.Duration
}

// NewClient creates a new SMTP client. The timeout bounds every dial and
// send; a timed-out send counts as a transport failure for the caller.
func NewClient(smtpHost string, smtpPort int, username, password, from string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		smtpHost: smtpHost,
		smtpPort: smtpPort,
		username: username,
		password: password,
		from:     from,
		timeout:  timeout,
	}
}

// Send delivers the message to all recipients in a single SMTP
// transaction. SMTP accepts or rejects the transaction as a whole, so on
// success every recipient is reported accepted, on failure rejected.
func (c *Client) Send(ctx context.Context, msg model.Message) (model.SendResult, error) {
	m := mail.NewMessage()

	from := msg.From
	if from == "" {
		from = c.from
	}

	m.SetHeader("From", from)
	m.SetHeader("To", msg.To...)
	if len(msg.CC) > 0 {
		m.SetHeader("Cc", msg.CC...)
	}
	if len(msg.BCC) > 0 {
		m.SetHeader("Bcc", msg.BCC...)
	}
	m.SetHeader("Subject", msg.Subject)

	if msg.Body != "" {
		m.SetBody("text/plain", msg.Body)
		if msg.HTMLBody != "" {
			m.AddAlternative("text/html", msg.HTMLBody)
		}
	} else {
		m.SetBody("text/html", msg.HTMLBody)
	}

	for _, att := range msg.Attachments {
		content := att.Content
		settings := []mail.FileSetting{
			mail.SetCopyFunc(func(w io.Writer) error {
				_, err := w.Write(content)
				return err
			}),
		}
		if att.ContentType != "" {
			settings = append(settings, mail.SetHeader(map[string][]string{
				"Content-Type": {att.ContentType},
			}))
		}
		m.Attach(att.Filename, settings...)
	}

	recipients := make([]string, 0, len(msg.To)+len(msg.CC)+len(msg.BCC))
	recipients = append(recipients, msg.To...)
	recipients = append(recipients, msg.CC...)
	recipients = append(recipients, msg.BCC...)

	if err := c.send(ctx, m); err != nil {
		return model.SendResult{Rejected: recipients}, fmt.Errorf("smtp send: %w", err)
	}

	return model.SendResult{
		MessageID: uuid.NewString(),
		Accepted:  recipients,
	}, nil
}

// send runs DialAndSend bounded by both the dialer timeout and the
// caller's context.
func (c *Client) send(ctx context.Context, m *mail.Message) error {
	dialer := c.dialer()

	done := make(chan error, 1)
	go func() {
		done <- dialer.DialAndSend(m)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

// Verify dials the SMTP server and closes the connection, proving the
// transport is reachable and credentials are accepted.
func (c *Client) Verify(ctx context.Context) error {
	dialer := c.dialer()

	done := make(chan error, 1)
	go func() {
		closer, err := dialer.Dial()
		if err != nil {
			done <- err
			return
		}
		done <- closer.Close()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp verify: %w", err)
		}
		return nil
	}
}

func (c *Client) dialer() *mail.Dialer {
	dialer := mail.NewDialer(c.smtpHost, c.smtpPort, c.username, c.password)
	dialer.Timeout = c.timeout

	return dialer
}
