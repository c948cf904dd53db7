package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/crmkit/email-gateway/internal/model"
	"github.com/crmkit/email-gateway/internal/util"
	"gopkg.in/gomail.v2"
)

// SMTPClient submits through the mailbox's own SMTP credentials. SMTP
// servers do not hand back a message id, so one is minted and stamped into
// the Message-ID header before submission.
type SMTPClient struct {
	timeout time.Duration

	// dialAndSend is swappable in tests.
	dialAndSend func(d *gomail.Dialer, m *gomail.Message) error
}

func NewSMTPClient(timeoutMs int) *SMTPClient {
	if timeoutMs <= 0 {
		timeoutMs = 30000
	}
	return &SMTPClient{
		timeout:     time.Duration(timeoutMs) * time.Millisecond,
		dialAndSend: func(d *gomail.Dialer, m *gomail.Message) error { return d.DialAndSend(m) },
	}
}

func (c *SMTPClient) Name() string { return model.ProviderSMTP.String() }

func (c *SMTPClient) Send(ctx context.Context, mb model.Mailbox, email model.OutboundEmail) (SendResult, error) {
	if mb.SMTPHost == "" || mb.SMTPPort <= 0 {
		return SendResult{}, fmt.Errorf("mailbox %s: smtp host/port not configured", mb.ID)
	}

	msgID := smtpMessageID(mb.SMTPHost)

	m := gomail.NewMessage()
	m.SetHeader("From", email.From)
	m.SetHeader("To", email.To)
	m.SetHeader("Subject", email.Subject)
	m.SetHeader("Message-ID", msgID)
	m.SetBody("text/html", email.Body)

	d := gomail.NewDialer(mb.SMTPHost, mb.SMTPPort, mb.SMTPUsername, mb.SMTPPassword)

	// gomail has no context support; run the dial in a goroutine so the
	// run's invocation budget is honored even against a hung server.
	done := make(chan error, 1)
	go func() { done <- c.dialAndSend(d, m) }()

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil {
			return SendResult{}, fmt.Errorf("smtp submit: %w", err)
		}
		return SendResult{ProviderMessageID: msgID}, nil
	case <-timer.C:
		return SendResult{}, fmt.Errorf("smtp submit: timeout after %s", c.timeout)
	case <-ctx.Done():
		return SendResult{}, fmt.Errorf("smtp submit: %w", ctx.Err())
	}
}

func smtpMessageID(host string) string {
	return "<" + strings.ToLower(util.NewID()) + "@" + host + ">"
}
