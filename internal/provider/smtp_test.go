package provider

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/crmkit/email-gateway/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"
)

func smtpMailbox() model.Mailbox {
	return model.Mailbox{
		ID:           "mbx-1",
		Email:        "sender@corp.test",
		Provider:     model.ProviderSMTP,
		SMTPHost:     "smtp.corp.test",
		SMTPPort:     587,
		SMTPUsername: "sender",
		SMTPPassword: "hunter2",
	}
}

func TestSMTPSend(t *testing.T) {
	var gotDialer *gomail.Dialer
	var gotMsg *gomail.Message
	c := NewSMTPClient(5000)
	c.dialAndSend = func(d *gomail.Dialer, m *gomail.Message) error {
		gotDialer = d
		gotMsg = m
		return nil
	}

	res, err := c.Send(context.Background(), smtpMailbox(), testEmail())
	require.NoError(t, err)

	require.NotNil(t, gotDialer)
	assert.Equal(t, "smtp.corp.test", gotDialer.Host)
	assert.Equal(t, 587, gotDialer.Port)
	assert.Equal(t, "sender", gotDialer.Username)

	require.NotNil(t, gotMsg)
	assert.Equal(t, []string{"rcpt@example.test"}, gotMsg.GetHeader("To"))
	assert.Equal(t, []string{"quarterly numbers"}, gotMsg.GetHeader("Subject"))

	assert.Regexp(t, regexp.MustCompile(`^<[0-9a-z]{26}@smtp\.corp\.test>$`), res.ProviderMessageID)
	assert.Equal(t, []string{res.ProviderMessageID}, gotMsg.GetHeader("Message-ID"))
}

func TestSMTPSendDialError(t *testing.T) {
	c := NewSMTPClient(5000)
	c.dialAndSend = func(*gomail.Dialer, *gomail.Message) error {
		return errors.New("535 authentication failed")
	}

	_, err := c.Send(context.Background(), smtpMailbox(), testEmail())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "535 authentication failed")
}

func TestSMTPSendTimeout(t *testing.T) {
	c := NewSMTPClient(1) // 1ms
	c.dialAndSend = func(*gomail.Dialer, *gomail.Message) error {
		time.Sleep(200 * time.Millisecond)
		return nil
	}

	_, err := c.Send(context.Background(), smtpMailbox(), testEmail())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")
}

func TestSMTPSendContextCanceled(t *testing.T) {
	c := NewSMTPClient(60000)
	c.dialAndSend = func(*gomail.Dialer, *gomail.Message) error {
		time.Sleep(200 * time.Millisecond)
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Send(ctx, smtpMailbox(), testEmail())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSMTPSendMissingHost(t *testing.T) {
	c := NewSMTPClient(5000)
	mb := smtpMailbox()
	mb.SMTPHost = ""

	_, err := c.Send(context.Background(), mb, testEmail())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "smtp host/port not configured")
}
