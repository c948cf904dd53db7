package provider

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/crmkit/email-gateway/internal/model"
	"golang.org/x/oauth2"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// GmailClient dispatches through the Gmail REST API using the mailbox's
// access token. It also renews the users.watch push subscription for the
// lifecycle manager.
type GmailClient struct {
	timeout time.Duration
	br      *MicroBreaker
}

func NewGmailClient(timeoutMs, failThreshold, openForMs int) *GmailClient {
	if timeoutMs <= 0 {
		timeoutMs = 15000
	}
	return &GmailClient{
		timeout: time.Duration(timeoutMs) * time.Millisecond,
		br:      NewMicroBreaker(failThreshold, time.Duration(openForMs)*time.Millisecond),
	}
}

func (c *GmailClient) Name() string { return model.ProviderGmail.String() }

func (c *GmailClient) Send(ctx context.Context, mb model.Mailbox, email model.OutboundEmail) (SendResult, error) {
	if mb.AccessToken == "" {
		return SendResult{}, fmt.Errorf("mailbox %s: no access token", mb.ID)
	}
	if !c.br.TryAcquire() {
		return SendResult{}, ErrUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	srv, err := c.service(ctx, mb.AccessToken)
	if err != nil {
		c.br.OnFailure()
		return SendResult{}, fmt.Errorf("gmail service: %w", err)
	}

	msg := &gmailapi.Message{Raw: encodeRFC822(email)}
	res, err := srv.Users.Messages.Send("me", msg).Context(ctx).Do()
	if err != nil {
		c.br.OnFailure()
		return SendResult{}, normalizeGoogleErr(err)
	}

	c.br.OnSuccess()
	return SendResult{ProviderMessageID: res.Id}, nil
}

// WatchResult is the outcome of a users.watch renewal.
type WatchResult struct {
	Expiration time.Time
	HistoryID  string
}

// RenewWatch re-registers the push-notification subscription. Gmail returns
// the new expiration (ms epoch) and the history id to resume delivery from.
func (c *GmailClient) RenewWatch(ctx context.Context, accessToken, topicName string) (WatchResult, error) {
	if accessToken == "" {
		return WatchResult{}, fmt.Errorf("no access token")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	srv, err := c.service(ctx, accessToken)
	if err != nil {
		return WatchResult{}, fmt.Errorf("gmail service: %w", err)
	}

	req := &gmailapi.WatchRequest{
		TopicName: topicName,
		LabelIds:  []string{"INBOX"},
	}
	res, err := srv.Users.Watch("me", req).Context(ctx).Do()
	if err != nil {
		return WatchResult{}, normalizeGoogleErr(err)
	}

	return WatchResult{
		Expiration: time.UnixMilli(res.Expiration),
		HistoryID:  strconv.FormatUint(res.HistoryId, 10),
	}, nil
}

func (c *GmailClient) service(ctx context.Context, accessToken string) (*gmailapi.Service, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})
	return gmailapi.NewService(ctx, option.WithTokenSource(ts))
}

func encodeRFC822(email model.OutboundEmail) string {
	var b strings.Builder
	b.WriteString("From: " + email.From + "\r\n")
	b.WriteString("To: " + email.To + "\r\n")
	b.WriteString("Subject: " + email.Subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(email.Body)

	return base64.RawURLEncoding.EncodeToString([]byte(b.String()))
}

func normalizeGoogleErr(err error) error {
	var ge *googleapi.Error
	if errors.As(err, &ge) {
		msg := ge.Message
		if msg == "" {
			msg = "request failed"
		}
		return fmt.Errorf("gmail api: status=%d %s", ge.Code, msg)
	}
	return fmt.Errorf("gmail api: %w", err)
}
