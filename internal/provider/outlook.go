package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/crmkit/email-gateway/internal/model"
)

// OutlookClient dispatches through the Microsoft Graph sendMail endpoint.
type OutlookClient struct {
	baseURL string
	client  *http.Client
	br      *MicroBreaker
}

func NewOutlookClient(baseURL string, timeoutMs, failThreshold, openForMs int) *OutlookClient {
	if baseURL == "" {
		baseURL = "https://graph.microsoft.com/v1.0"
	}
	if timeoutMs <= 0 {
		timeoutMs = 15000
	}

	return &OutlookClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: time.Duration(timeoutMs) * time.Millisecond},
		br:      NewMicroBreaker(failThreshold, time.Duration(openForMs)*time.Millisecond),
	}
}

func (c *OutlookClient) Name() string { return model.ProviderOutlook.String() }

type graphSendRequest struct {
	Message         graphMessage `json:"message"`
	SaveToSentItems bool         `json:"saveToSentItems"`
}

type graphMessage struct {
	Subject      string           `json:"subject"`
	Body         graphBody        `json:"body"`
	ToRecipients []graphRecipient `json:"toRecipients"`
}

type graphBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type graphRecipient struct {
	EmailAddress graphAddress `json:"emailAddress"`
}

type graphAddress struct {
	Address string `json:"address"`
}

func (c *OutlookClient) Send(ctx context.Context, mb model.Mailbox, email model.OutboundEmail) (SendResult, error) {
	if mb.AccessToken == "" {
		return SendResult{}, fmt.Errorf("mailbox %s: no access token", mb.ID)
	}
	if !c.br.TryAcquire() {
		return SendResult{}, ErrUnavailable
	}

	payload := graphSendRequest{
		Message: graphMessage{
			Subject: email.Subject,
			Body:    graphBody{ContentType: "HTML", Content: email.Body},
			ToRecipients: []graphRecipient{
				{EmailAddress: graphAddress{Address: email.To}},
			},
		},
		SaveToSentItems: true,
	}
	b, _ := json.Marshal(payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/me/sendMail", bytes.NewReader(b))
	if err != nil {
		return SendResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+mb.AccessToken)

	res, err := c.client.Do(req)
	if err != nil {
		c.br.OnFailure()
		return SendResult{}, fmt.Errorf("graph sendMail: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode/100 != 2 {
		c.br.OnFailure()
		return SendResult{}, normalizeGraphErr(res)
	}

	c.br.OnSuccess()

	// Graph returns 202 with no body; the request id header is the closest
	// thing to a provider message id it exposes.
	id := res.Header.Get("request-id")
	if id == "" {
		id = res.Header.Get("x-ms-request-id")
	}
	return SendResult{ProviderMessageID: id}, nil
}

func normalizeGraphErr(res *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))

	var ge struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &ge); err == nil && ge.Error.Message != "" {
		return fmt.Errorf("graph api: status=%d code=%s %s", res.StatusCode, ge.Error.Code, ge.Error.Message)
	}
	return fmt.Errorf("graph api: status=%d", res.StatusCode)
}
