package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/crmkit/email-gateway/internal/model"
)

var (
	// ErrUnavailable means the provider's breaker is open; the send should
	// be retried on a later run.
	ErrUnavailable = errors.New("provider temporarily unavailable")

	// ErrUnsupported means no client is registered for the mailbox's
	// provider type.
	ErrUnsupported = errors.New("unsupported provider")
)

// SendResult is the normalized outcome of a successful dispatch.
type SendResult struct {
	ProviderMessageID string
}

// Client sends one email through a specific provider. Implementations own
// their transport and error normalization, enforce their own network
// timeout, and never mutate the mailbox or queue stores.
type Client interface {
	Name() string
	Send(ctx context.Context, mb model.Mailbox, email model.OutboundEmail) (SendResult, error)
}

// Registry selects the client by the mailbox's provider field.
type Registry struct {
	clients map[model.MailboxProvider]Client
}

func NewRegistry(clients ...Client) *Registry {
	r := &Registry{clients: make(map[model.MailboxProvider]Client, len(clients))}
	for _, c := range clients {
		if p, ok := model.ParseMailboxProvider(c.Name()); ok {
			r.clients[p] = c
		}
	}
	return r
}

func (r *Registry) For(p model.MailboxProvider) (Client, error) {
	c, ok := r.clients[p]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, p)
	}
	return c, nil
}
