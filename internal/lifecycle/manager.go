package lifecycle

import (
	"context"
	"time"

	"github.com/crmkit/email-gateway/internal/logger"
	"github.com/crmkit/email-gateway/internal/metrics"
	"github.com/crmkit/email-gateway/internal/model"
	"github.com/crmkit/email-gateway/internal/provider"
	"github.com/crmkit/email-gateway/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// TokenRefresher exchanges a mailbox's refresh token for a new access token.
type TokenRefresher interface {
	Refresh(ctx context.Context, mb model.Mailbox) (*oauth2.Token, error)
}

// WatchRenewer re-registers a mailbox's push-notification subscription.
type WatchRenewer interface {
	RenewWatch(ctx context.Context, accessToken, topicName string) (provider.WatchResult, error)
}

// Manager keeps OAuth access tokens and gmail watch subscriptions alive
// independently of message flow. It runs on its own (daily) schedule;
// failures are per-mailbox and the next invocation naturally retries any
// mailbox still inside the lookahead window.
type Manager struct {
	Mailboxes repository.MailboxRepository
	Tokens    TokenRefresher
	Watcher   WatchRenewer

	Lookahead        time.Duration // subscription renewal eligibility window
	RefreshThreshold time.Duration // proactive token refresh window
	PubSubTopic      string

	log *zap.Logger
}

func New(mailboxes repository.MailboxRepository, tokens TokenRefresher, watcher WatchRenewer, pubsubTopic string) *Manager {
	return &Manager{
		Mailboxes:        mailboxes,
		Tokens:           tokens,
		Watcher:          watcher,
		Lookahead:        24 * time.Hour,
		RefreshThreshold: 5 * time.Minute,
		PubSubTopic:      pubsubTopic,
		log:              logger.Named("lifecycle"),
	}
}

// Run renews every active gmail mailbox whose subscription is missing or
// expires within the lookahead window. Including already-expired
// subscriptions is deliberate: renewal is idempotent and cheap.
func (m *Manager) Run(ctx context.Context, now time.Time) (model.RenewalSummary, error) {
	boxes, err := m.Mailboxes.ListWatchRenewalDue(ctx, now.Add(m.Lookahead))
	if err != nil {
		return model.RenewalSummary{}, err
	}

	var s model.RenewalSummary
	for _, mb := range boxes {
		r := m.renewOne(ctx, mb, now)
		metrics.RenewalsTotal.WithLabelValues(string(r.Status)).Inc()
		s.Add(r)
	}

	m.log.Info("lifecycle run finished",
		zap.Int("total", s.Total),
		zap.Int("renewed", s.Renewed),
		zap.Int("failed", s.Failed),
	)
	return s, nil
}

func (m *Manager) renewOne(ctx context.Context, mb model.Mailbox, now time.Time) model.RenewalResult {
	token := mb.AccessToken
	hasRefresh := mb.RefreshToken != nil && *mb.RefreshToken != ""

	switch {
	case token == "" && hasRefresh:
		tok, err := m.Tokens.Refresh(ctx, mb)
		if err != nil {
			m.log.Warn("token exchange failed",
				zap.String("mailbox_id", mb.ID), zap.Error(err))
			return failed(mb.ID, "could not obtain access token")
		}
		m.persistToken(ctx, mb.ID, tok, now)
		token = tok.AccessToken

	case token != "" && hasRefresh && mb.TokenExpiringWithin(now, m.RefreshThreshold):
		tok, err := m.Tokens.Refresh(ctx, mb)
		if err != nil {
			m.log.Warn("proactive token refresh failed",
				zap.String("mailbox_id", mb.ID), zap.Error(err))
			return failed(mb.ID, "could not refresh access token")
		}
		m.persistToken(ctx, mb.ID, tok, now)
		token = tok.AccessToken
	}

	if token == "" {
		return failed(mb.ID, "missing token")
	}

	watch, err := m.Watcher.RenewWatch(ctx, token, m.PubSubTopic)
	if err != nil {
		m.log.Warn("watch renewal failed",
			zap.String("mailbox_id", mb.ID), zap.Error(err))
		return failed(mb.ID, err.Error())
	}

	if err := m.Mailboxes.UpdateWatch(ctx, mb.ID, watch.Expiration, watch.HistoryID, now); err != nil {
		m.log.Error("persist watch renewal",
			zap.String("mailbox_id", mb.ID), zap.Error(err))
		return failed(mb.ID, "could not persist renewed subscription")
	}

	exp := watch.Expiration
	return model.RenewalResult{
		MailboxID:  mb.ID,
		Status:     model.RenewalRenewed,
		Expiration: &exp,
	}
}

func (m *Manager) persistToken(ctx context.Context, mailboxID string, tok *oauth2.Token, now time.Time) {
	if err := m.Mailboxes.UpdateToken(ctx, mailboxID, tok.AccessToken, tok.Expiry, now); err != nil {
		m.log.Error("persist refreshed token",
			zap.String("mailbox_id", mailboxID), zap.Error(err))
	}
}

func failed(mailboxID, reason string) model.RenewalResult {
	return model.RenewalResult{MailboxID: mailboxID, Status: model.RenewalFailed, Error: reason}
}
