package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/crmkit/email-gateway/internal/logger"
	"github.com/crmkit/email-gateway/internal/metrics"
	"github.com/crmkit/email-gateway/internal/model"
	"github.com/crmkit/email-gateway/internal/provider"
	"github.com/crmkit/email-gateway/internal/repository"
	"github.com/crmkit/email-gateway/internal/util"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const (
	maxLastError = 1024
	staleError   = "processing timed out"
)

// TokenRefresher exchanges a mailbox's refresh token for a new access token.
type TokenRefresher interface {
	Refresh(ctx context.Context, mb model.Mailbox) (*oauth2.Token, error)
}

// EventPublisher announces successful sends to the outside. Implementations
// must never fail the send path.
type EventPublisher interface {
	EmailSent(ctx context.Context, rec model.SentMessage)
}

// Processor drains up to BatchSize eligible queue items in one scheduled
// run: claim, resolve mailbox, rate-limit, dispatch, bookkeep. Items are
// processed strictly in sequence so rate-limit counting stays simple and a
// mailbox is never burst within a run.
type Processor struct {
	// Dependencies
	Queue     repository.QueueRepository
	Mailboxes repository.MailboxRepository
	Sent      repository.SentMessagesRepository
	Providers *provider.Registry
	Limiter   *RateLimiter
	Tokens    TokenRefresher // optional; OAuth send-path refresh
	Events    EventPublisher // optional

	// Behavior
	BatchSize        int
	StaleAfter       time.Duration
	RefreshThreshold time.Duration

	log *zap.Logger
}

// New builds a processor with default knobs.
func New(
	queue repository.QueueRepository,
	mailboxes repository.MailboxRepository,
	sent repository.SentMessagesRepository,
	providers *provider.Registry,
	limiter *RateLimiter,
) *Processor {
	return &Processor{
		Queue:            queue,
		Mailboxes:        mailboxes,
		Sent:             sent,
		Providers:        providers,
		Limiter:          limiter,
		BatchSize:        200,
		StaleAfter:       15 * time.Minute,
		RefreshThreshold: 5 * time.Minute,
		log:              logger.Named("processor"),
	}
}

// Run performs one invocation at now. Per-item errors land in the summary;
// only a whole-run precondition failure (unreachable store) returns an error.
func (p *Processor) Run(ctx context.Context, now time.Time) (model.RunSummary, error) {
	started := time.Now()

	swept, err := p.Queue.RequeueStale(ctx, now.Add(-p.StaleAfter), staleError, now)
	if err != nil {
		return model.RunSummary{}, fmt.Errorf("requeue stale: %w", err)
	}
	if swept > 0 {
		metrics.StaleRequeuedTotal.Add(float64(swept))
		p.log.Warn("recovered items stuck in processing", zap.Int64("count", swept))
	}

	items, err := p.Queue.FetchDue(ctx, now, p.BatchSize)
	if err != nil {
		return model.RunSummary{}, fmt.Errorf("fetch due: %w", err)
	}

	var s model.RunSummary
	for _, it := range items {
		s.Add(p.processOne(ctx, it, now))
	}

	s.Duration = time.Since(started)
	metrics.QueueRunDuration.Observe(s.Duration.Seconds())

	p.log.Info("queue run finished",
		zap.Int("processed", s.Processed),
		zap.Int("successful", s.Successful),
		zap.Int("failed", s.Failed),
		zap.Int("skipped", s.Skipped),
		zap.Duration("duration", s.Duration),
	)
	return s, nil
}

func (p *Processor) processOne(ctx context.Context, it model.QueueItem, now time.Time) (res model.ItemResult) {
	providerLabel := "unknown"
	defer func() {
		if r := recover(); r != nil {
			// a panic after the claim must not leave the item in processing
			p.log.Error("panic while processing item",
				zap.String("item_id", it.ID), zap.Any("panic", r))
			res = p.sendFailure(ctx, it, fmt.Errorf("panic: %v", r), now)
		}
		metrics.QueueItemsTotal.WithLabelValues(string(res.Status), providerLabel).Inc()
	}()

	if err := p.Queue.Claim(ctx, it.ID, now); err != nil {
		if errors.Is(err, repository.ErrAlreadyClaimed) {
			return model.ItemResult{ItemID: it.ID, Status: model.OutcomeSkipped,
				Error: "already claimed by another run", RetryCount: it.RetryCount}
		}
		// claim never went through, so the item is still safely queued
		return model.ItemResult{ItemID: it.ID, Status: model.OutcomeSkipped,
			Error: truncateErr(fmt.Errorf("claim: %w", err)), RetryCount: it.RetryCount}
	}

	mb, err := p.Mailboxes.GetForTenant(ctx, it.MailboxID, it.TenantID)
	if err != nil {
		return p.sendFailure(ctx, it, fmt.Errorf("resolve mailbox: %w", err), now)
	}
	if mb == nil {
		return p.terminalFailure(ctx, it, "mailbox not found", now)
	}
	if !mb.Active {
		return p.terminalFailure(ctx, it, "mailbox inactive", now)
	}
	providerLabel = mb.Provider.String()

	to, err := util.NormalizeAddress(it.ToAddress)
	if err != nil {
		// the row itself is malformed, retrying cannot fix it
		return p.terminalFailure(ctx, it, truncateErr(err), now)
	}

	dec, err := p.Limiter.Check(ctx, *mb, now)
	if err != nil {
		return p.sendFailure(ctx, it, fmt.Errorf("rate limit: %w", err), now)
	}
	if !dec.Allowed {
		// throttling is not failure: no retry consumed
		if err := p.Queue.Release(ctx, it.ID, now); err != nil {
			p.log.Error("release throttled item", zap.String("item_id", it.ID), zap.Error(err))
		}
		return model.ItemResult{ItemID: it.ID, Status: model.OutcomeSkipped,
			Error: dec.Reason, RetryCount: it.RetryCount}
	}

	if p.Tokens != nil && mb.Provider.OAuth() && mb.RefreshToken != nil &&
		(mb.AccessToken == "" || mb.TokenExpiringWithin(now, p.RefreshThreshold)) {
		tok, err := p.Tokens.Refresh(ctx, *mb)
		if err != nil {
			return p.sendFailure(ctx, it, fmt.Errorf("refresh access token: %w", err), now)
		}
		if err := p.Mailboxes.UpdateToken(ctx, mb.ID, tok.AccessToken, tok.Expiry, now); err != nil {
			p.log.Warn("persist refreshed token", zap.String("mailbox_id", mb.ID), zap.Error(err))
		}
		mb.AccessToken = tok.AccessToken
		mb.TokenExpiry = &tok.Expiry
	}

	client, err := p.Providers.For(mb.Provider)
	if err != nil {
		return p.terminalFailure(ctx, it, truncateErr(err), now)
	}

	out, err := client.Send(ctx, *mb, model.OutboundEmail{
		From:    mb.Email,
		To:      to,
		Subject: it.Subject,
		Body:    it.Body,
	})
	if err != nil {
		return p.sendFailure(ctx, it, err, now)
	}

	rec := model.SentMessage{
		ID:                util.NewID(),
		TenantID:          it.TenantID,
		MailboxID:         mb.ID,
		ToAddress:         to,
		Subject:           it.Subject,
		Body:              it.Body,
		ProviderMessageID: out.ProviderMessageID,
		CampaignID:        it.CampaignID,
		Direction:         model.DirectionOutbound,
		SentAt:            now,
	}
	if err := p.Sent.Insert(ctx, rec); err != nil {
		// the mail is out the door; losing the record beats double-sending
		p.log.Error("record sent message", zap.String("item_id", it.ID), zap.Error(err))
	}
	if err := p.Queue.MarkSent(ctx, it.ID, now); err != nil {
		p.log.Error("mark item sent", zap.String("item_id", it.ID), zap.Error(err))
	}
	if p.Events != nil {
		p.Events.EmailSent(ctx, rec)
	}

	return model.ItemResult{ItemID: it.ID, Status: model.OutcomeSuccess,
		ProviderMessageID: out.ProviderMessageID, RetryCount: it.RetryCount}
}

// terminalFailure handles conditions a retry cannot cure (mailbox missing or
// inactive, malformed row): retry count still ticks, status goes to failed.
func (p *Processor) terminalFailure(ctx context.Context, it model.QueueItem, msg string, now time.Time) model.ItemResult {
	if err := p.Queue.MarkFailed(ctx, it.ID, msg, now); err != nil {
		p.log.Error("mark item failed", zap.String("item_id", it.ID), zap.Error(err))
	}
	return model.ItemResult{ItemID: it.ID, Status: model.OutcomeFailed,
		Error: msg, RetryCount: it.RetryCount + 1}
}

// sendFailure applies the transient-failure bookkeeping: one retry consumed,
// requeue while attempts remain, terminal failed once they run out.
func (p *Processor) sendFailure(ctx context.Context, it model.QueueItem, sendErr error, now time.Time) model.ItemResult {
	msg := truncateErr(sendErr)
	retry := it.RetryCount + 1

	if retry >= it.MaxRetries {
		if err := p.Queue.MarkFailed(ctx, it.ID, msg, now); err != nil {
			p.log.Error("mark item failed", zap.String("item_id", it.ID), zap.Error(err))
		}
		return model.ItemResult{ItemID: it.ID, Status: model.OutcomeFailed,
			Error: msg, RetryCount: retry}
	}

	if err := p.Queue.RequeueForRetry(ctx, it.ID, msg, now); err != nil {
		p.log.Error("requeue item for retry", zap.String("item_id", it.ID), zap.Error(err))
	}
	return model.ItemResult{ItemID: it.ID, Status: model.OutcomeSkipped,
		Error: msg, RetryCount: retry}
}

func truncateErr(err error) string {
	msg := err.Error()
	if len(msg) > maxLastError {
		msg = msg[:maxLastError]
	}
	return msg
}
