package repository

import (
	"context"
	"time"

	"github.com/crmkit/email-gateway/internal/model"
	"github.com/jmoiron/sqlx"
)

// SentMessagesRepository persists the write-only send record and serves the
// rolling-window counts the rate limiter needs.
type SentMessagesRepository interface {
	Insert(ctx context.Context, rec model.SentMessage) error

	// CountForMailboxSince counts outbound rows with sent_at >= since.
	CountForMailboxSince(ctx context.Context, mailboxID string, since time.Time) (int, error)
}

type SentMessagesRepositoryImpl struct {
	db *sqlx.DB
}

func NewSentMessagesRepository(db *sqlx.DB) *SentMessagesRepositoryImpl {
	return &SentMessagesRepositoryImpl{db: db}
}

var _ SentMessagesRepository = (*SentMessagesRepositoryImpl)(nil)

func (r *SentMessagesRepositoryImpl) Insert(ctx context.Context, rec model.SentMessage) error {
	const q = `
		INSERT INTO sent_messages
		    (id, tenant_id, mailbox_id, to_address, subject, body,
		     provider_message_id, campaign_id, direction, sent_at)
		VALUES
		    (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, q,
		rec.ID, rec.TenantID, rec.MailboxID, rec.ToAddress, rec.Subject,
		rec.Body, rec.ProviderMessageID, rec.CampaignID, rec.Direction,
		rec.SentAt,
	)
	return err
}

func (r *SentMessagesRepositoryImpl) CountForMailboxSince(ctx context.Context, mailboxID string, since time.Time) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `
		SELECT COUNT(*)
		  FROM sent_messages
		 WHERE mailbox_id = ? AND direction = 'outbound' AND sent_at >= ?
	`, mailboxID, since)
	if err != nil {
		return 0, err
	}
	return n, nil
}
