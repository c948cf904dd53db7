package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/crmkit/email-gateway/internal/model"
	"github.com/jmoiron/sqlx"
)

// MailboxRepository reads sending identities and persists the credential
// and watch-subscription fields this service owns. Both update methods
// replace a whole pair at once; last-write-wins between the processor and
// the lifecycle manager is fine because neither ever writes a partial pair.
type MailboxRepository interface {
	// GetForTenant returns nil, nil when the mailbox does not exist or
	// belongs to a different tenant.
	GetForTenant(ctx context.Context, id, tenantID string) (*model.Mailbox, error)

	// ListWatchRenewalDue returns active gmail mailboxes whose watch
	// subscription is missing or expires at or before the deadline.
	ListWatchRenewalDue(ctx context.Context, deadline time.Time) ([]model.Mailbox, error)

	// UpdateToken persists a freshly exchanged access token and its expiry.
	UpdateToken(ctx context.Context, id, accessToken string, expiry time.Time, now time.Time) error

	// UpdateWatch persists a renewed subscription expiry and cursor.
	UpdateWatch(ctx context.Context, id string, expiration time.Time, historyID string, now time.Time) error
}

type MailboxRepositoryImpl struct {
	db *sqlx.DB
}

func NewMailboxRepository(db *sqlx.DB) *MailboxRepositoryImpl {
	return &MailboxRepositoryImpl{db: db}
}

var _ MailboxRepository = (*MailboxRepositoryImpl)(nil)

const mailboxColumns = `
	id, tenant_id, email, provider, access_token, refresh_token,
	token_expires_at, smtp_host, smtp_port, smtp_username, smtp_password,
	hourly_limit, daily_limit, active, watch_expiration, watch_history_id,
	created_at, updated_at
`

func (r *MailboxRepositoryImpl) GetForTenant(ctx context.Context, id, tenantID string) (*model.Mailbox, error) {
	var m model.Mailbox
	err := r.db.GetContext(ctx, &m, `
		SELECT `+mailboxColumns+`
		  FROM mailboxes
		 WHERE id = ? AND tenant_id = ? LIMIT 1
	`, id, tenantID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *MailboxRepositoryImpl) ListWatchRenewalDue(ctx context.Context, deadline time.Time) ([]model.Mailbox, error) {
	var out []model.Mailbox
	err := r.db.SelectContext(ctx, &out, `
		SELECT `+mailboxColumns+`
		  FROM mailboxes
		 WHERE active = 1
		   AND provider = ?
		   AND (watch_expiration IS NULL OR watch_expiration <= ?)
	`, model.ProviderGmail, deadline)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *MailboxRepositoryImpl) UpdateToken(ctx context.Context, id, accessToken string, expiry time.Time, now time.Time) error {
	const q = `
		UPDATE mailboxes
		   SET access_token = ?, token_expires_at = ?, updated_at = ?
		 WHERE id = ?
	`
	res, err := r.db.ExecContext(ctx, q, accessToken, expiry, now, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MailboxRepositoryImpl) UpdateWatch(ctx context.Context, id string, expiration time.Time, historyID string, now time.Time) error {
	const q = `
		UPDATE mailboxes
		   SET watch_expiration = ?, watch_history_id = ?, updated_at = ?
		 WHERE id = ?
	`
	res, err := r.db.ExecContext(ctx, q, expiration, historyID, now, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
