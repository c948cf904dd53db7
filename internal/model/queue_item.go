package model

import "time"

type QueueStatus string

const (
	StatusQueued     QueueStatus = "queued"
	StatusProcessing QueueStatus = "processing"
	StatusSent       QueueStatus = "sent"
	StatusFailed     QueueStatus = "failed"
)

func (s QueueStatus) String() string {
	return string(s)
}

func (s QueueStatus) Valid() bool {
	return s == StatusQueued || s == StatusProcessing || s == StatusSent || s == StatusFailed
}

// Terminal reports whether no further automatic transition happens from s.
func (s QueueStatus) Terminal() bool {
	return s == StatusSent || s == StatusFailed
}

// QueueItem is one pending outbound-email request in the email_queue table.
// Rows are created by the CRM/campaign layer and mutated only by the queue
// processor; they are never deleted here.
type QueueItem struct {
	ID          string      `db:"id"`
	TenantID    string      `db:"tenant_id"`
	MailboxID   string      `db:"mailbox_id"`
	ToAddress   string      `db:"to_address"`
	Subject     string      `db:"subject"`
	Body        string      `db:"body"`
	TemplateID  *string     `db:"template_id"`
	CampaignID  *string     `db:"campaign_id"`
	Priority    int         `db:"priority"`
	ScheduledAt *time.Time  `db:"scheduled_at"` // nil or past = eligible now
	Status      QueueStatus `db:"status"`
	RetryCount  int         `db:"retry_count"`
	MaxRetries  int         `db:"max_retries"`
	LastError   *string     `db:"last_error"`
	ProcessedAt *time.Time  `db:"processed_at"`
	CreatedAt   time.Time   `db:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at"`
}

// Due reports whether the item is eligible for processing at now.
func (q QueueItem) Due(now time.Time) bool {
	if q.Status != StatusQueued {
		return false
	}
	return q.ScheduledAt == nil || !q.ScheduledAt.After(now)
}
