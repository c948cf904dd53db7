package model

import "time"

const DirectionOutbound = "outbound"

// SentMessage is the write-only record of one successful send. The unibox
// and analytics layers read it; this service only counts rows for the
// rolling rate-limit windows.
type SentMessage struct {
	ID                string    `db:"id"`
	TenantID          string    `db:"tenant_id"`
	MailboxID         string    `db:"mailbox_id"`
	ToAddress         string    `db:"to_address"`
	Subject           string    `db:"subject"`
	Body              string    `db:"body"`
	ProviderMessageID string    `db:"provider_message_id"`
	CampaignID        *string   `db:"campaign_id"`
	Direction         string    `db:"direction"`
	SentAt            time.Time `db:"sent_at"`
}

// OutboundEmail is the payload handed to a provider client.
type OutboundEmail struct {
	From    string
	To      string
	Subject string
	Body    string
}
