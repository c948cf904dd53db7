package model

import (
	"strings"
	"time"
)

type MailboxProvider string

const (
	ProviderGmail   MailboxProvider = "gmail"
	ProviderOutlook MailboxProvider = "outlook"
	ProviderSMTP    MailboxProvider = "smtp"
)

func (p MailboxProvider) String() string { return string(p) }

func (p MailboxProvider) Valid() bool {
	return p == ProviderGmail || p == ProviderOutlook || p == ProviderSMTP
}

// OAuth reports whether the provider authenticates sends with an access token.
func (p MailboxProvider) OAuth() bool {
	return p == ProviderGmail || p == ProviderOutlook
}

// ParseMailboxProvider normalizes input. Returns (value, true) if valid.
func ParseMailboxProvider(s string) (MailboxProvider, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "gmail":
		return ProviderGmail, true
	case "outlook":
		return ProviderOutlook, true
	case "smtp":
		return ProviderSMTP, true
	default:
		return "", false
	}
}

// Mailbox is a per-tenant sending identity. Credential and watch fields are
// mutated by this service; everything else belongs to the OAuth-connect flow.
type Mailbox struct {
	ID           string          `db:"id"`
	TenantID     string          `db:"tenant_id"`
	Email        string          `db:"email"`
	Provider     MailboxProvider `db:"provider"`
	AccessToken  string          `db:"access_token"` // empty = absent
	RefreshToken *string         `db:"refresh_token"`
	TokenExpiry  *time.Time      `db:"token_expires_at"`

	SMTPHost     string `db:"smtp_host"`
	SMTPPort     int    `db:"smtp_port"`
	SMTPUsername string `db:"smtp_username"`
	SMTPPassword string `db:"smtp_password"`

	HourlyLimit int  `db:"hourly_limit"`
	DailyLimit  int  `db:"daily_limit"`
	Active      bool `db:"active"`

	// Gmail push-notification subscription state. WatchHistoryID is the
	// opaque cursor used to resume notification delivery after renewal.
	WatchExpiration *time.Time `db:"watch_expiration"`
	WatchHistoryID  *string    `db:"watch_history_id"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// TokenExpiringWithin reports whether the access token expires before
// now+window. A mailbox with no recorded expiry is treated as not expiring.
func (m Mailbox) TokenExpiringWithin(now time.Time, window time.Duration) bool {
	if m.TokenExpiry == nil {
		return false
	}
	return m.TokenExpiry.Before(now.Add(window))
}
