package cmd

import (
	"fmt"
	"log"
	"time"

	"github.com/crmkit/email-gateway/internal/config"
	"github.com/crmkit/email-gateway/internal/db"
	"github.com/crmkit/email-gateway/internal/model"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with demo mailboxes and queue items",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		sqlDB, err := db.NewMySQLConnection(cfg.MySQL.DSN, db.MySQLOpts{
			MaxOpenConns:    cfg.MySQL.MaxOpenConns,
			MaxIdleConns:    cfg.MySQL.MaxIdleConns,
			ConnMaxLifetime: cfg.MySQL.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.MySQL.ConnMaxIdleTime,
			PingTimeout:     cfg.MySQL.PingTimeout,
		})
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer sqlDB.Close()

		log.Println(">> Seeding demo mailboxes and queue items...")

		if err := seedMailboxes(sqlDB); err != nil {
			return err
		}
		if err := seedQueueItems(sqlDB); err != nil {
			return err
		}

		log.Println(">> Seed completed")
		return nil
	},
}

type seedMailbox struct {
	id       string
	tenantID string
	email    string
	provider model.MailboxProvider
	active   bool
	hourly   int
	daily    int
	smtpHost string
	smtpPort int
}

// seedMailboxes inserts deterministic demo mailboxes (idempotent).
func seedMailboxes(dbx *sqlx.DB) error {
	boxes := []seedMailbox{
		{
			id:       "mbx-demo-gmail",
			tenantID: "tenant-demo",
			email:    "outreach@acme-demo.test",
			provider: model.ProviderGmail,
			active:   true,
			hourly:   100,
			daily:    500,
		},
		{
			id:       "mbx-demo-smtp",
			tenantID: "tenant-demo",
			email:    "sales@acme-demo.test",
			provider: model.ProviderSMTP,
			active:   true,
			hourly:   50,
			daily:    200,
			smtpHost: "127.0.0.1",
			smtpPort: 1025,
		},
		{
			id:       "mbx-demo-paused",
			tenantID: "tenant-demo",
			email:    "paused@acme-demo.test",
			provider: model.ProviderOutlook,
			active:   false,
			hourly:   100,
			daily:    500,
		},
	}

	// idempotent upsert based on id (PRIMARY KEY)
	const q = `
INSERT INTO mailboxes
    (id, tenant_id, email, provider, access_token, refresh_token,
     smtp_host, smtp_port, smtp_username, smtp_password,
     hourly_limit, daily_limit, active, created_at, updated_at)
VALUES
    (?, ?, ?, ?, '', NULL, ?, ?, '', '', ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
    email        = VALUES(email),
    provider     = VALUES(provider),
    hourly_limit = VALUES(hourly_limit),
    daily_limit  = VALUES(daily_limit),
    active       = VALUES(active),
    updated_at   = VALUES(updated_at)
`
	tx, err := dbx.Beginx()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now()
	for _, m := range boxes {
		if _, err := tx.Exec(q, m.id, m.tenantID, m.email, m.provider.String(),
			m.smtpHost, m.smtpPort, m.hourly, m.daily, m.active, now, now); err != nil {
			return fmt.Errorf("insert mailbox %q: %w", m.id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit mailboxes: %w", err)
	}
	return nil
}

// seedQueueItems inserts a few queued demo sends (idempotent).
func seedQueueItems(dbx *sqlx.DB) error {
	type seedItem struct {
		id        string
		mailboxID string
		to        string
		subject   string
		priority  int
	}
	items := []seedItem{
		{"itm-demo-1", "mbx-demo-smtp", "alice@example.test", "Welcome aboard", 5},
		{"itm-demo-2", "mbx-demo-smtp", "bob@example.test", "Your trial is ending", 1},
		{"itm-demo-3", "mbx-demo-gmail", "carol@example.test", "Quick question", 3},
	}

	const q = `
INSERT INTO email_queue
    (id, tenant_id, mailbox_id, to_address, subject, body,
     priority, status, retry_count, max_retries, created_at, updated_at)
VALUES
    (?, 'tenant-demo', ?, ?, ?, '<p>Hello from the demo seed.</p>',
     ?, 'queued', 0, 3, ?, ?)
ON DUPLICATE KEY UPDATE
    priority   = VALUES(priority),
    updated_at = VALUES(updated_at)
`
	now := time.Now()
	for _, it := range items {
		if _, err := dbx.Exec(q, it.id, it.mailboxID, it.to, it.subject, it.priority, now, now); err != nil {
			return fmt.Errorf("insert queue item %q: %w", it.id, err)
		}
	}
	return nil
}
