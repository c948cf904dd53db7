package run

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/crmkit/email-gateway/internal/config"
	"github.com/crmkit/email-gateway/internal/db"
	"github.com/crmkit/email-gateway/internal/events"
	"github.com/crmkit/email-gateway/internal/lifecycle"
	"github.com/crmkit/email-gateway/internal/logger"
	"github.com/crmkit/email-gateway/internal/metrics"
	"github.com/crmkit/email-gateway/internal/processor"
	"github.com/crmkit/email-gateway/internal/provider"
	"github.com/crmkit/email-gateway/internal/repository"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Process one batch of the email queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDeps(cmd, func(ctx context.Context, cfg config.Config, dbx *sqlx.DB) error {
			proc, pub := buildProcessor(cfg, dbx)
			if pub != nil {
				defer func() { _ = pub.Close() }()
			}

			summary, err := proc.Run(ctx, time.Now().UTC())
			if err != nil {
				return fmt.Errorf("queue run: %w", err)
			}
			return printJSON(summary)
		})
	},
}

var lifecycleCmd = &cobra.Command{
	Use:   "lifecycle",
	Short: "Refresh tokens and renew push subscriptions once",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDeps(cmd, func(ctx context.Context, cfg config.Config, dbx *sqlx.DB) error {
			mgr := buildLifecycle(cfg, dbx)

			summary, err := mgr.Run(ctx, time.Now().UTC())
			if err != nil {
				return fmt.Errorf("lifecycle run: %w", err)
			}
			return printJSON(summary)
		})
	},
}

// withDeps loads config, connects MySQL and hands a signal-aware context to
// the job body.
func withDeps(cmd *cobra.Command, fn func(context.Context, config.Config, *sqlx.DB) error) error {
	cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger.Init(cfg.Log.Level)
	defer func() { _ = logger.Log.Sync() }()

	metrics.MustRegister(prometheus.DefaultRegisterer)

	dbx, err := db.NewMySQLConnection(cfg.MySQL.DSN, db.MySQLOpts{
		MaxOpenConns:    cfg.MySQL.MaxOpenConns,
		MaxIdleConns:    cfg.MySQL.MaxIdleConns,
		ConnMaxLifetime: cfg.MySQL.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.MySQL.ConnMaxIdleTime,
		PingTimeout:     cfg.MySQL.PingTimeout,
	})
	if err != nil {
		return fmt.Errorf("mysql connect: %w", err)
	}
	defer dbx.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return fn(ctx, cfg, dbx)
}

func buildProcessor(cfg config.Config, dbx *sqlx.DB) (*processor.Processor, *events.KafkaPublisher) {
	queueRepo := repository.NewQueueRepository(dbx)
	mailboxRepo := repository.NewMailboxRepository(dbx)
	sentRepo := repository.NewSentMessagesRepository(dbx)

	registry := provider.NewRegistry(
		provider.NewGmailClient(
			cfg.Providers.Gmail.TimeoutMs,
			cfg.Providers.Gmail.Breaker.FailThreshold,
			cfg.Providers.Gmail.Breaker.OpenForMs,
		),
		provider.NewOutlookClient(
			cfg.Providers.Outlook.BaseURL,
			cfg.Providers.Outlook.TimeoutMs,
			cfg.Providers.Outlook.Breaker.FailThreshold,
			cfg.Providers.Outlook.Breaker.OpenForMs,
		),
		provider.NewSMTPClient(cfg.Providers.SMTP.TimeoutMs),
	)

	pub := events.NewKafkaPublisher(events.Config{
		Brokers:      cfg.Kafka.Brokers,
		Topic:        cfg.Kafka.SentTopic,
		WriteTimeout: time.Duration(cfg.Kafka.WriteTimeout) * time.Millisecond,
		RequiredAcks: cfg.Kafka.RequiredAcks,
		AutoCreate:   cfg.Kafka.AllowAutoInit,
	})

	proc := processor.New(queueRepo, mailboxRepo, sentRepo, registry,
		processor.NewRateLimiter(sentRepo))
	proc.BatchSize = cfg.Queue.BatchSize
	proc.StaleAfter = cfg.Queue.StaleAfter
	proc.RefreshThreshold = cfg.Lifecycle.RefreshThreshold
	proc.Tokens = provider.NewTokenExchanger(cfg.OAuth)
	if pub != nil {
		proc.Events = pub
	}

	return proc, pub
}

func buildLifecycle(cfg config.Config, dbx *sqlx.DB) *lifecycle.Manager {
	mailboxRepo := repository.NewMailboxRepository(dbx)

	gmailClient := provider.NewGmailClient(
		cfg.Providers.Gmail.TimeoutMs,
		cfg.Providers.Gmail.Breaker.FailThreshold,
		cfg.Providers.Gmail.Breaker.OpenForMs,
	)

	mgr := lifecycle.New(mailboxRepo, provider.NewTokenExchanger(cfg.OAuth),
		gmailClient, cfg.Lifecycle.PubSubTopic)
	mgr.Lookahead = cfg.Lifecycle.Lookahead
	mgr.RefreshThreshold = cfg.Lifecycle.RefreshThreshold

	return mgr
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
