package http

import (
	"context"
	"net/http"
	"time"

	"github.com/crmkit/email-gateway/internal/config"
	"github.com/crmkit/email-gateway/internal/events"
	"github.com/crmkit/email-gateway/internal/http/middleware"
	"github.com/crmkit/email-gateway/internal/lifecycle"
	"github.com/crmkit/email-gateway/internal/logger"
	"github.com/crmkit/email-gateway/internal/metrics"
	"github.com/crmkit/email-gateway/internal/processor"
	"github.com/crmkit/email-gateway/internal/provider"
	"github.com/crmkit/email-gateway/internal/repository"
	"github.com/jmoiron/sqlx"
	echo "github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Server struct {
	e   *echo.Echo
	pub *events.KafkaPublisher
}

// NewServer wires repositories, providers, the processor and the lifecycle
// manager behind the two scheduler endpoints.
func NewServer(cfg config.Config, mysqlDB *sqlx.DB, rds *redis.Client) *Server {
	// repos
	queueRepo := repository.NewQueueRepository(mysqlDB)
	mailboxRepo := repository.NewMailboxRepository(mysqlDB)
	sentRepo := repository.NewSentMessagesRepository(mysqlDB)

	// provider clients
	gmailClient := provider.NewGmailClient(
		cfg.Providers.Gmail.TimeoutMs,
		cfg.Providers.Gmail.Breaker.FailThreshold,
		cfg.Providers.Gmail.Breaker.OpenForMs,
	)
	outlookClient := provider.NewOutlookClient(
		cfg.Providers.Outlook.BaseURL,
		cfg.Providers.Outlook.TimeoutMs,
		cfg.Providers.Outlook.Breaker.FailThreshold,
		cfg.Providers.Outlook.Breaker.OpenForMs,
	)
	smtpClient := provider.NewSMTPClient(cfg.Providers.SMTP.TimeoutMs)
	registry := provider.NewRegistry(gmailClient, outlookClient, smtpClient)

	tokens := provider.NewTokenExchanger(cfg.OAuth)

	// optional sent-event publisher
	pub := events.NewKafkaPublisher(events.Config{
		Brokers:      cfg.Kafka.Brokers,
		Topic:        cfg.Kafka.SentTopic,
		WriteTimeout: time.Duration(cfg.Kafka.WriteTimeout) * time.Millisecond,
		RequiredAcks: cfg.Kafka.RequiredAcks,
		AutoCreate:   cfg.Kafka.AllowAutoInit,
	})

	// queue processor
	proc := processor.New(queueRepo, mailboxRepo, sentRepo, registry,
		processor.NewRateLimiter(sentRepo))
	proc.BatchSize = cfg.Queue.BatchSize
	proc.StaleAfter = cfg.Queue.StaleAfter
	proc.RefreshThreshold = cfg.Lifecycle.RefreshThreshold
	proc.Tokens = tokens
	if pub != nil {
		proc.Events = pub
	}

	// lifecycle manager
	mgr := lifecycle.New(mailboxRepo, tokens, gmailClient, cfg.Lifecycle.PubSubTopic)
	mgr.Lookahead = cfg.Lifecycle.Lookahead
	mgr.RefreshThreshold = cfg.Lifecycle.RefreshThreshold

	// echo
	e := echo.New()
	e.HideBanner = true
	e.Use(echoMid.Recover(), echoMid.Logger())

	metrics.MustRegister(prometheus.DefaultRegisterer)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// health
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	// middlewares
	authMW := middleware.CronSecret(cfg.HTTP.CronSecret)
	rlMW := middleware.RateLimit(middleware.RateLimitConfig{
		Redis:          rds,
		RPS:            cfg.RateLimit.RPS,
		RetryAfterHint: true,
	})

	// routes: GET for the scheduler, POST for manual triggers (rate limited)
	v1 := e.Group("/v1", authMW)
	queueHandler := processQueueHandler(proc)
	renewHandler := renewSubscriptionsHandler(mgr)

	v1.GET("/queue/process", queueHandler)
	v1.POST("/queue/process", queueHandler, rlMW)
	v1.GET("/subscriptions/renew", renewHandler)
	v1.POST("/subscriptions/renew", renewHandler, rlMW)

	return &Server{e: e, pub: pub}
}

func (s *Server) Start(addr string) error {
	logger.Log.Info("http: listening", zap.String("addr", addr))
	return s.e.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.pub != nil {
		_ = s.pub.Close()
	}
	return s.e.Shutdown(ctx)
}
