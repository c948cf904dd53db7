package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/crmkit/email-gateway/internal/logger"
	"github.com/crmkit/email-gateway/internal/model"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// SentEvent is the payload published for the analytics/unibox side after a
// successful send.
type SentEvent struct {
	ID                string    `json:"id"`
	TenantID          string    `json:"tenant_id"`
	MailboxID         string    `json:"mailbox_id"`
	ToAddress         string    `json:"to_address"`
	Subject           string    `json:"subject"`
	ProviderMessageID string    `json:"provider_message_id"`
	CampaignID        *string   `json:"campaign_id,omitempty"`
	SentAt            time.Time `json:"sent_at"`
}

// KafkaPublisher is a thin wrapper around a kafka-go Writer. Publishing is
// fire-and-forget: a broker hiccup must never change queue bookkeeping.
type KafkaPublisher struct {
	w   *kafka.Writer
	log *zap.Logger
}

type Config struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration // default 3s
	RequiredAcks int           // default 1 (leader)
	AutoCreate   bool
}

// NewKafkaPublisher returns nil when no brokers are configured, which
// callers treat as publishing disabled.
func NewKafkaPublisher(c Config) *KafkaPublisher {
	if len(c.Brokers) == 0 {
		return nil
	}

	wt := c.WriteTimeout
	if wt <= 0 {
		wt = 3 * time.Second
	}
	acks := kafka.RequireOne
	if c.RequiredAcks < 0 {
		acks = kafka.RequireNone
	} else if c.RequiredAcks > 1 {
		acks = kafka.RequireAll
	}

	w := &kafka.Writer{
		Addr:                   kafka.TCP(c.Brokers...),
		Topic:                  c.Topic,
		Balancer:               &kafka.Hash{},
		WriteTimeout:           wt,
		RequiredAcks:           acks,
		AllowAutoTopicCreation: c.AutoCreate,
	}

	return &KafkaPublisher{w: w, log: logger.Named("events")}
}

// EmailSent publishes one sent-message event keyed by mailbox so events for
// the same sender stay ordered.
func (p *KafkaPublisher) EmailSent(ctx context.Context, rec model.SentMessage) {
	ev := SentEvent{
		ID:                rec.ID,
		TenantID:          rec.TenantID,
		MailboxID:         rec.MailboxID,
		ToAddress:         rec.ToAddress,
		Subject:           rec.Subject,
		ProviderMessageID: rec.ProviderMessageID,
		CampaignID:        rec.CampaignID,
		SentAt:            rec.SentAt,
	}
	b, err := json.Marshal(ev)
	if err != nil {
		p.log.Error("marshal sent event", zap.Error(err))
		return
	}

	err = p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(rec.MailboxID),
		Value: b,
	})
	if err != nil {
		p.log.Error("publish sent event",
			zap.String("message_id", rec.ID), zap.Error(err))
	}
}

func (p *KafkaPublisher) Close() error { return p.w.Close() }
