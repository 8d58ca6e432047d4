// SPDX-FileCopyrightText: 2026 BabelMeet contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package events feeds finalized caption events to Kafka for downstream
// consumers. The feed is fire-and-forget; the relay never persists call
// history itself.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// CaptionEvent is the record published per finalized, translated caption.
type CaptionEvent struct {
	CallID      string    `json:"callId"`
	SpeakerID   string    `json:"speakerId"`
	RecipientID string    `json:"recipientId"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	Original    string    `json:"original"`
	Translated  string    `json:"translated"`
	EmittedAt   time.Time `json:"emittedAt"`
}

type Publisher struct {
	writer  *kafka.Writer
	topic   string
	enabled bool
	logger  *slog.Logger
}

type Config struct {
	Brokers []string
	Topic   string
}

// New creates the caption feed. Without brokers it runs in log-only mode.
func New(cfg Config) *Publisher {
	logger := slog.With("component", "caption_feed")

	if len(cfg.Brokers) == 0 {
		logger.Info("kafka disabled, caption feed in log-only mode")
		return &Publisher{topic: cfg.Topic, logger: logger}
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
	}

	logger.Info("caption feed initialized", "brokers", cfg.Brokers, "topic", cfg.Topic)
	return &Publisher{
		writer:  writer,
		topic:   cfg.Topic,
		enabled: true,
		logger:  logger,
	}
}

// PublishCaption writes one caption event keyed by call id. Failures are
// logged and swallowed; the feed must never block caption delivery.
func (p *Publisher) PublishCaption(ctx context.Context, ev CaptionEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		p.logger.Error("failed to marshal caption event", "error", err)
		return
	}

	if !p.enabled {
		p.logger.Debug("caption event", "call_id", ev.CallID, "payload", string(payload))
		return
	}

	msg := kafka.Message{
		Key:   []byte(ev.CallID),
		Value: payload,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("failed to publish caption event",
			"error", err,
			"topic", p.topic,
			"call_id", ev.CallID,
		)
	}
}

func (p *Publisher) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
