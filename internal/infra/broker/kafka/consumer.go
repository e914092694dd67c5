package kafka

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/IBM/sarama"

	appoutbox "carshare/internal/app/outbox"
)

type MessageHandler interface {
	Handle(ctx context.Context, msg *sarama.ConsumerMessage) error
}

type Consumer struct {
	group   sarama.ConsumerGroup
	handler MessageHandler
}

func NewConsumer(brokers []string, groupID string, cfg *sarama.Config, handler MessageHandler) (*Consumer, error) {
	if cfg == nil {
		cfg = sarama.NewConfig()
	}
	cfg.Version = sarama.V2_5_0_0
	cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	g, err := sarama.NewConsumerGroup(brokers, groupID, cfg)
	if err != nil {
		return nil, err
	}
	return &Consumer{group: g, handler: handler}, nil
}

func (c *Consumer) Run(ctx context.Context, topics []string) error {
	for {
		if err := c.group.Consume(ctx, topics, consumerGroupHandler{handler: c.handler}); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (c *Consumer) Close() error {
	return c.group.Close()
}

type consumerGroupHandler struct {
	handler MessageHandler
}

func (h consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h consumerGroupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for message := range claim.Messages() {
		if err := h.handler.Handle(sess.Context(), message); err != nil {
			// Leave the offset unmarked; the group resumes here after a rebalance.
			return err
		}
		sess.MarkMessage(message, "")
	}
	return nil
}

// EventHandler decodes CloudEvents and hands them to an outbox handler. Handler
// failures are retried on Backoff; after the last attempt the event is logged and
// skipped. Malformed messages are skipped at once.
type EventHandler struct {
	Handler appoutbox.Handler
	Backoff []time.Duration
	Logger  *slog.Logger
}

func (h EventHandler) Handle(ctx context.Context, msg *sarama.ConsumerMessage) error {
	rec, err := appoutbox.DecodeCloudEvent(msg.Value)
	if err != nil {
		h.logger().Warn("malformed event skipped", "topic", msg.Topic, "offset", msg.Offset, "error", err)
		return nil
	}
	for attempt := 0; ; attempt++ {
		err = h.Handler.HandleEvent(ctx, rec)
		if err == nil {
			return nil
		}
		if attempt >= len(h.Backoff) {
			h.logger().Error("event dropped after retries", "event", rec.Name, "id", rec.ID, "attempts", attempt+1, "error", err)
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(h.Backoff[attempt]):
		}
	}
}

func (h EventHandler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

var _ MessageHandler = EventHandler{}
