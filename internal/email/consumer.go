package email

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultMaxAttempts bounds delivery attempts (one hour of five-minute retries).
const DefaultMaxAttempts = 12

// Consumer reads the email work queues and delivers each message. A failed
// delivery is nacked without requeue so the broker parks it in the delay queue.
type Consumer struct {
	url         string
	renderer    *Renderer
	sender      Sender
	logger      *slog.Logger
	MaxAttempts int
	Prefetch    int
}

// NewConsumer constructs a Consumer.
func NewConsumer(url string, renderer *Renderer, sender Sender, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		url:         url,
		renderer:    renderer,
		sender:      sender,
		logger:      logger,
		MaxAttempts: DefaultMaxAttempts,
		Prefetch:    10,
	}
}

// Run consumes until ctx is cancelled, reconnecting with exponential backoff.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.url)
		if err == nil {
			backoff = time.Second
			err = c.consume(ctx, conn)
			_ = conn.Close()
		}
		if ctx.Err() != nil {
			return nil
		}
		c.logger.Warn("email consumer disconnected", slog.Any("error", err), slog.Duration("retry_in", backoff))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("email: open channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(c.Prefetch, 0, false); err != nil {
		return fmt.Errorf("email: qos: %w", err)
	}
	if err := DeclareTopology(ch); err != nil {
		return err
	}
	resets, err := ch.Consume(ResetPasswordQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("email: consume %s: %w", ResetPasswordQueue, err)
	}
	simples, err := ch.Consume(SimpleEmailQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("email: consume %s: %w", SimpleEmailQueue, err)
	}
	c.logger.Info("email consumer started", slog.String("exchange", Exchange))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-resets:
			if !ok {
				return errors.New("email: reset password deliveries closed")
			}
			c.Handle(ctx, ResetPasswordQueue, d)
		case d, ok := <-simples:
			if !ok {
				return errors.New("email: simple email deliveries closed")
			}
			c.Handle(ctx, SimpleEmailQueue, d)
		}
	}
}

// Handle processes one delivery from queue and acknowledges it. Failures are
// nacked into the delay queue until MaxAttempts is reached, then dropped.
func (c *Consumer) Handle(ctx context.Context, queue string, d amqp.Delivery) {
	err := c.process(ctx, queue, d.Body)
	if err == nil {
		_ = d.Ack(false)
		return
	}
	attempt := deathCount(d.Headers, queue) + 1
	logger := c.logger.With(slog.String("queue", queue), slog.Int64("attempt", attempt), slog.Any("error", err))
	if c.MaxAttempts > 0 && attempt >= int64(c.MaxAttempts) {
		logger.Error("email dropped after max attempts")
		_ = d.Ack(false)
		return
	}
	logger.Warn("email delivery failed, scheduling retry")
	_ = d.Nack(false, false)
}

func (c *Consumer) process(ctx context.Context, queue string, body []byte) error {
	var msg Message
	switch queue {
	case ResetPasswordQueue:
		var req ResetPasswordEmail
		if err := json.Unmarshal(body, &req); err != nil {
			return fmt.Errorf("decode reset password email: %w", err)
		}
		rendered, err := c.renderer.ResetPassword(req)
		if err != nil {
			return err
		}
		msg = rendered
	case SimpleEmailQueue:
		var req SimpleEmail
		if err := json.Unmarshal(body, &req); err != nil {
			return fmt.Errorf("decode simple email: %w", err)
		}
		msg = c.renderer.Simple(req)
	default:
		return fmt.Errorf("unknown queue %q", queue)
	}
	c.logger.Info("sending email", slog.String("queue", queue), slog.Any("to", msg.To))
	return c.sender.Send(ctx, msg)
}

// deathCount reads how many times the message was dead-lettered out of queue.
func deathCount(headers amqp.Table, queue string) int64 {
	deaths, ok := headers["x-death"].([]interface{})
	if !ok {
		return 0
	}
	for _, raw := range deaths {
		entry, ok := raw.(amqp.Table)
		if !ok || entry["queue"] != queue {
			continue
		}
		if n, ok := entry["count"].(int64); ok {
			return n
		}
	}
	return 0
}
