package email

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	amqp "github.com/rabbitmq/amqp091-go"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// DialTimeout bounds the TCP connect and AMQP handshake of a publisher connection.
const DialTimeout = 5 * time.Second

type publishChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type connChannel struct {
	*amqp.Channel
	conn *amqp.Connection
}

func (c connChannel) Close() error {
	_ = c.Channel.Close()
	return c.conn.Close()
}

// Publisher sends email requests to the email exchange over one long-lived
// channel, reopening it after a failed publish.
type Publisher struct {
	logger *slog.Logger
	open   func() (publishChannel, error)

	mu sync.Mutex
	ch publishChannel
}

// NewPublisher constructs a Publisher for the broker at url. The connection
// is opened on first use.
func NewPublisher(url string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		logger: logger,
		open: func() (publishChannel, error) {
			conn, err := amqp.DialConfig(url, amqp.Config{
				Heartbeat: 10 * time.Second,
				Locale:    "en_US",
				Dial:      amqp.DefaultDial(DialTimeout),
			})
			if err != nil {
				return nil, fmt.Errorf("email: dial broker: %w", err)
			}
			ch, err := conn.Channel()
			if err != nil {
				_ = conn.Close()
				return nil, fmt.Errorf("email: open channel: %w", err)
			}
			if err := DeclareTopology(ch); err != nil {
				_ = conn.Close()
				return nil, err
			}
			return connChannel{Channel: ch, conn: conn}, nil
		},
	}
}

// SendResetPassword queues a reset-password email.
func (p *Publisher) SendResetPassword(ctx context.Context, msg ResetPasswordEmail) error {
	if err := validate.Struct(msg); err != nil {
		return fmt.Errorf("email: invalid reset password email: %w", err)
	}
	return p.publish(ctx, ResetPasswordKey, msg)
}

// SendSimpleEmail queues a plain-text email.
func (p *Publisher) SendSimpleEmail(ctx context.Context, msg SimpleEmail) error {
	if err := validate.Struct(msg); err != nil {
		return fmt.Errorf("email: invalid simple email: %w", err)
	}
	return p.publish(ctx, SimpleEmailKey, msg)
}

// Close releases the broker connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == nil {
		return nil
	}
	err := p.ch.Close()
	p.ch = nil
	return err
}

func (p *Publisher) publish(ctx context.Context, key string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("email: marshal: %w", err)
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for attempt := 0; attempt < 2; attempt++ {
		if p.ch == nil {
			ch, err := p.open()
			if err != nil {
				return err
			}
			p.ch = ch
		}
		err = p.ch.PublishWithContext(ctx, Exchange, key, false, false, pub)
		if err == nil {
			return nil
		}
		p.logger.Warn("email publish failed, reopening channel", slog.String("routing_key", key), slog.Any("error", err))
		_ = p.ch.Close()
		p.ch = nil
	}
	return fmt.Errorf("email: publish %s: %w", key, err)
}
