package email

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

type queueSpec struct {
	name string
	key  string
	args amqp.Table
}

func topology() []queueSpec {
	return []queueSpec{
		{name: SimpleEmailQueue, key: SimpleEmailKey, args: amqp.Table{
			"x-dead-letter-exchange":    Exchange,
			"x-dead-letter-routing-key": SimpleEmailDelayKey,
		}},
		{name: SimpleEmailDelayQueue, key: SimpleEmailDelayKey, args: amqp.Table{
			"x-dead-letter-exchange":    Exchange,
			"x-dead-letter-routing-key": SimpleEmailKey,
			"x-message-ttl":             int32(RetryDelayMillis),
		}},
		{name: ResetPasswordQueue, key: ResetPasswordKey, args: amqp.Table{
			"x-dead-letter-exchange":    Exchange,
			"x-dead-letter-routing-key": ResetPasswordDelayKey,
		}},
		{name: ResetPasswordDelayQueue, key: ResetPasswordDelayKey, args: amqp.Table{
			"x-dead-letter-exchange":    Exchange,
			"x-dead-letter-routing-key": ResetPasswordKey,
			"x-message-ttl":             int32(RetryDelayMillis),
		}},
	}
}

// DeclareTopology declares the email exchange, the work and delay queues and
// their bindings. It is idempotent.
func DeclareTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(Exchange, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		return fmt.Errorf("email: declare exchange: %w", err)
	}
	for _, q := range topology() {
		if _, err := ch.QueueDeclare(q.name, true, false, false, false, q.args); err != nil {
			return fmt.Errorf("email: declare queue %s: %w", q.name, err)
		}
		if err := ch.QueueBind(q.name, q.key, Exchange, false, nil); err != nil {
			return fmt.Errorf("email: bind queue %s: %w", q.name, err)
		}
	}
	return nil
}
