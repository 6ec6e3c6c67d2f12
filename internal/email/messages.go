// Package email carries password-reset and plain emails over RabbitMQ and
// delivers them through SMTP.
package email

// AMQP topology. Each work queue dead-letters into a delay queue whose
// messages expire back into the work queue after RetryDelayMillis.
const (
	Exchange = "x.email"

	SimpleEmailQueue        = "q.email.simple-email"
	SimpleEmailDelayQueue   = "q.email.simple-email.delay"
	ResetPasswordQueue      = "q.email.reset-password"
	ResetPasswordDelayQueue = "q.email.reset-password.delay"

	SimpleEmailKey        = "email.simple-email"
	SimpleEmailDelayKey   = "email.simple-email.delay"
	ResetPasswordKey      = "email.reset-password"
	ResetPasswordDelayKey = "email.reset-password.delay"

	// RetryDelayMillis is the x-message-ttl of the delay queues.
	RetryDelayMillis = 300000
)

// ResetPasswordEmail asks the email worker to send a reset link.
type ResetPasswordEmail struct {
	Email string `json:"email" validate:"required,email"`
	Name  string `json:"name"`
	Token string `json:"token" validate:"required"`
}

// SimpleEmail is a plain-text message.
type SimpleEmail struct {
	To      string   `json:"to" validate:"required,email"`
	Cc      []string `json:"cc,omitempty" validate:"omitempty,dive,email"`
	Bcc     []string `json:"bcc,omitempty" validate:"omitempty,dive,email"`
	Subject string   `json:"subject" validate:"required"`
	Text    string   `json:"text" validate:"required"`
}

// Message is a rendered email ready for delivery.
type Message struct {
	To      []string
	Cc      []string
	Bcc     []string
	Subject string
	Text    string
	HTML    string
}
