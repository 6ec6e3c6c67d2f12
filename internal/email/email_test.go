package email

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"
)

type fakeChannel struct {
	fail      int
	published []amqp.Publishing
	keys      []string
	closed    int
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if exchange != Exchange {
		return errors.New("wrong exchange")
	}
	if f.fail > 0 {
		f.fail--
		return errors.New("channel closed")
	}
	f.keys = append(f.keys, key)
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed++
	return nil
}

func newTestPublisher(ch *fakeChannel) (*Publisher, *int) {
	opens := 0
	p := NewPublisher("amqp://unused", nil)
	p.open = func() (publishChannel, error) {
		opens++
		return ch, nil
	}
	return p, &opens
}

func TestPublisherSendsPersistentJSON(t *testing.T) {
	ch := &fakeChannel{}
	p, opens := newTestPublisher(ch)

	require.NoError(t, p.SendResetPassword(context.Background(), ResetPasswordEmail{Email: "a@example.com", Name: "Ann", Token: "tok"}))
	require.NoError(t, p.SendSimpleEmail(context.Background(), SimpleEmail{To: "b@example.com", Subject: "hi", Text: "body"}))

	assert.Equal(t, 1, *opens)
	assert.Equal(t, []string{ResetPasswordKey, SimpleEmailKey}, ch.keys)
	assert.Equal(t, amqp.Persistent, ch.published[0].DeliveryMode)
	var decoded ResetPasswordEmail
	require.NoError(t, json.Unmarshal(ch.published[0].Body, &decoded))
	assert.Equal(t, "tok", decoded.Token)
}

func TestPublisherReopensAfterFailure(t *testing.T) {
	ch := &fakeChannel{fail: 1}
	p, opens := newTestPublisher(ch)

	require.NoError(t, p.SendSimpleEmail(context.Background(), SimpleEmail{To: "b@example.com", Subject: "hi", Text: "body"}))
	assert.Equal(t, 2, *opens)
	assert.Equal(t, 1, ch.closed)
	assert.Len(t, ch.published, 1)
}

func TestPublisherValidates(t *testing.T) {
	p, opens := newTestPublisher(&fakeChannel{})
	assert.Error(t, p.SendResetPassword(context.Background(), ResetPasswordEmail{Email: "not-an-email", Token: "x"}))
	assert.Error(t, p.SendSimpleEmail(context.Background(), SimpleEmail{To: "b@example.com"}))
	assert.Zero(t, *opens)
}

type fakeAck struct {
	acked, nacked int
	requeue       bool
}

func (f *fakeAck) Ack(uint64, bool) error { f.acked++; return nil }
func (f *fakeAck) Nack(_ uint64, _ bool, requeue bool) error {
	f.nacked++
	f.requeue = requeue
	return nil
}
func (f *fakeAck) Reject(uint64, bool) error { return nil }

type fakeSender struct {
	err  error
	sent []Message
}

func (f *fakeSender) Send(_ context.Context, msg Message) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func newTestConsumer(t *testing.T, sender Sender) *Consumer {
	t.Helper()
	renderer, err := NewRenderer("AdminKit", "https://app.example.com/")
	require.NoError(t, err)
	return NewConsumer("amqp://unused", renderer, sender, nil)
}

func delivery(ack amqp.Acknowledger, body any, headers amqp.Table) amqp.Delivery {
	data, _ := json.Marshal(body)
	return amqp.Delivery{Acknowledger: ack, DeliveryTag: 1, Body: data, Headers: headers}
}

func TestConsumerRendersResetLinkAndAcks(t *testing.T) {
	sender := &fakeSender{}
	c := newTestConsumer(t, sender)
	ack := &fakeAck{}

	c.Handle(context.Background(), ResetPasswordQueue, delivery(ack, ResetPasswordEmail{Email: "a@example.com", Name: "Ann", Token: "a+b"}, nil))

	assert.Equal(t, 1, ack.acked)
	require.Len(t, sender.sent, 1)
	msg := sender.sent[0]
	assert.Equal(t, []string{"a@example.com"}, msg.To)
	assert.Equal(t, "Reset your password - AdminKit", msg.Subject)
	assert.Contains(t, msg.HTML, "https://app.example.com/reset-password?token=a%2Bb")
	assert.Contains(t, msg.HTML, "Hello Ann")
}

func TestConsumerNacksIntoDelayQueue(t *testing.T) {
	c := newTestConsumer(t, &fakeSender{err: errors.New("smtp down")})
	ack := &fakeAck{}

	c.Handle(context.Background(), SimpleEmailQueue, delivery(ack, SimpleEmail{To: "b@example.com", Subject: "s", Text: "t"}, nil))
	assert.Equal(t, 1, ack.nacked)
	assert.False(t, ack.requeue)
	assert.Zero(t, ack.acked)
}

func TestConsumerDropsAfterMaxAttempts(t *testing.T) {
	c := newTestConsumer(t, &fakeSender{err: errors.New("smtp down")})
	c.MaxAttempts = 3
	ack := &fakeAck{}
	headers := amqp.Table{"x-death": []interface{}{
		amqp.Table{"queue": SimpleEmailDelayQueue, "count": int64(2)},
		amqp.Table{"queue": SimpleEmailQueue, "count": int64(2)},
	}}

	c.Handle(context.Background(), SimpleEmailQueue, delivery(ack, SimpleEmail{To: "b@example.com", Subject: "s", Text: "t"}, headers))
	assert.Equal(t, 1, ack.acked)
	assert.Zero(t, ack.nacked)
}

func TestConsumerRejectsUndecodableBody(t *testing.T) {
	c := newTestConsumer(t, &fakeSender{})
	ack := &fakeAck{}
	c.Handle(context.Background(), ResetPasswordQueue, amqp.Delivery{Acknowledger: ack, Body: []byte("{")})
	assert.Equal(t, 1, ack.nacked)
}

func TestTopologyDeadLettersBetweenQueues(t *testing.T) {
	specs := map[string]queueSpec{}
	for _, q := range topology() {
		specs[q.name] = q
	}
	require.Len(t, specs, 4)
	assert.Equal(t, ResetPasswordDelayKey, specs[ResetPasswordQueue].args["x-dead-letter-routing-key"])
	assert.Equal(t, ResetPasswordKey, specs[ResetPasswordDelayQueue].args["x-dead-letter-routing-key"])
	assert.Equal(t, int32(RetryDelayMillis), specs[SimpleEmailDelayQueue].args["x-message-ttl"])
	assert.Nil(t, specs[SimpleEmailQueue].args["x-message-ttl"])
}

func TestSMTPSenderBuildsMessage(t *testing.T) {
	var rendered bytes.Buffer
	var recipients []string
	s := NewSMTPSender(SMTPConfig{Host: "mail.local", Port: 2525, From: "noreply@example.com"})
	s.deliver = func(_ context.Context, m *mail.Msg) error {
		var err error
		recipients, err = m.GetRecipients()
		require.NoError(t, err)
		_, err = m.WriteTo(&rendered)
		return err
	}

	err := s.Send(context.Background(), Message{To: []string{"a@example.com"}, Cc: []string{"c@example.com"}, Bcc: []string{"h@example.com"}, Subject: "Hi", Text: "plain"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a@example.com", "c@example.com", "h@example.com"}, recipients)
	body := rendered.String()
	assert.Contains(t, body, "Subject: Hi")
	assert.Contains(t, body, "c@example.com")
	assert.NotContains(t, body, "h@example.com")
	assert.Contains(t, body, "text/plain")
	assert.Contains(t, body, "plain")

	assert.Error(t, s.Send(context.Background(), Message{}))
}

func TestSMTPSenderWrapsDeliveryErrors(t *testing.T) {
	s := NewSMTPSender(SMTPConfig{Host: "mail.local", From: "noreply@example.com", Timeout: time.Second})
	s.deliver = func(context.Context, *mail.Msg) error { return errors.New("relay down") }

	err := s.Send(context.Background(), Message{To: []string{"a@example.com"}, HTML: "<p>hi</p>"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "relay down")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Send(ctx, Message{To: []string{"a@example.com"}}), context.Canceled)
}
