package queue

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/bandou-movie/internal/logging"
	"github.com/iliyamo/bandou-movie/internal/metrics"
)

// Publisher accepts activity events.  Implementations must not block the
// caller for long and must swallow delivery errors.
type Publisher interface {
	Publish(ctx context.Context, ev ActivityEvent)
}

// NopPublisher discards events.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, ActivityEvent) {}

// AMQPPublisher dials the broker per event and publishes a persistent JSON
// message to ActivityQueue on the default exchange.
type AMQPPublisher struct {
	URL     string
	Timeout time.Duration
}

func NewAMQPPublisher(url string) *AMQPPublisher {
	return &AMQPPublisher{URL: url, Timeout: 2 * time.Second}
}

// Publish logs and drops the event on any failure.
func (p *AMQPPublisher) Publish(ctx context.Context, ev ActivityEvent) {
	if err := p.publish(ctx, ev); err != nil {
		metrics.ActivityEvents.WithLabelValues("out", ev.Type, "error").Inc()
		logging.Ctx(ctx).Warn().Err(err).Str("event", ev.Type).Msg("activity publish failed")
		return
	}
	metrics.ActivityEvents.WithLabelValues("out", ev.Type, "ok").Inc()
}

func (p *AMQPPublisher) publish(ctx context.Context, ev ActivityEvent) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.Timeout)
	defer cancel()

	conn, err := amqp.DialConfig(p.URL, amqp.Config{Dial: amqp.DefaultDial(p.Timeout)})
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(ActivityQueue, true, false, false, false, nil); err != nil {
		return err
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return ch.PublishWithContext(ctx, "", ActivityQueue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
}
