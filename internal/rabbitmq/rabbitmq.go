package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/vatsal3003/upscale-client/internal/jobs"
)

const publishTimeout = 5 * time.Second

// EventTypes are the routing keys a tail queue is bound with.
var EventTypes = []jobs.EventType{
	jobs.EventSubmitting,
	jobs.EventSubmitted,
	jobs.EventProgress,
	jobs.EventCompleted,
	jobs.EventFailed,
	jobs.EventCancelled,
	jobs.EventCancelWarning,
}

type client struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
}

func dial(url, exchange string) (*client, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchange, // name
		"direct", // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare an exchange: %w", err)
	}

	return &client{conn: conn, channel: ch, exchange: exchange}, nil
}

func (c *client) Close() {
	if c.channel != nil {
		c.channel.Close()
	}

	if c.conn != nil {
		c.conn.Close()
	}
}

// EventPublisher publishes job events to a direct exchange, routed by
// event type. It satisfies jobs.Observer.
type EventPublisher struct {
	*client
	log zerolog.Logger
}

func NewEventPublisher(url, exchange string, logger zerolog.Logger) (*EventPublisher, error) {
	c, err := dial(url, exchange)
	if err != nil {
		return nil, err
	}
	return &EventPublisher{client: c, log: logger}, nil
}

func (p *EventPublisher) Publish(ctx context.Context, e jobs.Event) error {
	msg, err := encodeEvent(e)
	if err != nil {
		return err
	}

	err = p.channel.PublishWithContext(
		ctx,
		p.exchange,     // exchange
		string(e.Type), // routing key
		false,          // mandatory
		false,          // immediate
		msg,
	)
	if err != nil {
		return fmt.Errorf("failed to publish a message: %w", err)
	}

	return nil
}

// Notify publishes e, logging failures instead of returning them.
func (p *EventPublisher) Notify(e jobs.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := p.Publish(ctx, e); err != nil {
		p.log.Error().Err(err).Str("event", string(e.Type)).Str("group_id", e.GroupID).Msg("failed to publish job event")
	}
}

func encodeEvent(e jobs.Event) (amqp.Publishing, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("failed to marshal event: %w", err)
	}

	return amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		Timestamp:    e.At,
		Type:         string(e.Type),
		Body:         body,
	}, nil
}

// EventConsumer reads job events from a queue bound to the events exchange.
type EventConsumer struct {
	*client
	queueName string
	log       zerolog.Logger
}

func NewEventConsumer(url, exchange, queueName string, logger zerolog.Logger) (*EventConsumer, error) {
	c, err := dial(url, exchange)
	if err != nil {
		return nil, err
	}

	_, err = c.channel.QueueDeclare(
		queueName, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to declare a queue: %w", err)
	}

	for _, t := range EventTypes {
		if err := c.channel.QueueBind(queueName, string(t), exchange, false, nil); err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to bind queue to %s: %w", t, err)
		}
	}

	return &EventConsumer{client: c, queueName: queueName, log: logger}, nil
}

// Consume hands every event to handle until ctx is done or the channel
// closes. Deliveries are acked whether or not handle succeeds.
func (c *EventConsumer) Consume(ctx context.Context, handle func(jobs.Event) error) error {
	err := c.channel.Qos(
		1,     // prefetch count
		0,     // prefetch size
		false, // global
	)
	if err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := c.channel.Consume(
		c.queueName, // queue
		"",          // consumer
		false,       // auto-ack
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return fmt.Errorf("failed to register a consumer: %w", err)
	}

	c.log.Info().Str("queue", c.queueName).Msg("waiting for job events")

	for {
		select {
		case <-ctx.Done():
			c.log.Info().Msg("event consumer shutting down")
			return nil
		case d, ok := <-msgs:
			if !ok {
				c.log.Warn().Msg("delivery channel closed")
				return nil
			}

			e, err := decodeEvent(d.Body)
			if err != nil {
				c.log.Error().Err(err).Msg("dropping malformed event")
				d.Ack(false)
				continue
			}

			if err := handle(e); err != nil {
				c.log.Error().Err(err).Str("event", string(e.Type)).Str("group_id", e.GroupID).Msg("failed to handle event")
			}
			d.Ack(false)
		}
	}
}

func decodeEvent(body []byte) (jobs.Event, error) {
	var e jobs.Event
	if err := json.Unmarshal(body, &e); err != nil {
		return jobs.Event{}, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	if e.Type == "" {
		return jobs.Event{}, errors.New("event without type")
	}
	return e, nil
}
