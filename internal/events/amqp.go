package events

import (
	"context"
	"fmt"
	"time"

	"termin/internal/config"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

const publishTimeout = 5 * time.Second

// amqpChannel is the subset of *amqp.Channel used by the forwarder.
type amqpChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPForwarder republishes bus events to a RabbitMQ topic exchange.
// The routing key is the event type, e.g. "booking_confirmed".
type AMQPForwarder struct {
	conn     *amqp.Connection
	ch       amqpChannel
	exchange string
	logger   *zerolog.Logger
}

func DialAMQPForwarder(cfg config.AMQPConfig, logger *zerolog.Logger) (*AMQPForwarder, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel open: %w", err)
	}

	f, err := newAMQPForwarder(ch, cfg.Exchange, logger)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	f.conn = conn
	return f, nil
}

func newAMQPForwarder(ch amqpChannel, exchange string, logger *zerolog.Logger) (*AMQPForwarder, error) {
	// durable topic exchange, declaring it is idempotent
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("amqp exchange declare %s: %w", exchange, err)
	}
	return &AMQPForwarder{ch: ch, exchange: exchange, logger: logger}, nil
}

// Attach subscribes the forwarder to every booking event on the bus.
func (f *AMQPForwarder) Attach(bus *EventBus) {
	for _, eventType := range BookingEventTypes {
		bus.Subscribe(eventType, f.Forward)
	}
}

func (f *AMQPForwarder) Forward(event *Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	pub := amqp.Publishing{
		ContentType:  "application/json",
		MessageId:    event.ID,
		DeliveryMode: amqp.Persistent,
		Timestamp:    event.CreatedAt.UTC(),
		Type:         event.Type,
		Body:         event.Payload,
	}

	if err := f.ch.PublishWithContext(ctx, f.exchange, event.Type, false, false, pub); err != nil {
		f.logger.Error().Err(err).Str("event_type", event.Type).Msg("amqp publish failed")
		return err
	}

	f.logger.Debug().Str("event_type", event.Type).Str("exchange", f.exchange).Msg("event forwarded")
	return nil
}

func (f *AMQPForwarder) Close() error {
	err := f.ch.Close()
	if f.conn != nil {
		if cerr := f.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
