package events

import (
	"context"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockChannel struct {
	mock.Mock
}

func (m *mockChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	return m.Called(name, kind, durable).Error(0)
}

func (m *mockChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	return m.Called(exchange, key, msg).Error(0)
}

func (m *mockChannel) Close() error {
	return m.Called().Error(0)
}

func TestAMQPForwarder(t *testing.T) {
	logger := zerolog.Nop()
	ch := new(mockChannel)
	ch.On("ExchangeDeclare", "termin.events", amqp.ExchangeTopic, true).Return(nil)
	ch.On("PublishWithContext", "termin.events", EventBookingConfirmed, mock.MatchedBy(func(p amqp.Publishing) bool {
		return p.DeliveryMode == amqp.Persistent && p.MessageId != "" && p.ContentType == "application/json" && string(p.Body) == `{"booking_id":7}`
	})).Return(nil).Once()

	f, err := newAMQPForwarder(ch, "termin.events", &logger)
	require.NoError(t, err)

	bus := NewEventBus()
	f.Attach(bus)
	require.NoError(t, bus.PublishJSON(EventBookingConfirmed, map[string]int{"booking_id": 7}))

	ch.AssertExpectations(t)
}

func TestAMQPForwarder_PublishError(t *testing.T) {
	logger := zerolog.Nop()
	ch := new(mockChannel)
	ch.On("ExchangeDeclare", "x", amqp.ExchangeTopic, true).Return(nil)
	ch.On("PublishWithContext", "x", EventBookingCreated, mock.Anything).Return(errors.New("channel closed"))

	f, err := newAMQPForwarder(ch, "x", &logger)
	require.NoError(t, err)

	err = f.Forward(&Event{Type: EventBookingCreated, Payload: []byte(`{}`)})
	assert.Error(t, err)
}

func TestAMQPForwarder_DeclareError(t *testing.T) {
	logger := zerolog.Nop()
	ch := new(mockChannel)
	ch.On("ExchangeDeclare", "x", amqp.ExchangeTopic, true).Return(errors.New("access refused"))
	ch.On("Close").Return(nil)

	_, err := newAMQPForwarder(ch, "x", &logger)
	assert.Error(t, err)
	ch.AssertCalled(t, "Close")
}
