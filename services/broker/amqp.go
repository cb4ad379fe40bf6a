// Package broker publishes the portal's domain events to RabbitMQ.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/trezcool/alumni/core"
)

type AMQPPublisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	enabled  bool
	logger   core.Logger

	mu sync.Mutex // amqp channels are not safe for concurrent publishing
}

var _ core.Publisher = (*AMQPPublisher)(nil)

// NewAMQPPublisher connects to the broker and declares the topic exchange.
// Publishing is disabled when no URI is configured.
func NewAMQPPublisher(conf core.AMQPConfig, logger core.Logger) (*AMQPPublisher, error) {
	if conf.URI == "" {
		logger.Warn("AMQP URI is empty, event publishing is disabled")
		return &AMQPPublisher{exchange: conf.Exchange, logger: logger}, nil
	}

	conn, err := amqp.Dial(conf.URI)
	if err != nil {
		return nil, errors.Wrap(err, "connecting to the broker")
	}
	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "opening a channel")
	}
	err = channel.ExchangeDeclare(
		conf.Exchange, // name
		"topic",       // type
		true,          // durable
		false,         // auto-deleted
		false,         // internal
		false,         // no-wait
		nil,           // arguments
	)
	if err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return nil, errors.Wrap(err, "declaring exchange")
	}

	return &AMQPPublisher{
		conn:     conn,
		channel:  channel,
		exchange: conf.Exchange,
		enabled:  true,
		logger:   logger,
	}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, topic string, payload interface{}) error {
	if !p.enabled {
		p.logger.Debug(fmt.Sprintf("event publishing disabled, skipping %s", topic))
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "marshalling event")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.channel.PublishWithContext(
		ctx,
		p.exchange, // exchange
		topic,      // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Body:         body,
			Headers:      amqp.Table{"event_type": topic},
		},
	)
	return errors.Wrap(err, fmt.Sprintf("publishing %s", topic))
}

func (p *AMQPPublisher) Close() error {
	if !p.enabled {
		return nil
	}
	if err := p.channel.Close(); err != nil {
		p.logger.Warn(fmt.Sprintf("closing AMQP channel: %v", err), err)
	}
	return errors.Wrap(p.conn.Close(), "closing AMQP connection")
}

// Event is a message recorded by MockPublisher.
type Event struct {
	Topic   string
	Payload interface{}
}

type MockPublisher struct {
	mu     sync.Mutex
	events []Event
}

var _ core.Publisher = (*MockPublisher)(nil)

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{events: make([]Event, 0)}
}

func (m *MockPublisher) Publish(_ context.Context, topic string, payload interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, Event{Topic: topic, Payload: payload})
	return nil
}

func (m *MockPublisher) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

// Topics returns the topics published so far, in order.
func (m *MockPublisher) Topics() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	topics := make([]string, 0, len(m.events))
	for _, evt := range m.events {
		topics = append(topics, evt.Topic)
	}
	return topics
}

func (m *MockPublisher) Close() error { return nil }
