// Package events publishes generation settlement events to RabbitMQ.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"

	"github.com/genforge/backend/internal/models"
)

const (
	DefaultExchange   = "generation_events"
	RoutingKeySettled = "generation.settled"
)

// GenerationSettled is published once per task when it reaches a terminal
// state for the first time.
type GenerationSettled struct {
	TaskID          string           `json:"task_id"`
	UserID          uuid.UUID        `json:"user_id"`
	Kind            models.Kind      `json:"kind"`
	ModelID         string           `json:"model_id"`
	Status          models.TaskState `json:"status"`
	ResultURLs      []string         `json:"result_urls,omitempty"`
	CreditsRefunded bool             `json:"credits_refunded"`
	Timestamp       time.Time        `json:"timestamp"`
}

// Publisher is implemented by Producer and NoopPublisher.
type Publisher interface {
	PublishSettled(ctx context.Context, event GenerationSettled) error
	Close()
}

// amqpChannel is the part of *amqp091.Channel the producer uses.
type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp091.Table) error
	Close() error
}

// Producer holds the RabbitMQ connection and channel.
type Producer struct {
	mu       sync.Mutex
	conn     *amqp091.Connection
	channel  amqpChannel
	reopen   func() (amqpChannel, error)
	exchange string
	logger   *slog.Logger
}

func newProducer(ch amqpChannel, reopen func() (amqpChannel, error), exchange string, logger *slog.Logger) *Producer {
	if exchange == "" {
		exchange = DefaultExchange
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Producer{channel: ch, reopen: reopen, exchange: exchange, logger: logger}
}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}

// NewProducer dials RabbitMQ and declares the durable topic exchange.
func NewProducer(amqpURL, exchange string, logger *slog.Logger) (*Producer, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}
	if exchange == "" {
		exchange = DefaultExchange
	}
	conn, err := amqp091.DialConfig(cleanURL, amqp091.Config{Dial: amqp091.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := declareExchange(ch, exchange); err != nil {
		conn.Close()
		return nil, err
	}
	p := newProducer(ch, func() (amqpChannel, error) { return conn.Channel() }, exchange, logger)
	p.conn = conn
	return p, nil
}

func declareExchange(ch amqpChannel, exchange string) error {
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return nil
}

// PublishSettled publishes event with routing key generation.settled. A
// failed publish reopens the channel and retries once.
func (p *Producer) PublishSettled(ctx context.Context, event GenerationSettled) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	msg := amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    event.TaskID,
		Timestamp:    event.Timestamp,
		Body:         body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.PublishWithContext(ctx, p.exchange, RoutingKeySettled, false, false, msg)
	if err == nil {
		return nil
	}
	p.logger.Warn("publish failed, reopening channel", "exchange", p.exchange, "task_id", event.TaskID, "error", err)
	ch, chErr := p.reopen()
	if chErr != nil {
		return fmt.Errorf("publish settled event: %w", err)
	}
	p.channel.Close()
	p.channel = ch
	if err := declareExchange(ch, p.exchange); err != nil {
		return err
	}
	if err := p.channel.PublishWithContext(ctx, p.exchange, RoutingKeySettled, false, false, msg); err != nil {
		return fmt.Errorf("publish settled event after reopen: %w", err)
	}
	return nil
}

func (p *Producer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}

// NoopPublisher is used when no broker is configured or reachable.
type NoopPublisher struct {
	Logger *slog.Logger
}

func (n NoopPublisher) PublishSettled(_ context.Context, event GenerationSettled) error {
	if n.Logger != nil {
		n.Logger.Debug("settled event not published, no broker configured", "task_id", event.TaskID, "status", event.Status)
	}
	return nil
}

func (NoopPublisher) Close() {}
