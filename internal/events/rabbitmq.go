package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"monad-trade-agent-go/internal/config"
	"monad-trade-agent-go/internal/domain"
	"monad-trade-agent-go/internal/retry"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// amqpChannel is the part of *amqp.Channel the publisher uses.
type amqpChannel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher publishes trade events to a durable RabbitMQ queue.
type Publisher struct {
	conn    *amqp.Connection
	channel amqpChannel
	queue   string
	logger  *zap.Logger
	mu      sync.Mutex
}

// DialPublisher connects to the broker, retrying with a fixed delay, and
// declares the queue.
func DialPublisher(ctx context.Context, cfg config.Broker, logger *zap.Logger) (*Publisher, error) {
	logger = logger.Named("rabbitmq")

	var conn *amqp.Connection
	policy := retry.Fixed(10, 3*time.Second)
	err := policy.Do(ctx, func(attempt int) error {
		var err error
		conn, err = amqp.Dial(cfg.URL)
		if err != nil {
			logger.Warn("Failed to connect to RabbitMQ", zap.Int("attempt", attempt), zap.Error(err))
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	p, err := newPublisher(ch, cfg.Queue, logger)
	if err != nil {
		conn.Close()
		return nil, err
	}
	p.conn = conn
	logger.Info("Connected to RabbitMQ", zap.String("queue", cfg.Queue))
	return p, nil
}

func newPublisher(ch amqpChannel, queue string, logger *zap.Logger) (*Publisher, error) {
	_, err := ch.QueueDeclare(
		queue,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,   // args
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}
	return &Publisher{channel: ch, queue: queue, logger: logger}, nil
}

// Publish sends one persistent JSON message per trade result.
func (p *Publisher) Publish(ctx context.Context, wallet string, result domain.TradeResult) error {
	body, err := json.Marshal(NewTradeEvent(wallet, result))
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.channel.PublishWithContext(ctx,
		"",      // exchange
		p.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			MessageId:    result.TradeID,
			Timestamp:    result.SettledAt,
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	p.logger.Debug("Published trade event", zap.String("queue", p.queue), zap.String("trade_id", result.TradeID))
	return nil
}

// Close closes the channel and the connection.
func (p *Publisher) Close() error {
	var err error
	if p.channel != nil {
		err = p.channel.Close()
	}
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
