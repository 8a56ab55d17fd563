// Package broker publishes generated tests to RabbitMQ and consumes them.
package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	// DefaultExchange is the direct exchange generated tests are published to.
	DefaultExchange = "test-generation"
	// DefaultQueue is the durable queue bound to DefaultExchange. Its name doubles as the routing key.
	DefaultQueue = "test.queue"

	contentType = "application/json"
)

// Config holds broker connection and topology settings.
type Config struct {
	URL      string
	Exchange string
	Queue    string
}

func (c Config) withDefaults() Config {
	if c.Exchange == "" {
		c.Exchange = DefaultExchange
	}
	if c.Queue == "" {
		c.Queue = DefaultQueue
	}
	return c
}

// DeadLetterExchange receives deliveries rejected by consumers of the queue.
func (c Config) DeadLetterExchange() string {
	return c.Exchange + ".dlx"
}

// ParkingQueue holds deliveries that could not be processed.
func (c Config) ParkingQueue() string {
	return c.Queue + ".parked"
}

// Broker owns an AMQP connection and a channel used for publishing.
type Broker struct {
	cfg  Config
	conn *amqp.Connection

	mu  sync.Mutex // guards pub
	pub *amqp.Channel
}

// Dial connects to the broker and declares the exchange, queue and parking queue.
func Dial(cfg Config) (*Broker, error) {
	cfg = cfg.withDefaults()
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := declareTopology(ch, cfg); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare topology: %w", err)
	}
	return &Broker{cfg: cfg, conn: conn, pub: ch}, nil
}

// Exchange returns the configured exchange name.
func (b *Broker) Exchange() string { return b.cfg.Exchange }

// RoutingKey returns the routing key that reaches the configured queue.
func (b *Broker) RoutingKey() string { return b.cfg.Queue }

// Close closes the channel and the connection.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pub != nil {
		_ = b.pub.Close()
	}
	return b.conn.Close()
}

func declareTopology(ch *amqp.Channel, cfg Config) error {
	dlx := cfg.DeadLetterExchange()
	if err := ch.ExchangeDeclare(cfg.Exchange, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		return fmt.Errorf("exchange %s: %w", cfg.Exchange, err)
	}
	if err := ch.ExchangeDeclare(dlx, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		return fmt.Errorf("exchange %s: %w", dlx, err)
	}

	parked := cfg.ParkingQueue()
	if _, err := ch.QueueDeclare(parked, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue %s: %w", parked, err)
	}
	if err := ch.QueueBind(parked, cfg.Queue, dlx, false, nil); err != nil {
		return fmt.Errorf("bind %s: %w", parked, err)
	}

	args := amqp.Table{
		"x-dead-letter-exchange":    dlx,
		"x-dead-letter-routing-key": cfg.Queue,
	}
	if _, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, args); err != nil {
		return fmt.Errorf("queue %s: %w", cfg.Queue, err)
	}
	if err := ch.QueueBind(cfg.Queue, cfg.Queue, cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind %s: %w", cfg.Queue, err)
	}
	return nil
}

// Publish sends a persistent JSON message.
func (b *Broker) Publish(ctx context.Context, exchange, routingKey string, body []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	err := b.pub.PublishWithContext(ctx, exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  contentType,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
	}
	return nil
}

// Handler processes one message body.
type Handler func(ctx context.Context, body []byte) error

// Consume delivers messages from the configured queue to handle until ctx is
// cancelled or the channel closes. Deliveries are acknowledged according to
// the outcome of handle, see Settle.
func (b *Broker) Consume(ctx context.Context, handle Handler) error {
	ch, err := b.conn.Channel()
	if err != nil {
		return fmt.Errorf("open consumer channel: %w", err)
	}
	defer ch.Close()

	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	deliveries, err := ch.Consume(b.cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", b.cfg.Queue, err)
	}
	slog.Info("consuming", "queue", b.cfg.Queue)

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			handleDelivery(ctx, d, handle)
		}
	}
}

func handleDelivery(ctx context.Context, d amqp.Delivery, handle Handler) {
	err := handle(ctx, d.Body)
	outcome := Settle(err, d.Redelivered)

	log := slog.With("delivery_tag", d.DeliveryTag, "redelivered", d.Redelivered)
	var ackErr error
	switch outcome {
	case Ack:
		ackErr = d.Ack(false)
	case Requeue:
		log.Warn("message processing failed, requeueing", "error", err)
		ackErr = d.Nack(false, true)
	case Park:
		log.Error("message processing failed, parking", "error", err)
		ackErr = d.Reject(false)
	}
	if ackErr != nil {
		log.Error("failed to settle delivery", "error", ackErr)
	}
}
