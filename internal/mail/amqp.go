package mail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/veator13/mybeachtrivia.com-sub001/internal/application"
)

// QueueName is the durable queue holding outbound email jobs.
const QueueName = "mail.outbound"

// job is the wire form of an outbound email.
type job struct {
	To       string            `json:"to"`
	Subject  string            `json:"subject"`
	Template string            `json:"template"`
	Data     map[string]string `json:"data,omitempty"`
}

func declareQueue(ch *amqp.Channel) error {
	if _, err := ch.QueueDeclare(
		QueueName,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	return nil
}

// Publisher enqueues email jobs on the broker. It redials lazily after the
// connection drops.
type Publisher struct {
	url    string
	logger *slog.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewPublisher dials url and declares the mail queue.
func NewPublisher(url string, logger *slog.Logger) (*Publisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Publisher{url: url, logger: logger.With("component", "mail_publisher")}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.connectLocked(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Publisher) connectLocked() error {
	if p.conn != nil && !p.conn.IsClosed() && p.ch != nil && !p.ch.IsClosed() {
		return nil
	}
	p.closeLocked()

	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("channel open: %w", err)
	}
	if err := declareQueue(ch); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return err
	}
	p.conn, p.ch = conn, ch
	return nil
}

// Enqueue implements application.Mailer. Messages are persistent.
func (p *Publisher) Enqueue(ctx context.Context, email application.OutboundEmail) error {
	if _, err := Render(email); err != nil {
		return err
	}
	body, err := json.Marshal(job{
		To:       email.To,
		Subject:  email.Subject,
		Template: email.Template,
		Data:     email.Data,
	})
	if err != nil {
		return fmt.Errorf("marshal mail job: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.connectLocked(); err != nil {
		p.logger.WarnContext(ctx, "broker unavailable", "error", err)
		return err
	}
	err = p.ch.PublishWithContext(ctx,
		"",        // default exchange
		QueueName, // routing key
		false,     // mandatory
		false,     // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		},
	)
	if err != nil {
		p.logger.WarnContext(ctx, "publish failed", "error", err)
		return fmt.Errorf("publish mail job: %w", err)
	}
	p.logger.DebugContext(ctx, "mail job queued", "template", email.Template)
	return nil
}

// Close releases the broker connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closeLocked()
}

func (p *Publisher) closeLocked() error {
	var errs []error
	if p.ch != nil {
		if err := p.ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
		p.ch = nil
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
		p.conn = nil
	}
	return errors.Join(errs...)
}

// Sender delivers a rendered message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Consumer drains the mail queue and hands each job to a Sender.
type Consumer struct {
	url        string
	sender     Sender
	logger     *slog.Logger
	prefetch   int
	maxBackoff time.Duration
}

// NewConsumer returns a consumer for the broker at url.
func NewConsumer(url string, sender Sender, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		url:        url,
		sender:     sender,
		logger:     logger.With("component", "mail_consumer"),
		prefetch:   10,
		maxBackoff: 30 * time.Second,
	}
}

// Run consumes until ctx is done, redialling with backoff when the broker
// connection is lost.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.url)
		if err == nil {
			backoff = time.Second
			err = c.consume(ctx, conn)
			_ = conn.Close()
		}
		if ctx.Err() != nil {
			return nil
		}
		c.logger.WarnContext(ctx, "mail consumer disconnected", "error", err, "retry_in", backoff.String())

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		if backoff < c.maxBackoff {
			backoff *= 2
		}
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		c.logger.WarnContext(ctx, "set QoS failed", "error", err)
	}
	if err := declareQueue(ch); err != nil {
		return err
	}
	deliveries, err := ch.ConsumeWithContext(ctx, QueueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	c.logger.InfoContext(ctx, "mail consumer started", "queue", QueueName)
	for d := range deliveries {
		if err := c.handle(ctx, d.Body); err != nil {
			c.logger.ErrorContext(ctx, "mail delivery failed", "error", err)
			// Rejected without requeue.
			_ = d.Nack(false, false)
			continue
		}
		_ = d.Ack(false)
	}
	return errors.New("deliveries channel closed")
}

func (c *Consumer) handle(ctx context.Context, body []byte) error {
	var j job
	if err := json.Unmarshal(body, &j); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	msg, err := Render(application.OutboundEmail{
		To:       j.To,
		Subject:  j.Subject,
		Template: j.Template,
		Data:     j.Data,
	})
	if err != nil {
		return err
	}
	if err := c.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("send to %s: %w", msg.To, err)
	}
	c.logger.InfoContext(ctx, "email sent", "to", msg.To, "template", j.Template)
	return nil
}
