// Package amqp publishes billing lifecycle events to RabbitMQ. Events are
// notifications only: every state change is already durable in the ledger
// before a message goes out, so a lost message never loses data.
package amqp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

const publishTimeout = 5 * time.Second

// Routing keys on the direct exchange, one per event kind.
const (
	RouteBillingRunCompleted = "billing.run.completed"
	RouteInvoiceIssued       = "invoice.issued"
	RoutePaymentRecorded     = "payment.recorded"
)

type Client struct {
	conn         *amqp091.Connection
	channel      *amqp091.Channel
	exchangeName string
	queueName    string
}

func NewClient(url, exchangeName, queueName string) (*Client, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	client := &Client{
		conn:         conn,
		channel:      channel,
		exchangeName: exchangeName,
		queueName:    queueName,
	}

	if err := client.setup(); err != nil {
		client.Close()
		return nil, fmt.Errorf("setup exchange and queue: %w", err)
	}

	return client, nil
}

func (c *Client) setup() error {
	err := c.channel.ExchangeDeclare(
		c.exchangeName,
		"direct",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	_, err = c.channel.QueueDeclare(
		c.queueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	// One queue receives every event kind; routing keys still let other
	// consumers bind selectively.
	for _, key := range []string{RouteBillingRunCompleted, RouteInvoiceIssued, RoutePaymentRecorded} {
		if err := c.channel.QueueBind(c.queueName, key, c.exchangeName, false, nil); err != nil {
			return fmt.Errorf("bind queue to %s: %w", key, err)
		}
	}

	return nil
}

func (c *Client) publish(ctx context.Context, routingKey string, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err := c.channel.PublishWithContext(
		ctx,
		c.exchangeName,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}
	return nil
}

// PublishBillingRunCompleted publishes a billing run summary event.
func (c *Client) PublishBillingRunCompleted(ctx context.Context, msg *BillingRunCompletedMessage) error {
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := c.publish(ctx, RouteBillingRunCompleted, body); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Published billing run message",
		"year", msg.Year,
		"month", msg.Month,
		"accounts_charged", msg.AccountsCharged,
		"exchange", c.exchangeName)
	return nil
}

// PublishInvoiceIssued publishes an invoice issued event.
func (c *Client) PublishInvoiceIssued(ctx context.Context, msg *InvoiceIssuedMessage) error {
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := c.publish(ctx, RouteInvoiceIssued, body); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Published invoice issued message",
		"invoice_id", msg.InvoiceID,
		"account_id", msg.AccountID,
		"exchange", c.exchangeName)
	return nil
}

// PublishPaymentRecorded publishes a payment recorded event.
func (c *Client) PublishPaymentRecorded(ctx context.Context, msg *PaymentRecordedMessage) error {
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := c.publish(ctx, RoutePaymentRecorded, body); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Published payment message",
		"entry_id", msg.EntryID,
		"account_id", msg.AccountID,
		"exchange", c.exchangeName)
	return nil
}

// ConsumeInvoiceIssued consumes invoice issued events from the queue,
// acknowledging after the handler succeeds and requeueing on failure.
func (c *Client) ConsumeInvoiceIssued(ctx context.Context, handler func(*InvoiceIssuedMessage) error) error {
	msgs, err := c.channel.Consume(
		c.queueName,
		"",    // consumer
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	slog.InfoContext(ctx, "Started consuming invoice messages", "queue", c.queueName)

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Stopping message consumption", "reason", ctx.Err())
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return fmt.Errorf("message channel closed")
			}

			if delivery.RoutingKey != RouteInvoiceIssued {
				delivery.Ack(false)
				continue
			}

			msg, err := InvoiceIssuedMessageFromJSON(delivery.Body)
			if err != nil {
				slog.ErrorContext(ctx, "Failed to unmarshal message", "error", err)
				delivery.Nack(false, false)
				continue
			}

			if err := handler(msg); err != nil {
				slog.ErrorContext(ctx, "Failed to handle message",
					"error", err,
					"invoice_id", msg.InvoiceID)
				delivery.Nack(false, true)
				continue
			}

			delivery.Ack(false)
		}
	}
}

func (c *Client) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
