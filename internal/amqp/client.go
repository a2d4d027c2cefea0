// Package amqp publishes approval and drift notifications to the message
// broker consumed by the notification pipeline. Publishing is fire and
// forget: a broker failure never rolls back a committed mutation.
package amqp

import (
	"context"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"github.com/Ruzakiff/WealthTogether/internal/core"
	"github.com/Ruzakiff/WealthTogether/internal/drift"
	applog "github.com/Ruzakiff/WealthTogether/internal/log"
)

type Client struct {
	conn         *amqp091.Connection
	channel      *amqp091.Channel
	exchangeName string
	queueName    string
	logger       *applog.Logger
}

func NewClient(url, exchangeName, queueName string, logger *applog.Logger) (*Client, error) {
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
		logger:       logger.WithComponent("amqp"),
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

	err = c.channel.QueueBind(
		c.queueName,
		c.queueName, // routing key matches queue for a direct exchange
		c.exchangeName,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}

	return nil
}

// NotifyApproval publishes an approval lifecycle transition.
func (c *Client) NotifyApproval(ctx context.Context, approval core.PendingApproval) error {
	body, err := wrap(KindApproval, ApprovalMessage{
		ApprovalID: approval.ID,
		CoupleID:   approval.CoupleID,
		Action:     string(approval.Action),
		Status:     string(approval.Status),
		Timestamp:  time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal approval message: %w", err)
	}
	if err := c.publish(ctx, body); err != nil {
		return err
	}
	c.logger.InfoContext(ctx, "published approval notification",
		"approval_id", approval.ID, "status", approval.Status)
	return nil
}

// NotifyDrift publishes a drift flag.
func (c *Client) NotifyDrift(ctx context.Context, flag drift.Flag) error {
	body, err := wrap(KindDrift, DriftMessage{
		CoupleID:      flag.CoupleID,
		GoalID:        flag.GoalID,
		GoalName:      flag.GoalName,
		Reason:        string(flag.Reason),
		ObservedCents: flag.ObservedRate.Cents,
		RequiredCents: flag.RequiredRate.Cents,
		Deadline:      flag.Deadline,
		Timestamp:     time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal drift message: %w", err)
	}
	if err := c.publish(ctx, body); err != nil {
		return err
	}
	c.logger.InfoContext(ctx, "published drift flag",
		"goal_id", flag.GoalID, "reason", flag.Reason)
	return nil
}

func (c *Client) publish(ctx context.Context, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := c.channel.PublishWithContext(
		ctx,
		c.exchangeName,
		c.queueName,
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

// Consume delivers envelopes to handler until ctx is cancelled. Handler
// errors requeue the delivery; undecodable messages are dropped.
func (c *Client) Consume(ctx context.Context, handler func(*Envelope) error) error {
	msgs, err := c.channel.Consume(
		c.queueName,
		"",    // consumer
		false, // manual ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	c.logger.InfoContext(ctx, "consuming notifications", "queue", c.queueName)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return fmt.Errorf("message channel closed")
			}

			env, err := EnvelopeFromJSON(delivery.Body)
			if err != nil {
				c.logger.ErrorContext(ctx, "undecodable notification", "error", err)
				delivery.Nack(false, false)
				continue
			}

			if err := handler(env); err != nil {
				c.logger.ErrorContext(ctx, "notification handler failed",
					"kind", env.Kind, "error", err)
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
