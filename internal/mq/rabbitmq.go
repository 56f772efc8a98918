package mq

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	ExchangeTasks = "tasks"
	ExchangeRetry = "tasks.retry"
	ExchangeDLQ   = "tasks.dlq"
)

// RetryQueue is the delay queue whose expired messages flow back into queue.
func RetryQueue(queue string) string {
	return queue + ".retry"
}

// DLQueue holds messages that exhausted their retries.
func DLQueue(queue string) string {
	return queue + ".dlq"
}

type Client struct {
	Conn      *amqp.Connection //tcp
	Channel   *amqp.Channel    // AMQP
	publishMu sync.Mutex

	declaredMu sync.Mutex
	declared   map[string]bool
}

// Dial opens a connection and a channel to the broker.
func Dial(url string) (*Client, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return &Client{Conn: conn, Channel: ch, declared: make(map[string]bool)}, nil
}

func (c *Client) Close() {
	if c == nil {
		return
	}
	if c.Channel != nil {
		_ = c.Channel.Close()
	}
	if c.Conn != nil {
		_ = c.Conn.Close()
	}
}

// IsClosed reports whether the connection or channel is gone.
func (c *Client) IsClosed() bool {
	return c.Conn == nil || c.Channel == nil || c.Conn.IsClosed() || c.Channel.IsClosed()
}

// DeclareExchanges declares the three direct exchanges shared by every queue.
func (c *Client) DeclareExchanges() error {
	for _, name := range []string{ExchangeTasks, ExchangeRetry, ExchangeDLQ} {
		if err := c.Channel.ExchangeDeclare(
			name,
			"direct",
			true,
			false,
			false,
			false,
			nil,
		); err != nil {
			return err
		}
	}
	return nil
}

// DeclareQueue declares queue, its retry queue and its dead-letter queue.
// Routing keys equal queue names.
func (c *Client) DeclareQueue(queue string) error {
	c.declaredMu.Lock()
	defer c.declaredMu.Unlock()
	if c.declared[queue] {
		return nil
	}
	if err := c.DeclareExchanges(); err != nil {
		return err
	}
	if _, err := c.Channel.QueueDeclare(
		queue,
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		return err
	}
	if _, err := c.Channel.QueueDeclare(
		RetryQueue(queue),
		true,
		false,
		false,
		false,
		amqp.Table{
			"x-dead-letter-exchange":    ExchangeTasks,
			"x-dead-letter-routing-key": queue,
		},
	); err != nil {
		return err
	}
	if _, err := c.Channel.QueueDeclare(
		DLQueue(queue),
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		return err
	}
	bindings := []struct{ queue, exchange string }{
		{queue, ExchangeTasks},
		{RetryQueue(queue), ExchangeRetry},
		{DLQueue(queue), ExchangeDLQ},
	}
	for _, b := range bindings {
		if err := c.Channel.QueueBind(
			b.queue,
			queue,
			b.exchange,
			false,
			nil,
		); err != nil {
			return err
		}
	}
	if c.declared == nil {
		c.declared = make(map[string]bool)
	}
	c.declared[queue] = true
	return nil
}

// Consume declares queue and starts a manual-ack consumer on it.
func (c *Client) Consume(queue string, prefetch int) (<-chan amqp.Delivery, error) {
	if err := c.DeclareQueue(queue); err != nil {
		return nil, err
	}
	if prefetch <= 0 {
		prefetch = 1
	}
	if err := c.Channel.Qos(prefetch, 0, false); err != nil {
		return nil, err
	}
	return c.Channel.Consume(
		queue,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
}

// PublishTask routes body to the queue selected by the task name.
func (c *Client) PublishTask(ctx context.Context, task string, body []byte) error {
	queue := RouteForTask(task)
	if err := c.DeclareQueue(queue); err != nil {
		return err
	}
	return c.publish(ctx, ExchangeTasks, queue, body, "")
}

// PublishRetry parks body in the retry queue for delay, after which the broker
// dead-letters it back onto the task queue.
func (c *Client) PublishRetry(ctx context.Context, task string, body []byte, delay time.Duration) error {
	queue := RouteForTask(task)
	if err := c.DeclareQueue(queue); err != nil {
		return err
	}
	if delay < 0 {
		delay = 0
	}
	expiration := fmt.Sprintf("%d", delay.Milliseconds())
	return c.publish(ctx, ExchangeRetry, queue, body, expiration)
}

// PublishDLQ records a permanently failed task.
func (c *Client) PublishDLQ(ctx context.Context, task string, body []byte) error {
	queue := RouteForTask(task)
	if err := c.DeclareQueue(queue); err != nil {
		return err
	}
	return c.publish(ctx, ExchangeDLQ, queue, body, "")
}

func (c *Client) publish(ctx context.Context, exchange, key string, body []byte, expiration string) error {
	c.publishMu.Lock()
	defer c.publishMu.Unlock()
	msg := amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
	}
	if expiration != "" {
		msg.Expiration = expiration
	}
	return c.Channel.PublishWithContext(
		ctx,
		exchange,
		key,
		false,
		false,
		msg,
	)
}
