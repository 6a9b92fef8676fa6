// Package amqp publishes expense change events to RabbitMQ.
package amqp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

const (
	maxFailures    = 5
	openTimeout    = 30 * time.Second
	maxBackoff     = 30 * time.Second
	dialAttempts   = 3
	publishTimeout = 5 * time.Second
	dialTimeout    = 5 * time.Second
	heartbeat      = 10 * time.Second
)

var errNacked = errors.New("broker rejected message")

// Client publishes to a durable direct exchange with publisher confirms.
// A dropped connection is re-dialled by the next publish; repeated failures
// trip a circuit breaker so publishing fails fast instead of stalling.
type Client struct {
	url      string
	exchange string
	key      string
	breaker  *breaker

	mu   sync.Mutex
	conn *amqp091.Connection
	ch   *amqp091.Channel
}

// NewClient connects, declares the exchange and a queue named key bound to
// it, retrying the dial with backoff.
func NewClient(ctx context.Context, url, exchange, key string) (*Client, error) {
	c := &Client{url: url, exchange: exchange, key: key, breaker: newBreaker(maxFailures, openTimeout)}

	var err error
	for attempt := 0; attempt < dialAttempts; attempt++ {
		if attempt > 0 {
			wait := exponentialBackoff(attempt - 1)
			slog.WarnContext(ctx, "Retrying AMQP connection", "attempt", attempt+1, "wait", wait, "error", err)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}
		c.mu.Lock()
		err = c.dialLocked()
		c.mu.Unlock()
		if err == nil {
			return c, nil
		}
	}
	return nil, err
}

func (c *Client) dialLocked() error {
	conn, err := amqp091.DialConfig(c.url, amqp091.Config{
		Heartbeat: heartbeat,
		Locale:    "en_US",
		Dial:      amqp091.DefaultDial(dialTimeout),
	})
	if err != nil {
		return fmt.Errorf("dial AMQP: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	if err := declareTopology(ch, c.exchange, c.key); err != nil {
		_ = conn.Close()
		return err
	}
	if err := ch.Confirm(false); err != nil {
		_ = conn.Close()
		return fmt.Errorf("enable confirms: %w", err)
	}
	c.conn, c.ch = conn, ch
	return nil
}

func declareTopology(ch *amqp091.Channel, exchange, key string) error {
	if err := ch.ExchangeDeclare(exchange, amqp091.ExchangeDirect, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	if _, err := ch.QueueDeclare(key, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", key, err)
	}
	if err := ch.QueueBind(key, key, exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", key, err)
	}
	return nil
}

// PublishExpenseEvent sends ev as a persistent JSON message and waits for
// the broker to confirm it.
func (c *Client) PublishExpenseEvent(ctx context.Context, ev *ExpenseEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := ev.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	// Every call admitted by the breaker must report its outcome.
	if err := c.breaker.allow(); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := c.publish(ctx, ev, body); err != nil {
		c.breaker.failure()
		return err
	}
	c.breaker.success()

	slog.DebugContext(ctx, "Published expense event",
		"type", ev.Type,
		"expense_id", ev.ExpenseID,
		"exchange", c.exchange,
		"routing_key", c.key)
	return nil
}

func (c *Client) publish(ctx context.Context, ev *ExpenseEvent, body []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ch == nil || c.ch.IsClosed() {
		c.closeLocked()
		if err := c.dialLocked(); err != nil {
			return err
		}
	}

	confirm, err := c.ch.PublishWithDeferredConfirmWithContext(ctx, c.exchange, c.key, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Type:         string(ev.Type),
		MessageId:    ev.ExpenseID,
		Timestamp:    ev.Timestamp,
		Body:         body,
	})
	if err != nil {
		if isConnectionError(err) {
			c.closeLocked()
		}
		return fmt.Errorf("publish message: %w", err)
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("await confirm: %w", err)
	}
	if !acked {
		return errNacked
	}
	return nil
}

// exponentialBackoff returns 1s, 2s, 4s... capped at maxBackoff.
func exponentialBackoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= 5 {
		return maxBackoff
	}
	return min(time.Second<<attempt, maxBackoff)
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection") ||
		strings.Contains(msg, "eof") ||
		strings.Contains(msg, "broken pipe")
}

func (c *Client) closeLocked() error {
	var err error
	if c.ch != nil {
		_ = c.ch.Close()
		c.ch = nil
	}
	if c.conn != nil {
		err = c.conn.Close()
		c.conn = nil
	}
	return err
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked()
}
