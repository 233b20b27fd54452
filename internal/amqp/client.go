package amqp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/errgroup"

	"monthly-spend/internal/core"
)

// Circuit breaker states for publishing.
const (
	StateClosed int32 = iota
	StateOpen
	StateHalfOpen
)

const (
	maxFailures    = 5
	openTimeout    = 30 * time.Second
	publishTimeout = 5 * time.Second
	maxBackoff     = 30 * time.Second
)

// redeliveryDelay holds back the requeue of an event that already failed
// once, so one that cannot succeed yet (a purchase on an unregistered card)
// does not spin on the queue. It occupies one consumer slot meanwhile.
var redeliveryDelay = 5 * time.Second

// Handler applies one change event. Errors for which core.IsRetryable
// reports true cause the delivery to be requeued.
type Handler func(ctx context.Context, ev core.ChangeEvent) error

type Client struct {
	url          string
	exchangeName string
	queueName    string

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel

	state        int32
	failureCount int64
	cbMu         sync.Mutex
	lastFailure  time.Time
}

// NewClient connects and declares the exchange, the queue and their binding.
func NewClient(url, exchangeName, queueName string) (*Client, error) {
	c := &Client{
		url:          url,
		exchangeName: exchangeName,
		queueName:    queueName,
	}
	if err := c.connect(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) connect() error {
	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	if err := setup(channel, c.exchangeName, c.queueName); err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("setup exchange and queue: %w", err)
	}

	c.mu.Lock()
	c.conn, c.channel = conn, channel
	c.mu.Unlock()
	return nil
}

func setup(ch *amqp091.Channel, exchange, queue string) error {
	err := ch.ExchangeDeclare(
		exchange, // name
		"direct", // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	_, err = ch.QueueDeclare(
		queue, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	// Routing key is the queue name.
	if err := ch.QueueBind(queue, queue, exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

// PublishChange publishes ev as a persistent JSON message and returns the
// event id used as message id.
func (c *Client) PublishChange(ctx context.Context, ev core.ChangeEvent) (string, error) {
	if c.isCircuitOpen() {
		return "", fmt.Errorf("publish change: circuit breaker is open")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	ev, body, err := EncodeChange(ev)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	ch := c.channel
	c.mu.Unlock()
	if ch == nil {
		c.recordFailure()
		return "", fmt.Errorf("publish change: not connected")
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = ch.PublishWithContext(
		ctx,
		c.exchangeName, // exchange
		c.queueName,    // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  contentType,
			DeliveryMode: amqp091.Persistent,
			MessageId:    ev.ID,
			Type:         string(ev.Kind),
			Timestamp:    ev.Timestamp,
			Body:         body,
		},
	)
	if err != nil {
		c.recordFailure()
		return "", fmt.Errorf("publish message: %w", err)
	}
	c.recordSuccess()

	slog.InfoContext(ctx, "Published change event",
		"event_id", ev.ID,
		"event_kind", ev.Kind,
		"exchange", c.exchangeName,
		"queue", c.queueName)
	return ev.ID, nil
}

// ConsumeChanges delivers messages to handler from concurrency goroutines
// until ctx is done or the channel is closed. The broker never hands out
// more unacknowledged messages than there are goroutines.
func (c *Client) ConsumeChanges(ctx context.Context, concurrency int, handler Handler) error {
	if concurrency < 1 {
		concurrency = 1
	}

	c.mu.Lock()
	ch := c.channel
	c.mu.Unlock()
	if ch == nil {
		return fmt.Errorf("start consuming: not connected")
	}

	if err := ch.Qos(concurrency, 0, false); err != nil {
		return fmt.Errorf("set prefetch: %w", err)
	}

	msgs, err := ch.Consume(
		c.queueName, // queue
		"",          // consumer
		false,       // auto-ack
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	slog.InfoContext(ctx, "Started consuming change events",
		"queue", c.queueName,
		"concurrency", concurrency)

	g, gctx := errgroup.WithContext(ctx)
	for range concurrency {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return gctx.Err()
				case d, ok := <-msgs:
					if !ok {
						return errChannelClosed
					}
					handleDelivery(gctx, d, handler)
				}
			}
		})
	}
	return g.Wait()
}

var errChannelClosed = errors.New("message channel closed")

// Run consumes until ctx is done, reconnecting with exponential backoff
// whenever the connection is lost.
func (c *Client) Run(ctx context.Context, concurrency int, handler Handler) error {
	attempt := 0
	for {
		err := c.ConsumeChanges(ctx, concurrency, handler)
		if ctx.Err() != nil {
			slog.InfoContext(ctx, "Stopping message consumption", "reason", ctx.Err())
			return nil
		}
		if !isConnectionError(err) {
			return err
		}

		for {
			wait := exponentialBackoff(attempt)
			slog.WarnContext(ctx, "AMQP connection lost, reconnecting",
				"error", err,
				"attempt", attempt+1,
				"backoff", wait)

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(wait):
			}

			c.closeConn()
			if err = c.connect(); err == nil {
				slog.InfoContext(ctx, "AMQP reconnected", "attempts", attempt+1)
				attempt = 0
				break
			}
			attempt++
		}
	}
}

// ack is what a delivery gets once its handler returned.
type ack int

const (
	ackDone ack = iota
	ackRequeue
	ackReject
)

func ackFor(err error) ack {
	switch {
	case err == nil:
		return ackDone
	case core.IsRetryable(err):
		return ackRequeue
	default:
		return ackReject
	}
}

func handleDelivery(ctx context.Context, d amqp091.Delivery, handler Handler) {
	ev, err := DecodeChange(d.Body)
	if err == nil {
		err = handler(ctx, ev)
	}

	var ackErr error
	switch ackFor(err) {
	case ackDone:
		ackErr = d.Ack(false)
	case ackRequeue:
		if d.Redelivered {
			slog.WarnContext(ctx, "Redelivered change event failed again, delaying requeue",
				"message_id", d.MessageId,
				"delay", redeliveryDelay,
				"error", err)
			select {
			case <-ctx.Done():
			case <-time.After(redeliveryDelay):
			}
		} else {
			slog.WarnContext(ctx, "Requeueing change event",
				"message_id", d.MessageId,
				"error", err)
		}
		ackErr = d.Nack(false, true)
	case ackReject:
		slog.ErrorContext(ctx, "Rejecting change event",
			"message_id", d.MessageId,
			"error", err)
		ackErr = d.Nack(false, false)
	}
	if ackErr != nil {
		slog.ErrorContext(ctx, "Failed to acknowledge delivery", "message_id", d.MessageId, "error", ackErr)
	}
}

func (c *Client) isCircuitOpen() bool {
	if atomic.LoadInt32(&c.state) != StateOpen {
		return false
	}
	c.cbMu.Lock()
	last := c.lastFailure
	c.cbMu.Unlock()
	if time.Since(last) > openTimeout {
		atomic.CompareAndSwapInt32(&c.state, StateOpen, StateHalfOpen)
		return false
	}
	return true
}

func (c *Client) recordSuccess() {
	atomic.StoreInt64(&c.failureCount, 0)
	atomic.StoreInt32(&c.state, StateClosed)
}

func (c *Client) recordFailure() {
	c.cbMu.Lock()
	c.lastFailure = time.Now()
	c.cbMu.Unlock()
	if atomic.AddInt64(&c.failureCount, 1) >= maxFailures {
		atomic.StoreInt32(&c.state, StateOpen)
	}
}

// exponentialBackoff returns 1s doubled per attempt, capped at 30s.
func exponentialBackoff(attempt int) time.Duration {
	if attempt >= 5 {
		return maxBackoff
	}
	d := time.Second << attempt
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, errChannelClosed) || errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection", "eof", "broken pipe", "not connected", "channel/connection is not open"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func (c *Client) closeConn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}
