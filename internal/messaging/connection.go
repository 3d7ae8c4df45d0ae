package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	maxDialAttempts = 5
	reconnectDelay  = 5 * time.Second
)

// ErrNotConnected is returned while the broker connection is being re-established.
var ErrNotConnected = errors.New("rabbitmq: not connected")

// Connection owns the broker connection and replaces it when the broker drops it.
type Connection struct {
	url    string
	logger *zap.Logger

	mu   sync.RWMutex
	conn *amqp.Connection
}

// Dial connects to url, retrying a few times before giving up.
func Dial(ctx context.Context, url string, logger *zap.Logger) (*Connection, error) {
	c := &Connection{url: url, logger: logger.Named("RabbitMQ")}
	conn, err := c.dial(ctx, maxDialAttempts)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	c.logger.Info("RabbitMQ connected")
	return c, nil
}

func (c *Connection) dial(ctx context.Context, attempts int) (*amqp.Connection, error) {
	var lastErr error
	for attempt := 1; attempts <= 0 || attempt <= attempts; attempt++ {
		conn, err := amqp.Dial(c.url)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		c.logger.Warn("Failed to connect to RabbitMQ",
			zap.Int("attempt", attempt),
			zap.Duration("retry_delay", reconnectDelay),
			zap.Error(err),
		)
		select {
		case <-time.After(reconnectDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("connect to rabbitmq: %w", lastErr)
}

// Run watches the connection and redials whenever it closes. It returns when ctx is done.
func (c *Connection) Run(ctx context.Context) error {
	for {
		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()
		if conn == nil {
			return ErrNotConnected
		}

		closed := conn.NotifyClose(make(chan *amqp.Error, 1))
		select {
		case <-ctx.Done():
			return c.Close()
		case amqpErr := <-closed:
			c.logger.Warn("RabbitMQ connection closed, reconnecting", zap.Any("reason", amqpErr))
		}

		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()

		next, err := c.dial(ctx, 0)
		if err != nil {
			return nil
		}
		c.mu.Lock()
		c.conn = next
		c.mu.Unlock()
		c.logger.Info("RabbitMQ reconnected")
	}
}

// Channel opens a channel on the current connection.
func (c *Connection) Channel() (*amqp.Channel, error) {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil || conn.IsClosed() {
		return nil, ErrNotConnected
	}
	return conn.Channel()
}

func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	if errors.Is(err, amqp.ErrClosed) {
		return nil
	}
	return err
}
