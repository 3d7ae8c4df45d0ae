package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"reelforge/internal/config"
	"reelforge/internal/models"
)

const paymentHandleTimeout = 30 * time.Second

// PaymentEventHandler applies one payment event.
type PaymentEventHandler interface {
	Handle(ctx context.Context, ev models.PaymentEvent) error
}

// PaymentConsumer reads payment events one at a time with manual acknowledgement.
type PaymentConsumer struct {
	source   ChannelSource
	queue    config.QueueConfig
	consumer string
	handler  PaymentEventHandler
	logger   *zap.Logger
}

func NewPaymentConsumer(source ChannelSource, queue config.QueueConfig, consumerName string, handler PaymentEventHandler, logger *zap.Logger) *PaymentConsumer {
	return &PaymentConsumer{
		source:   source,
		queue:    queue,
		consumer: consumerName,
		handler:  handler,
		logger:   logger.Named("PaymentConsumer"),
	}
}

// Run consumes until ctx is done, reopening the channel after broker disconnects.
func (c *PaymentConsumer) Run(ctx context.Context) error {
	for {
		err := c.consume(ctx)
		if ctx.Err() != nil {
			c.logger.Info("Payment consumer stopped")
			return nil
		}
		c.logger.Warn("Payment consumer interrupted, restarting", zap.Error(err))
		select {
		case <-time.After(reconnectDelay):
		case <-ctx.Done():
			return nil
		}
	}
}

func (c *PaymentConsumer) consume(ctx context.Context) error {
	ch, err := c.source.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	q, err := ch.QueueDeclare(c.queue.Name, c.queue.Durable, c.queue.AutoDelete, c.queue.Exclusive, c.queue.NoWait, nil)
	if err != nil {
		return err
	}
	if err := ch.Qos(1, 0, false); err != nil {
		return err
	}
	msgs, err := ch.Consume(q.Name, c.consumer, false, c.queue.Exclusive, false, c.queue.NoWait, nil)
	if err != nil {
		return err
	}
	c.logger.Info("Payment consumer started", zap.String("queue", q.Name))

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return errors.New("delivery channel closed")
			}
			c.handle(ctx, d)
		}
	}
}

func (c *PaymentConsumer) handle(ctx context.Context, d amqp.Delivery) {
	log := c.logger.With(zap.Uint64("delivery_tag", d.DeliveryTag))

	var ev models.PaymentEvent
	if err := json.Unmarshal(d.Body, &ev); err != nil {
		log.Error("Malformed payment event dropped", zap.Error(err), zap.ByteString("body", d.Body))
		if err := d.Nack(false, false); err != nil {
			log.Error("Failed to nack message", zap.Error(err))
		}
		return
	}

	hctx, cancel := context.WithTimeout(ctx, paymentHandleTimeout)
	defer cancel()

	if err := c.handler.Handle(hctx, ev); err != nil {
		requeue := !errors.Is(err, models.ErrInvalidInput)
		log.Error("Payment event failed", zap.Error(err), zap.Bool("requeue", requeue))
		if err := d.Nack(false, requeue); err != nil {
			log.Error("Failed to nack message", zap.Error(err))
		}
		return
	}
	if err := d.Ack(false); err != nil {
		log.Error("Failed to ack message", zap.Error(err))
	}
}
