package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"reelforge/internal/models"
)

// ChannelSource hands out broker channels. *Connection implements it.
type ChannelSource interface {
	Channel() (*amqp.Channel, error)
}

// StatusPublisher fans video status events out on a topic exchange.
// Routing keys look like "video.completed".
type StatusPublisher struct {
	source   ChannelSource
	exchange string
	logger   *zap.Logger

	mu sync.Mutex
	ch *amqp.Channel
}

func NewStatusPublisher(source ChannelSource, exchange string, logger *zap.Logger) *StatusPublisher {
	return &StatusPublisher{
		source:   source,
		exchange: exchange,
		logger:   logger.Named("StatusPublisher"),
	}
}

// RoutingKey returns the key a status event is published under.
func RoutingKey(status models.VideoStatus) string {
	return "video." + strings.ToLower(string(status))
}

func (p *StatusPublisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	ch, err := p.source.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(p.exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", p.exchange, err)
	}
	p.ch = ch
	return ch, nil
}

func (p *StatusPublisher) PublishStatus(ctx context.Context, ev models.VideoStatusEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal status event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel()
	if err != nil {
		return err
	}
	err = ch.PublishWithContext(ctx, p.exchange, RoutingKey(ev.Status), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.VideoID.String(),
		Timestamp:    ev.OccurredAt,
		Body:         body,
	})
	if err != nil {
		_ = ch.Close()
		p.ch = nil
		return fmt.Errorf("publish status event: %w", err)
	}
	p.logger.Debug("Status event published",
		zap.Stringer("video_id", ev.VideoID),
		zap.String("status", string(ev.Status)),
	)
	return nil
}

func (p *StatusPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == nil {
		return nil
	}
	err := p.ch.Close()
	p.ch = nil
	return err
}
