package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Channel канал Redis Pub/Sub для событий бронирования
const Channel = "booking:events"

// RedisBus шина событий поверх Redis Pub/Sub для нескольких экземпляров сервиса
type RedisBus struct {
	client *redis.Client
	logger *zap.Logger
}

func NewRedisBus(client *redis.Client, logger *zap.Logger) *RedisBus {
	return &RedisBus{client: client, logger: logger}
}

func (b *RedisBus) Publish(ctx context.Context, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if err := b.client.Publish(ctx, Channel, data).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}

	return nil
}

func (b *RedisBus) Subscribe(ctx context.Context) (<-chan *Event, error) {
	pubsub := b.client.Subscribe(ctx, Channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe to %s: %w", Channel, err)
	}

	out := make(chan *Event, subscriberBuffer)
	go func() {
		defer close(out)
		defer pubsub.Close()

		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}

				var event Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					b.logger.Warn("Failed to decode event", zap.Error(err))
					continue
				}

				select {
				case out <- &event:
				default:
					b.logger.Warn("Subscriber channel full, dropping event",
						zap.String("type", string(event.Type)),
						zap.Int64("provider_id", event.ProviderID),
					)
				}
			}
		}
	}()

	return out, nil
}

// Close закрывает клиент Redis
func (b *RedisBus) Close() error {
	return b.client.Close()
}
