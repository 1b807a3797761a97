package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"bedtime-server/internal/interfaces"
	"bedtime-server/internal/models"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// DefaultStoryEventsQueue - очередь событий о сгенерированных историях.
const DefaultStoryEventsQueue = "story_generated_events"

const appID = "bedtime-server"

// amqpChannel - часть *amqp.Channel, нужная публикатору.
type amqpChannel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

var _ interfaces.StoryEventPublisher = (*rabbitMQStoryEventPublisher)(nil)

type rabbitMQStoryEventPublisher struct {
	mu        sync.Mutex
	channel   amqpChannel
	queueName string
	logger    *zap.Logger
}

// NewRabbitMQStoryEventPublisher объявляет durable очередь и возвращает публикатор.
// Канал открывается и закрывается вызывающей стороной (main).
func NewRabbitMQStoryEventPublisher(ch amqpChannel, queueName string, logger *zap.Logger) (interfaces.StoryEventPublisher, error) {
	if queueName == "" {
		queueName = DefaultStoryEventsQueue
	}
	_, err := ch.QueueDeclare(
		queueName,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		amqp.Table{"x-queue-mode": "lazy"},
	)
	if err != nil {
		return nil, fmt.Errorf("не удалось объявить очередь событий '%s': %w", queueName, err)
	}
	logger.Info("Story events queue declared", zap.String("queue", queueName))

	return &rabbitMQStoryEventPublisher{
		channel:   ch,
		queueName: queueName,
		logger:    logger.Named("StoryEventPublisher"),
	}, nil
}

func (p *rabbitMQStoryEventPublisher) PublishStoryGenerated(ctx context.Context, event models.StoryGeneratedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("ошибка сериализации события для story %s: %w", event.StoryID, err)
	}

	p.mu.Lock()
	err = p.channel.PublishWithContext(ctx,
		"",
		p.queueName,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
			Timestamp:    time.Now(),
			AppId:        appID,
			MessageId:    event.StoryID,
			Type:         "story.generated",
		},
	)
	p.mu.Unlock()
	if err != nil {
		return fmt.Errorf("ошибка публикации события для story %s: %w", event.StoryID, err)
	}

	p.logger.Debug("Story event published",
		zap.String("storyID", event.StoryID),
		zap.String("queue", p.queueName),
		zap.Bool("fallback", event.Fallback),
	)
	return nil
}

// NoopStoryEventPublisher используется, когда RabbitMQ не настроен.
type NoopStoryEventPublisher struct{}

func (NoopStoryEventPublisher) PublishStoryGenerated(context.Context, models.StoryGeneratedEvent) error {
	return nil
}

// ConnectRabbitMQ подключается к RabbitMQ с несколькими попытками.
func ConnectRabbitMQ(ctx context.Context, url string, maxRetries int, retryDelay time.Duration, logger *zap.Logger) (*amqp.Connection, error) {
	maxRetries = max(maxRetries, 1)
	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		conn, err := amqp.Dial(url)
		if err == nil {
			logger.Info("Connected to RabbitMQ", zap.Int("attempt", attempt))
			return conn, nil
		}
		lastErr = err
		logger.Warn("Не удалось подключиться к RabbitMQ",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", maxRetries),
			zap.Duration("retry_delay", retryDelay),
			zap.Error(err),
		)
		if attempt == maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryDelay):
		}
	}
	return nil, fmt.Errorf("failed to connect to rabbitmq after %d attempts: %w", maxRetries, lastErr)
}
