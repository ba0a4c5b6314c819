package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/fitfeed/fitfeed/internal/config"
	"github.com/fitfeed/fitfeed/internal/validation"
	"github.com/fitfeed/fitfeed/pkg/models"
)

const (
	InteractionDLQSuffix = "-dlq"
	ConsumerGroup        = "interaction-processors"

	maxRetries = 3
)

// InteractionEvent is the wire format of one interaction on the ingest
// topic. Timestamp is informational; the store assigns the canonical one.
type InteractionEvent struct {
	UserID    int64                  `json:"user_id"`
	ItemID    int64                  `json:"item_id"`
	Type      models.InteractionType `json:"type"`
	Timestamp time.Time              `json:"timestamp,omitempty"`
}

// InteractionSink receives validated interaction events. The catalog store
// implements it.
type InteractionSink interface {
	CreateInteraction(ctx context.Context, req *models.InteractionCreateRequest) (*models.Interaction, error)
}

// InteractionConsumer streams interaction events from Kafka into the
// interaction log. Malformed or repeatedly failing events go to a dead
// letter topic instead of blocking the partition.
type InteractionConsumer struct {
	reader    *kafka.Reader
	dlqWriter *kafka.Writer
	sink      InteractionSink
	validator *validation.SchemaValidator
	logger    *logrus.Logger
}

func NewInteractionConsumer(cfg *config.KafkaConfig, sink InteractionSink, validator *validation.SchemaValidator, logger *logrus.Logger) *InteractionConsumer {
	return &InteractionConsumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:        cfg.Brokers,
			Topic:          cfg.Topics.UserInteractions,
			GroupID:        ConsumerGroup,
			MinBytes:       10e3, // 10KB
			MaxBytes:       10e6, // 10MB
			CommitInterval: time.Second,
			StartOffset:    kafka.LastOffset,
		}),
		dlqWriter: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topics.UserInteractions + InteractionDLQSuffix,
			RequiredAcks: kafka.RequireOne,
			Async:        false,
		},
		sink:      sink,
		validator: validator,
		logger:    logger,
	}
}

// Run consumes until ctx is cancelled.
func (c *InteractionConsumer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			message, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				c.logger.WithError(err).Error("Failed to read message from Kafka")
				continue
			}

			if err := c.handleMessage(ctx, message); err != nil {
				c.logger.WithError(err).WithFields(logrus.Fields{
					"partition": message.Partition,
					"offset":    message.Offset,
				}).Error("Failed to process interaction event")

				if dlqErr := c.sendToDLQ(ctx, message, err); dlqErr != nil {
					c.logger.WithError(dlqErr).Error("Failed to send event to DLQ")
				}
			}

			// At-least-once: the offset moves only after the event is
			// either stored or parked on the DLQ.
			if err := c.reader.CommitMessages(ctx, message); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				c.logger.WithError(err).Error("Failed to commit Kafka offset")
			}
		}
	}
}

func (c *InteractionConsumer) handleMessage(ctx context.Context, message kafka.Message) error {
	if result := c.validator.ValidateInteractionEvent(message.Value); !result.Valid {
		return fmt.Errorf("invalid interaction event: %s", result.Errors[0].Message)
	}

	var event InteractionEvent
	if err := json.Unmarshal(message.Value, &event); err != nil {
		return fmt.Errorf("failed to unmarshal interaction event: %w", err)
	}

	req := &models.InteractionCreateRequest{
		UserID: event.UserID,
		ItemID: event.ItemID,
		Type:   event.Type,
	}

	return c.storeWithRetry(ctx, req)
}

func (c *InteractionConsumer) storeWithRetry(ctx context.Context, req *models.InteractionCreateRequest) error {
	baseDelay := time.Second

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := baseDelay * time.Duration(1<<uint(attempt-1))
			c.logger.WithFields(logrus.Fields{
				"user_id": req.UserID,
				"item_id": req.ItemID,
				"attempt": attempt,
				"delay":   delay,
			}).Info("Retrying interaction store")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		_, err := c.sink.CreateInteraction(ctx, req)
		if err == nil {
			return nil
		}

		c.logger.WithError(err).WithFields(logrus.Fields{
			"user_id": req.UserID,
			"item_id": req.ItemID,
			"attempt": attempt,
		}).Warn("Interaction store failed")

		if attempt == maxRetries {
			return fmt.Errorf("max retries exceeded: %w", err)
		}
	}

	return fmt.Errorf("unexpected retry loop exit")
}

func (c *InteractionConsumer) sendToDLQ(ctx context.Context, original kafka.Message, originalError error) error {
	dlqMessage := kafka.Message{
		Key:   original.Key,
		Value: original.Value,
		Headers: []kafka.Header{
			{Key: "original_topic", Value: []byte(original.Topic)},
			{Key: "error", Value: []byte(originalError.Error())},
			{Key: "dlq_timestamp", Value: []byte(time.Now().Format(time.RFC3339))},
		},
	}

	if err := c.dlqWriter.WriteMessages(ctx, dlqMessage); err != nil {
		return fmt.Errorf("failed to write event to DLQ: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"offset": original.Offset,
		"error":  originalError.Error(),
	}).Warn("Interaction event sent to DLQ")

	return nil
}

func (c *InteractionConsumer) Close() error {
	var errs []error

	if err := c.reader.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close consumer: %w", err))
	}
	if err := c.dlqWriter.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close DLQ writer: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing interaction consumer: %v", errs)
	}
	return nil
}

// Stats exposes consumer lag counters for the health endpoint.
func (c *InteractionConsumer) Stats() map[string]interface{} {
	stats := c.reader.Stats()
	return map[string]interface{}{
		"consumer_lag":    stats.Lag,
		"consumer_offset": stats.Offset,
		"messages_read":   stats.Messages,
		"bytes_read":      stats.Bytes,
		"rebalances":      stats.Rebalances,
		"errors":          stats.Errors,
	}
}
