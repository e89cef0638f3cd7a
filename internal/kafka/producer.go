package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/dividendscout/pipeline/internal/models"
)

// Producer handles publishing pipeline events to Kafka
type Producer struct {
	writer *kafka.Writer
	topic  string
}

// NewProducer creates a new Kafka producer
func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
	}

	return &Producer{
		writer: writer,
		topic:  topic,
	}
}

// PublishRunStarted publishes a run lifecycle event at the start of a
// pipeline invocation
func (p *Producer) PublishRunStarted(ctx context.Context, run *models.PipelineRun) error {
	event := models.PipelineEvent{
		EventType: models.EventRunStarted,
		Mode:      run.Mode,
		Run:       run,
		Timestamp: time.Now(),
	}
	return p.publish(ctx, run.Mode, event)
}

// PublishRunCompleted publishes the run summary when a pipeline
// invocation finishes, whatever its outcome
func (p *Producer) PublishRunCompleted(ctx context.Context, run *models.PipelineRun) error {
	event := models.PipelineEvent{
		EventType: models.EventRunCompleted,
		Mode:      run.Mode,
		Run:       run,
		Timestamp: time.Now(),
	}
	return p.publish(ctx, run.Mode, event)
}

// PublishSymbolDiscovered publishes a discovery event for a newly
// tracked ticker
func (p *Producer) PublishSymbolDiscovered(ctx context.Context, symbol string) error {
	event := models.PipelineEvent{
		EventType: models.EventSymbolDiscovered,
		Symbol:    symbol,
		Timestamp: time.Now(),
	}
	return p.publish(ctx, symbol, event)
}

func (p *Producer) publish(ctx context.Context, key string, event models.PipelineEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: data,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}

	return nil
}

// Close closes the Kafka producer
func (p *Producer) Close() error {
	return p.writer.Close()
}
