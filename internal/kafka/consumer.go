package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/dividendscout/pipeline/internal/models"
)

// SymbolRepository defines the database operations the consumer needs
type SymbolRepository interface {
	UpsertSymbol(s *models.Symbol) error
	GetExcludedSymbols() (map[string]bool, error)
}

// Consumer handles symbol-request messages from Kafka: external
// services asking the pipeline to start tracking a ticker. Requests for
// excluded tickers are dropped.
type Consumer struct {
	reader *kafka.Reader
	repo   SymbolRepository
	logger *logrus.Logger
}

// NewConsumer creates a new Kafka consumer for symbol requests
func NewConsumer(brokers []string, topic, groupID string, repo SymbolRepository, logger *logrus.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       10e3, // 10KB
		MaxBytes:       10e6, // 10MB
		MaxWait:        1 * time.Second,
		StartOffset:    kafka.FirstOffset,
		CommitInterval: time.Second,
	})

	if logger == nil {
		logger = logrus.New()
	}
	return &Consumer{
		reader: reader,
		repo:   repo,
		logger: logger,
	}
}

// Start consumes messages until the context is cancelled. Malformed or
// invalid messages are logged and skipped, never retried.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("symbol request consumer started")

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("symbol request consumer stopping")
				return nil
			}
			return fmt.Errorf("failed to read message: %w", err)
		}

		if err := c.processMessage(msg); err != nil {
			c.logger.WithField("offset", msg.Offset).WithError(err).Warn("skipping message")
		}
	}
}

func (c *Consumer) processMessage(msg kafka.Message) error {
	var req models.SymbolRequest
	if err := json.Unmarshal(msg.Value, &req); err != nil {
		return fmt.Errorf("failed to unmarshal symbol request: %w", err)
	}

	req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))
	if req.Symbol == "" {
		return fmt.Errorf("symbol request missing symbol")
	}

	excluded, err := c.repo.GetExcludedSymbols()
	if err != nil {
		return fmt.Errorf("failed to check exclusions: %w", err)
	}
	if excluded[req.Symbol] {
		c.logger.WithField("symbol", req.Symbol).Info("ignoring request for excluded symbol")
		return nil
	}

	symbolType := req.Type
	if symbolType == "" {
		symbolType = models.SymbolTypeStock
	}
	symbol := &models.Symbol{
		Symbol:   req.Symbol,
		Name:     req.Name,
		Exchange: req.Exchange,
		Type:     symbolType,
		Active:   true,
		// Zero value forces the next update run to refresh it.
		LastUpdated: time.Unix(0, 0),
	}
	if err := c.repo.UpsertSymbol(symbol); err != nil {
		return fmt.Errorf("failed to upsert requested symbol: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"symbol":       req.Symbol,
		"requested_by": req.RequestedBy,
	}).Info("tracking new symbol")
	return nil
}

// Close closes the Kafka reader
func (c *Consumer) Close() error {
	return c.reader.Close()
}
