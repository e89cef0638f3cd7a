package kafka

import (
	"encoding/json"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dividendscout/pipeline/internal/models"
)

// MockRepository is an in-memory SymbolRepository for testing
type MockRepository struct {
	symbols  map[string]*models.Symbol
	excluded map[string]bool

	UpsertSymbolCalls int
}

// NewMockRepository creates a new mock repository
func NewMockRepository() *MockRepository {
	return &MockRepository{
		symbols:  make(map[string]*models.Symbol),
		excluded: make(map[string]bool),
	}
}

func (m *MockRepository) UpsertSymbol(s *models.Symbol) error {
	m.UpsertSymbolCalls++
	m.symbols[s.Symbol] = s
	return nil
}

func (m *MockRepository) GetExcludedSymbols() (map[string]bool, error) {
	return m.excluded, nil
}

func testConsumer(repo SymbolRepository) *Consumer {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return &Consumer{repo: repo, logger: logger}
}

func requestMessage(t *testing.T, req models.SymbolRequest) kafka.Message {
	t.Helper()
	data, err := json.Marshal(req)
	require.NoError(t, err)
	return kafka.Message{Value: data}
}

func TestProcessMessageTracksSymbol(t *testing.T) {
	repo := NewMockRepository()
	c := testConsumer(repo)

	msg := requestMessage(t, models.SymbolRequest{
		Symbol:      "aapl",
		Name:        "Apple Inc.",
		Exchange:    "NASDAQ",
		RequestedBy: "screener-service",
	})

	require.NoError(t, c.processMessage(msg))
	require.Equal(t, 1, repo.UpsertSymbolCalls)

	s, ok := repo.symbols["AAPL"]
	require.True(t, ok, "symbol should be upserted uppercased")
	assert.Equal(t, "Apple Inc.", s.Name)
	assert.Equal(t, models.SymbolTypeStock, s.Type)
	assert.True(t, s.Active)
	// The zero-epoch last_updated makes the next update run pick it up.
	assert.True(t, s.LastUpdated.Unix() == 0)
}

func TestProcessMessagePreservesType(t *testing.T) {
	repo := NewMockRepository()
	c := testConsumer(repo)

	msg := requestMessage(t, models.SymbolRequest{Symbol: "SCHD", Type: models.SymbolTypeETF})
	require.NoError(t, c.processMessage(msg))
	assert.Equal(t, models.SymbolTypeETF, repo.symbols["SCHD"].Type)
}

func TestProcessMessageExcludedSymbolDropped(t *testing.T) {
	repo := NewMockRepository()
	repo.excluded["DELISTED"] = true
	c := testConsumer(repo)

	msg := requestMessage(t, models.SymbolRequest{Symbol: "delisted"})

	// Dropping an excluded symbol is not an error; the message must not
	// be retried.
	require.NoError(t, c.processMessage(msg))
	assert.Equal(t, 0, repo.UpsertSymbolCalls)
}

func TestProcessMessageMalformedJSON(t *testing.T) {
	repo := NewMockRepository()
	c := testConsumer(repo)

	err := c.processMessage(kafka.Message{Value: []byte("{not json")})
	assert.Error(t, err)
	assert.Equal(t, 0, repo.UpsertSymbolCalls)
}

func TestProcessMessageMissingSymbol(t *testing.T) {
	repo := NewMockRepository()
	c := testConsumer(repo)

	msg := requestMessage(t, models.SymbolRequest{Symbol: "   "})
	err := c.processMessage(msg)
	assert.Error(t, err)
	assert.Equal(t, 0, repo.UpsertSymbolCalls)
}
