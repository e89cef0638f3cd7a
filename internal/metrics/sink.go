package metrics

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Event is a single observation appended to a sink
type Event struct {
	Name      string        `json:"name"`
	Endpoint  string        `json:"endpoint,omitempty"`
	Duration  time.Duration `json:"duration_ns,omitempty"`
	Success   bool          `json:"success"`
	Timestamp time.Time     `json:"timestamp"`
}

// Sink receives metric events and the end-of-run summary. Implementations
// decide where the data goes; call sites never depend on the backend.
type Sink interface {
	Append(e Event) error
	Flush(s Summary) error
}

// NoopSink discards everything
type NoopSink struct{}

func (NoopSink) Append(Event) error  { return nil }
func (NoopSink) Flush(Summary) error { return nil }

// FileSink appends events to a JSONL file and writes the summary as a
// timestamped JSON report
type FileSink struct {
	dir    string
	events *os.File
}

// NewFileSink creates a file sink writing under dir
func NewFileSink(dir string) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create metrics directory: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, "events.jsonl"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open metrics events file: %w", err)
	}
	return &FileSink{dir: dir, events: f}, nil
}

// Append writes one event as a JSON line
func (s *FileSink) Append(e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if _, err := s.events.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// Flush writes the run summary to a timestamped report file
func (s *FileSink) Flush(summary Summary) error {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}
	name := fmt.Sprintf("summary_%s.json", summary.FinishedAt.Format("20060102_150405"))
	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o644); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	return nil
}

// Close closes the events file
func (s *FileSink) Close() error {
	return s.events.Close()
}
