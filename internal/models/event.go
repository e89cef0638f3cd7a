package models

import "time"

// Kafka event types published by the pipeline
const (
	EventRunStarted       = "RUN_STARTED"
	EventRunCompleted     = "RUN_COMPLETED"
	EventSymbolDiscovered = "SYMBOL_DISCOVERED"
)

// PipelineEvent is the Kafka payload for run lifecycle and discovery events
type PipelineEvent struct {
	EventType string       `json:"event_type"`
	Mode      string       `json:"mode,omitempty"`
	Symbol    string       `json:"symbol,omitempty"`
	Run       *PipelineRun `json:"run,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// SymbolRequest is the payload consumed from the symbol-requests topic:
// an external service asking the pipeline to start tracking a ticker
type SymbolRequest struct {
	Symbol      string    `json:"symbol"`
	Name        string    `json:"name,omitempty"`
	Exchange    string    `json:"exchange,omitempty"`
	Type        string    `json:"type,omitempty"`
	RequestedBy string    `json:"requested_by,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}
