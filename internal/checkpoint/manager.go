// Package checkpoint persists the set of already-processed items for a
// long-running batch so an interrupted run can resume without redoing
// work. Persistence is per-namespace JSON files with at-least-once
// semantics: a crash between saves reprocesses at most the items marked
// since the last save, and never skips an item that was never saved.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// checkpointFile is the on-disk format
type checkpointFile struct {
	Namespace string    `json:"namespace"`
	Processed []string  `json:"processed"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Manager tracks processed items for one namespace and flushes them to
// disk every saveEvery marks
type Manager struct {
	dir       string
	namespace string
	saveEvery int
	logger    *logrus.Logger

	mu        sync.Mutex
	processed map[string]bool
	unsaved   int
}

// NewManager creates a checkpoint manager for a namespace (e.g.
// "prices") and loads any existing checkpoint from a previous run
func NewManager(dir, namespace string, saveEvery int, logger *logrus.Logger) (*Manager, error) {
	if saveEvery <= 0 {
		saveEvery = 50
	}
	if logger == nil {
		logger = logrus.New()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}

	m := &Manager{
		dir:       dir,
		namespace: namespace,
		saveEvery: saveEvery,
		logger:    logger,
		processed: make(map[string]bool),
	}
	if err := m.load(); err != nil {
		return nil, err
	}
	return m, nil
}

// Filter returns the items not yet recorded as processed, preserving
// input order
func (m *Manager) Filter(items []string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	remaining := make([]string, 0, len(items))
	for _, item := range items {
		if !m.processed[item] {
			remaining = append(remaining, item)
		}
	}
	if skipped := len(items) - len(remaining); skipped > 0 {
		m.logger.WithFields(logrus.Fields{
			"namespace": m.namespace,
			"resumed":   skipped,
			"remaining": len(remaining),
		}).Info("resuming from checkpoint")
	}
	return remaining
}

// Mark records an item as processed and flushes to disk when saveEvery
// unsaved marks have accumulated
func (m *Manager) Mark(item string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.processed[item] {
		return nil
	}
	m.processed[item] = true
	m.unsaved++

	if m.unsaved >= m.saveEvery {
		return m.save()
	}
	return nil
}

// Flush forces any unsaved marks to disk
func (m *Manager) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unsaved == 0 {
		return nil
	}
	return m.save()
}

// ProcessedCount returns the number of items recorded as processed
func (m *Manager) ProcessedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.processed)
}

// Clear removes the checkpoint after a fully successful run so the next
// run starts fresh
func (m *Manager) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.processed = make(map[string]bool)
	m.unsaved = 0

	err := os.Remove(m.path())
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove checkpoint: %w", err)
	}
	return nil
}

// save writes the processed set atomically. Caller must hold m.mu.
func (m *Manager) save() error {
	items := make([]string, 0, len(m.processed))
	for item := range m.processed {
		items = append(items, item)
	}
	sort.Strings(items)

	data, err := json.MarshalIndent(checkpointFile{
		Namespace: m.namespace,
		Processed: items,
		UpdatedAt: time.Now(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	tmp := m.path() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := os.Rename(tmp, m.path()); err != nil {
		return fmt.Errorf("failed to replace checkpoint: %w", err)
	}

	m.unsaved = 0
	m.logger.WithFields(logrus.Fields{
		"namespace": m.namespace,
		"processed": len(items),
	}).Debug("checkpoint saved")
	return nil
}

func (m *Manager) load() error {
	data, err := os.ReadFile(m.path())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read checkpoint: %w", err)
	}

	var cf checkpointFile
	if err := json.Unmarshal(data, &cf); err != nil {
		// A torn or corrupt checkpoint means reprocessing, never
		// skipping, so start fresh.
		m.logger.WithField("namespace", m.namespace).WithError(err).Warn("discarding unreadable checkpoint")
		return nil
	}
	for _, item := range cf.Processed {
		m.processed[item] = true
	}
	return nil
}

func (m *Manager) path() string {
	return filepath.Join(m.dir, m.namespace+".json")
}

// CleanupOld removes checkpoint files older than maxAge from dir and
// returns the number removed
func CleanupOld(dir string, maxAge time.Duration, logger *logrus.Logger) (int, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read checkpoint directory: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
				if logger != nil {
					logger.WithField("file", entry.Name()).WithError(err).Warn("failed to remove old checkpoint")
				}
				continue
			}
			removed++
		}
	}
	return removed, nil
}
