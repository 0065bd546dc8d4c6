// internal/logger/buffer.go
package logger

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// LogEntry is one record kept for the dashboard log pane.
type LogEntry struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	Logger    string                 `json:"logger,omitempty"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// LogBuffer хранит последние записи в кольцевом буфере. Вытесненные записи
// дописываются в spill-файл, если он задан.
type LogBuffer struct {
	mu      sync.Mutex
	ring    []LogEntry
	next    int
	wrapped bool

	spillFile   *os.File
	spillWriter *bufio.Writer
	onAdd       func(LogEntry)

	totalEntries   uint64
	spilledEntries uint64
}

// NewLogBuffer creates a buffer for maxSize entries. An empty spillPath
// disables spilling.
func NewLogBuffer(maxSize int, spillPath string) (*LogBuffer, error) {
	if maxSize <= 0 {
		return nil, fmt.Errorf("buffer size must be positive, got %d", maxSize)
	}
	lb := &LogBuffer{ring: make([]LogEntry, maxSize)}
	if spillPath == "" {
		return lb, nil
	}

	if err := os.MkdirAll(filepath.Dir(spillPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(spillPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open spill file: %w", err)
	}
	lb.spillFile = f
	lb.spillWriter = bufio.NewWriter(f)
	return lb, nil
}

// OnAdd registers a callback invoked after every Add, outside the lock.
func (lb *LogBuffer) OnAdd(fn func(LogEntry)) {
	lb.mu.Lock()
	lb.onAdd = fn
	lb.mu.Unlock()
}

// Add appends an entry, evicting the oldest one when the ring is full.
func (lb *LogBuffer) Add(entry LogEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	lb.mu.Lock()
	var spillErr error
	if lb.wrapped && lb.spillWriter != nil {
		spillErr = lb.spill(lb.ring[lb.next])
		if spillErr == nil {
			lb.spilledEntries++
		}
	}
	lb.ring[lb.next] = entry
	lb.next = (lb.next + 1) % len(lb.ring)
	if lb.next == 0 {
		lb.wrapped = true
	}
	lb.totalEntries++
	notify := lb.onAdd
	lb.mu.Unlock()

	if notify != nil {
		notify(entry)
	}
	return spillErr
}

func (lb *LogBuffer) spill(entry LogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal log entry: %w", err)
	}
	if _, err := lb.spillWriter.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write to spill file: %w", err)
	}
	return nil
}

// Recent returns up to limit newest entries, oldest first. limit <= 0 means all.
func (lb *LogBuffer) Recent(limit int) []LogEntry {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	count := lb.next
	start := 0
	if lb.wrapped {
		count = len(lb.ring)
		start = lb.next
	}
	if limit > 0 && limit < count {
		start += count - limit
		count = limit
	}

	out := make([]LogEntry, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, lb.ring[(start+i)%len(lb.ring)])
	}
	return out
}

// Stats returns how many entries were added and spilled.
func (lb *LogBuffer) Stats() (total, spilled uint64) {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return lb.totalEntries, lb.spilledEntries
}

// Flush writes buffered spill data to disk.
func (lb *LogBuffer) Flush() error {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	if lb.spillWriter == nil {
		return nil
	}
	if err := lb.spillWriter.Flush(); err != nil {
		return fmt.Errorf("failed to flush spill writer: %w", err)
	}
	return lb.spillFile.Sync()
}

// Close spills the entries still in the ring and closes the file.
func (lb *LogBuffer) Close() error {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	if lb.spillWriter == nil {
		return nil
	}

	count, start := lb.next, 0
	if lb.wrapped {
		count, start = len(lb.ring), lb.next
	}
	for i := 0; i < count; i++ {
		if err := lb.spill(lb.ring[(start+i)%len(lb.ring)]); err != nil {
			return err
		}
	}
	if err := lb.spillWriter.Flush(); err != nil {
		return fmt.Errorf("failed to flush during close: %w", err)
	}
	err := lb.spillFile.Close()
	lb.spillWriter = nil
	return err
}
