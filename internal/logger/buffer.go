// internal/logger/buffer.go
package logger

import (
	"strings"
	"sync"
)

// LogBuffer keeps the most recent log lines in a ring. It is an io.Writer
// so a zap core can write into it directly.
type LogBuffer struct {
	mu           sync.Mutex
	ring         []string
	maxSize      int
	currentIndex int
	wrapped      bool

	// Stats
	totalEntries uint64
}

// NewLogBuffer creates a new log buffer with the specified size
func NewLogBuffer(maxSize int) *LogBuffer {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &LogBuffer{
		ring:    make([]string, maxSize),
		maxSize: maxSize,
	}
}

// Write stores every non-empty line of p as a separate entry.
func (lb *LogBuffer) Write(p []byte) (int, error) {
	for _, line := range strings.Split(string(p), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		lb.Add(line)
	}
	return len(p), nil
}

// Add appends a line, overwriting the oldest one when full.
func (lb *LogBuffer) Add(line string) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	lb.ring[lb.currentIndex] = line
	lb.currentIndex = (lb.currentIndex + 1) % lb.maxSize
	if lb.currentIndex == 0 {
		lb.wrapped = true
	}
	lb.totalEntries++
}

// Sync нужен zapcore.WriteSyncer
func (lb *LogBuffer) Sync() error {
	return nil
}

// GetRecentLogs returns up to limit most recent lines, oldest first.
// limit <= 0 returns everything kept.
func (lb *LogBuffer) GetRecentLogs(limit int) []string {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	count := lb.currentIndex
	start := 0
	if lb.wrapped {
		count = lb.maxSize
		start = lb.currentIndex
	}
	if limit > 0 && limit < count {
		start += count - limit
		count = limit
	}

	logs := make([]string, 0, count)
	for i := 0; i < count; i++ {
		logs = append(logs, lb.ring[(start+i)%lb.maxSize])
	}
	return logs
}

// GetStats returns how many lines were ever written
func (lb *LogBuffer) GetStats() uint64 {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return lb.totalEntries
}
