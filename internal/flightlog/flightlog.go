// Package flightlog is the append-only text sink flight events are recorded
// to. There is no rotation and no structured schema; events are free-text
// markers, one per line.
package flightlog

import (
	"fmt"
	"os"
	"sync"
)

// Sink accepts one event line at a time.
type Sink interface {
	Append(line string) error
}

// File is a Sink backed by an append-only file.
type File struct {
	mu sync.Mutex
	f  *os.File
}

// OpenFile opens (creating if needed) path for appending.
func OpenFile(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("flightlog: open %s: %w", path, err)
	}
	return &File{f: f}, nil
}

// Append writes line plus a newline and syncs, so a power loss at touchdown
// cannot lose the landing record.
func (l *File) Append(line string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := fmt.Fprintln(l.f, line); err != nil {
		return fmt.Errorf("flightlog: append: %w", err)
	}
	return l.f.Sync()
}

// Close closes the underlying file.
func (l *File) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Close()
}

// Memory is an in-memory Sink for tests.
type Memory struct {
	mu    sync.Mutex
	Lines []string
}

// Append records line.
func (m *Memory) Append(line string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Lines = append(m.Lines, line)
	return nil
}
