package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// NopWAL discards entries
type NopWAL struct{}

func NewNopWAL() *NopWAL             { return &NopWAL{} }
func (w *NopWAL) Append(_ any) error { return nil }
func (w *NopWAL) Close() error       { return nil }

// FileWAL appends one JSON document per line, in commit order.
// It is the audit journal of committed calls; Pebble stays the source of truth.
type FileWAL struct {
	mu sync.Mutex
	f  *os.File
}

func NewFileWAL(path string) (*FileWAL, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileWAL{f: f}, nil
}

// Append writes v as a single JSON line
func (w *FileWAL) Append(v any) error {
	line, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal wal entry: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	line = append(line, '\n')
	if _, err := w.f.Write(line); err != nil {
		return fmt.Errorf("failed to append wal entry: %w", err)
	}
	return nil
}

func (w *FileWAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.f.Close()
}

// ReadWAL decodes every line of a journal file with decode, in order
func ReadWAL(path string, decode func(line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64<<10), 4<<20)
	for sc.Scan() {
		if len(sc.Bytes()) == 0 {
			continue
		}
		if err := decode(sc.Bytes()); err != nil {
			return err
		}
	}
	return sc.Err()
}
