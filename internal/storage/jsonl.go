package storage

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const maxLineBytes = 1 << 20

// JSONLStore keeps one JSON entry per line in an append-only file.
// A line that does not parse (for example one torn by a crash) is skipped on read.
type JSONLStore struct {
	mu   sync.Mutex
	path string
	file *os.File
	sync bool
}

// OpenJSONL opens or creates the log file at path.
func OpenJSONL(path string, syncWrites bool) (*JSONLStore, error) {
	if path == "" {
		return nil, fmt.Errorf("decision log path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create decision log dir: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open decision log: %w", err)
	}
	if err := terminateTornLine(file); err != nil {
		file.Close()
		return nil, err
	}
	return &JSONLStore{path: path, file: file, sync: syncWrites}, nil
}

// terminateTornLine ends an unterminated last line so the next append starts
// on a line of its own.
func terminateTornLine(file *os.File) error {
	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat decision log: %w", err)
	}
	if info.Size() == 0 {
		return nil
	}
	last := make([]byte, 1)
	if _, err := file.ReadAt(last, info.Size()-1); err != nil {
		return fmt.Errorf("inspect decision log tail: %w", err)
	}
	if last[0] == '\n' {
		return nil
	}
	if _, err := file.Write([]byte{'\n'}); err != nil {
		return fmt.Errorf("repair decision log tail: %w", err)
	}
	return nil
}

// Append writes entry as a single line.
func (s *JSONLStore) Append(ctx context.Context, entry Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return ErrClosed
	}
	if _, err := s.file.Write(line); err != nil {
		return fmt.Errorf("append entry: %w", err)
	}
	if s.sync {
		if err := s.file.Sync(); err != nil {
			return fmt.Errorf("sync decision log: %w", err)
		}
	}
	return nil
}

// Read scans the file and keeps the last limit entries.
func (s *JSONLStore) Read(ctx context.Context, limit int) ([]Entry, error) {
	limit = ClampLimit(limit)

	ring := make([]Entry, limit)
	count := 0
	err := s.each(ctx, func(entry Entry) error {
		ring[count%limit] = entry
		count++
		return nil
	})
	if err != nil {
		return nil, err
	}

	n := min(count, limit)
	out := make([]Entry, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, ring[(count-1-i)%limit])
	}
	return out, nil
}

// Scan streams the whole file, oldest first.
func (s *JSONLStore) Scan(ctx context.Context, from, to time.Time, fn func(Entry) error) error {
	return s.each(ctx, func(entry Entry) error {
		if !InRange(entry.CreatedAt, from, to) {
			return nil
		}
		return fn(entry)
	})
}

// each decodes every readable line in file order.
func (s *JSONLStore) each(ctx context.Context, fn func(Entry) error) error {
	s.mu.Lock()
	closed := s.file == nil
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}

	file, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("open decision log: %w", err)
	}
	defer file.Close()

	reader := bufio.NewReaderSize(file, 64<<10)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		line, readErr := readLine(reader)
		if len(line) > 0 {
			var entry Entry
			if json.Unmarshal(line, &entry) == nil {
				if err := fn(entry); err != nil {
					return err
				}
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return fmt.Errorf("read decision log: %w", readErr)
		}
	}
}

// readLine returns the next trimmed line. Lines longer than maxLineBytes are
// discarded whole.
func readLine(r *bufio.Reader) ([]byte, error) {
	var buf []byte
	oversized := false
	for {
		chunk, err := r.ReadSlice('\n')
		if !oversized {
			if len(buf)+len(chunk) > maxLineBytes {
				oversized = true
				buf = nil
			} else {
				buf = append(buf, chunk...)
			}
		}
		if err == bufio.ErrBufferFull {
			continue
		}
		if oversized {
			return nil, err
		}
		return bytes.TrimSpace(buf), err
	}
}

// Close releases the file handle. It is safe to call more than once.
func (s *JSONLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
