package queue

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
	"sort"
	"sync"

	"fieldsync/internal/config"
)

const (
	logOpPut    = "put"
	logOpDelete = "delete"
)

type logEntry struct {
	Op     string      `json:"op"`
	ID     string      `json:"id"`
	Record *Submission `json:"record,omitempty"`
}

// LogStore is an append-only JSON-lines store. It is safe for concurrent use
// within one process only; two processes appending to the same file can
// interleave updates.
type LogStore struct {
	mu   sync.Mutex
	path string
	file *os.File
}

// OpenLog opens the fallback log at cfg.QueueLogPath.
func OpenLog(cfg *config.Config) (*LogStore, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenLogPath(cfg.QueueLogPath())
}

// OpenLogPath opens or creates the log at path and compacts it.
func OpenLogPath(path string) (*LogStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
	}
	store := &LogStore{path: path}
	if err := store.compact(); err != nil {
		return nil, err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open queue log: %w", err)
	}
	store.file = file
	return store, nil
}

// Path returns the log file location.
func (s *LogStore) Path() string { return s.path }

// Kind identifies the store implementation.
func (s *LogStore) Kind() string { return StoreKindLog }

func (s *LogStore) Add(_ context.Context, rec Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, err := s.replay()
	if err != nil {
		return err
	}
	if _, ok := records[rec.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateID, rec.ID)
	}
	return s.append(logEntry{Op: logOpPut, ID: rec.ID, Record: &rec})
}

func (s *LogStore) Get(_ context.Context, id string) (*Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, err := s.replay()
	if err != nil {
		return nil, err
	}
	rec, ok := records[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *LogStore) Put(_ context.Context, rec Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.append(logEntry{Op: logOpPut, ID: rec.ID, Record: &rec})
}

func (s *LogStore) Replace(_ context.Context, rec Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, err := s.replay()
	if err != nil {
		return err
	}
	if _, ok := records[rec.ID]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, rec.ID)
	}
	return s.append(logEntry{Op: logOpPut, ID: rec.ID, Record: &rec})
}

func (s *LogStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, err := s.replay()
	if err != nil {
		return err
	}
	if _, ok := records[id]; !ok {
		return nil
	}
	return s.append(logEntry{Op: logOpDelete, ID: id})
}

func (s *LogStore) All(_ context.Context) ([]Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, err := s.replay()
	if err != nil {
		return nil, err
	}
	return sortedRecords(records), nil
}

// Close releases the log file handle.
func (s *LogStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

func (s *LogStore) append(entry logEntry) error {
	if s.file == nil {
		return errors.New("queue log is closed")
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode log entry: %w", err)
	}
	line = append(line, '\n')
	if _, err := s.file.Write(line); err != nil {
		return fmt.Errorf("append queue log: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("sync queue log: %w", err)
	}
	return nil
}

// replay rebuilds current state from the file. A torn trailing line from an
// interrupted write is ignored.
func (s *LogStore) replay() (map[string]Submission, error) {
	records := make(map[string]Submission)
	file, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return records, nil
		}
		return nil, fmt.Errorf("open queue log: %w", err)
	}
	defer file.Close()

	reader := bufio.NewReader(file)
	for {
		line, readErr := reader.ReadBytes('\n')
		line = bytes.TrimSpace(line)
		if len(line) > 0 {
			var entry logEntry
			if err := json.Unmarshal(line, &entry); err == nil {
				switch entry.Op {
				case logOpPut:
					if entry.Record != nil {
						records[entry.ID] = *entry.Record
					}
				case logOpDelete:
					delete(records, entry.ID)
				}
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			return nil, fmt.Errorf("read queue log: %w", readErr)
		}
	}
	return records, nil
}

// compact rewrites the log with one put per live record.
func (s *LogStore) compact() error {
	records, err := s.replay()
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	file, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create compacted log: %w", err)
	}
	writer := bufio.NewWriter(file)
	encoder := json.NewEncoder(writer)
	for _, rec := range sortedRecords(records) {
		rec := rec
		if err := encoder.Encode(logEntry{Op: logOpPut, ID: rec.ID, Record: &rec}); err != nil {
			_ = file.Close()
			return fmt.Errorf("write compacted log: %w", err)
		}
	}
	if err := writer.Flush(); err != nil {
		_ = file.Close()
		return fmt.Errorf("flush compacted log: %w", err)
	}
	if err := file.Sync(); err != nil {
		_ = file.Close()
		return fmt.Errorf("sync compacted log: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close compacted log: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace queue log: %w", err)
	}
	return nil
}

func sortedRecords(records map[string]Submission) []Submission {
	out := make([]Submission, 0, len(records))
	for _, rec := range records {
		out = append(out, rec)
	}
	sortFIFO(out)
	return out
}

func sortFIFO(records []Submission) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].ID < records[j].ID
		}
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
}
