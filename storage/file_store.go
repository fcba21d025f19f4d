package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/wricardo/connectn/game/session"
)

// FileStore keeps one JSON file per result and per participant
type FileStore struct {
	resultsDir  string
	countersDir string
	mu          sync.Mutex
}

// NewFileStore creates the directory layout under dir if needed
func NewFileStore(dir string) (*FileStore, error) {
	fs := &FileStore{
		resultsDir:  filepath.Join(dir, "results"),
		countersDir: filepath.Join(dir, "counters"),
	}
	for _, d := range []string{fs.resultsDir, fs.countersDir} {
		if err := os.MkdirAll(d, 0755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}
	return fs, nil
}

// PersistResult writes a result to <dir>/results/<id>.json
func (fs *FileStore) PersistResult(ctx context.Context, result session.Result) error {
	if result.ID == "" {
		return fmt.Errorf("result id cannot be empty")
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return writeJSON(fs.filePath(fs.resultsDir, result.ID), result)
}

// GetResults loads results in the order asked, failing if any is missing
func (fs *FileStore) GetResults(ctx context.Context, ids []string) ([]session.Result, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	results := make([]session.Result, 0, len(ids))
	for _, id := range ids {
		var result session.Result
		err := readJSON(fs.filePath(fs.resultsDir, id), &result)
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrResultNotFound, id)
		}
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, nil
}

// SearchResults scans every result file
func (fs *FileStore) SearchResults(ctx context.Context, params SearchParams) ([]session.Result, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	entries, err := os.ReadDir(fs.resultsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read results directory: %w", err)
	}

	var all []session.Result
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		var result session.Result
		if err := readJSON(filepath.Join(fs.resultsDir, entry.Name()), &result); err != nil {
			return nil, err
		}
		all = append(all, result)
	}
	return filterResults(all, params), nil
}

// FetchCounters returns zero counters for an unknown participant
func (fs *FileStore) FetchCounters(ctx context.Context, participantID string) (Counters, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.loadCounters(participantID)
}

// UpdateCounters applies delta once per game
func (fs *FileStore) UpdateCounters(ctx context.Context, participantID string, delta Delta) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	counters, err := fs.loadCounters(participantID)
	if err != nil {
		return err
	}
	if !counters.Apply(delta) {
		return nil
	}
	return writeJSON(fs.filePath(fs.countersDir, participantID), counters)
}

func (fs *FileStore) Close() error {
	return nil
}

func (fs *FileStore) loadCounters(participantID string) (Counters, error) {
	var counters Counters
	err := readJSON(fs.filePath(fs.countersDir, participantID), &counters)
	if errors.Is(err, os.ErrNotExist) {
		return Counters{}, nil
	}
	return counters, err
}

// filePath returns the JSON file for an id, escaping path separators
func (fs *FileStore) filePath(dir, id string) string {
	return filepath.Join(dir, fmt.Sprintf("%s.json", filepath.Base(filepath.Clean("/"+id))))
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", filepath.Base(path), err)
	}
	return nil
}
