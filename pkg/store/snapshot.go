package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"watchgraph/pkg/logger"
	"watchgraph/pkg/watchlist"
)

// Snapshot persists the result map as an indented JSON object. Every save
// replaces the file atomically so a crash never leaves half a document.
type Snapshot struct {
	path          string
	watchedByPath string
	mu            sync.Mutex
	logger        logger.Logger
}

// NewSnapshot creates a snapshot writer for the results file and its
// watched-by companion
func NewSnapshot(path, watchedByPath string, log logger.Logger) *Snapshot {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Snapshot{
		path:          path,
		watchedByPath: watchedByPath,
		logger:        log,
	}
}

// Path returns the results file path
func (s *Snapshot) Path() string {
	return s.path
}

// WatchedByPath returns the watched-by file path
func (s *Snapshot) WatchedByPath() string {
	return s.watchedByPath
}

// Reset writes an empty object so the file never shows a previous run's users
func (s *Snapshot) Reset() error {
	if err := s.Save(watchlist.NewResultMap()); err != nil {
		return fmt.Errorf("failed to reset snapshot: %w", err)
	}
	s.logger.DebugWithFields("Snapshot reset", map[string]interface{}{
		"path": s.path,
	})
	return nil
}

// Save rewrites the results file with the current map
func (s *Snapshot) Save(results *watchlist.ResultMap) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeJSON(s.path, results)
}

// Record saves the whole map after username completed
func (s *Snapshot) Record(username string, _ watchlist.Watchlist, results *watchlist.ResultMap) error {
	if err := s.Save(results); err != nil {
		return err
	}

	s.logger.DebugWithFields("Snapshot saved", map[string]interface{}{
		"username": username,
		"users":    results.Len(),
	})
	return nil
}

// Flush writes both the results and the watched-by file. It is the
// interrupt path's last write.
func (s *Snapshot) Flush(results, watchedBy *watchlist.ResultMap) error {
	if results == nil {
		results = watchlist.NewResultMap()
	}
	if watchedBy == nil {
		watchedBy = watchlist.NewResultMap()
	}

	if err := s.Save(results); err != nil {
		return err
	}

	s.mu.Lock()
	err := writeJSON(s.watchedByPath, watchedBy)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.logger.InfoWithFields("Results flushed", map[string]interface{}{
		"results_file":    s.path,
		"watched_by_file": s.watchedByPath,
		"users":           results.Len(),
	})
	return nil
}

// Load reads the results file back, keeping the file's key order
func (s *Snapshot) Load() (*watchlist.ResultMap, error) {
	return LoadResults(s.path)
}

// Exists checks if the results file exists
func (s *Snapshot) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// LoadResults decodes a results file written by Snapshot
func LoadResults(path string) (*watchlist.ResultMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read results file: %w", err)
	}

	results := watchlist.NewResultMap()
	if err := json.Unmarshal(data, results); err != nil {
		return nil, fmt.Errorf("failed to decode results file %s: %w", path, err)
	}
	return results, nil
}

// writeJSON writes v indented by four spaces through a temp file and rename
func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	file, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tempPath := file.Name()

	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync %s: %w", path, err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close %s: %w", path, err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}

	return nil
}
