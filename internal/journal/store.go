package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/Bidon15/pooldeploy/internal/pkg/runid"
)

var ErrRunNotFound = errors.New("journal: run not found")

// Store keeps one JSON file per run in a directory.
type Store struct {
	dir string
	mu  sync.Mutex
}

// NewStore creates a store rooted at dir. The directory is created on the
// first write.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the state directory.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// Save writes the run, replacing any previous version atomically.
func (s *Store) Save(_ context.Context, run *Run) error {
	if !runid.IsValid(run.ID) {
		return fmt.Errorf("journal: invalid run id %q", run.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}

	target := s.path(run.ID)
	tmpPath := target + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename run file: %w", err)
	}
	return nil
}

// Get loads a run by full id or unique prefix.
func (s *Store) Get(ctx context.Context, id string) (*Run, error) {
	ids, err := s.ids()
	if err != nil {
		return nil, err
	}
	full, err := runid.Match(ids, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRunNotFound, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(full)
}

func (s *Store) read(id string) (*Run, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
		}
		return nil, fmt.Errorf("read run: %w", err)
	}

	var run Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("parse run %s: %w", id, err)
	}
	return &run, nil
}

// List returns all runs, newest first.
func (s *Store) List(_ context.Context) ([]*Run, error) {
	ids, err := s.ids()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	runs := make([]*Run, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		run, err := s.read(ids[i])
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, nil
}

// ids returns the stored run ids in ascending order.
func (s *Store) ids() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read state dir: %w", err)
	}

	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		id := strings.TrimSuffix(name, ".json")
		if runid.IsValid(id) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}
