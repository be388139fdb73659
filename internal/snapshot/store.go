// Package snapshot caches the board on disk so the TUI can paint a stale
// board immediately while the first refresh is still in flight.
package snapshot

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/loopydev/flowboard/internal/board"
	"github.com/loopydev/flowboard/internal/state"
)

// ErrNotFound is returned by Load when no snapshot has been saved yet.
var ErrNotFound = errors.New("snapshot not found")

const fileName = "board.yaml"

type taskRecord struct {
	ID        string    `yaml:"id"`
	Title     string    `yaml:"title"`
	Notes     string    `yaml:"notes,omitempty"`
	State     string    `yaml:"state"`
	CreatedAt time.Time `yaml:"created_at,omitempty"`
	UpdatedAt time.Time `yaml:"updated_at,omitempty"`
}

type boardRecord struct {
	SavedAt time.Time    `yaml:"saved_at"`
	Tasks   []taskRecord `yaml:"tasks"`
}

// Store reads and writes the board cache under a base directory.
type Store struct {
	dir string
	mu  sync.Mutex
}

var _ board.SnapshotSaver = (*Store)(nil)

func NewStore(dir string) (*Store, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve snapshot dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot dir: %w", err)
	}
	return &Store{dir: abs}, nil
}

// Path returns the snapshot file location, for watchers.
func (s *Store) Path() string {
	return filepath.Join(s.dir, fileName)
}

// Save writes the whole board in column order. The write is atomic (temp
// file then rename) so a watcher or a crashed session never sees a torn
// snapshot.
func (s *Store) Save(columns map[state.Display][]board.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := boardRecord{SavedAt: time.Now().UTC()}
	for _, d := range state.Columns() {
		for _, t := range columns[d] {
			rec.Tasks = append(rec.Tasks, taskRecord{
				ID:        t.ID,
				Title:     t.Title,
				Notes:     t.Notes,
				State:     d.String(),
				CreatedAt: t.CreatedAt,
				UpdatedAt: t.UpdatedAt,
			})
		}
	}
	data, err := yaml.Marshal(&rec)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	full := s.Path()
	tmp := full + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temp snapshot: %w", err)
	}
	if err := os.Rename(tmp, full); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to rename temp snapshot: %w", err)
	}
	return nil
}

// Load reads the cached board back into column form. Records with a state
// the current build does not know fall back to the first column, the same
// rule the live mapper applies to unknown remote states.
func (s *Store) Load() (map[state.Display][]board.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	var rec boardRecord
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	cols := make(map[state.Display][]board.Task)
	for _, tr := range rec.Tasks {
		d, err := state.ParseDisplay(tr.State)
		if err != nil {
			d = state.Exploring
		}
		cols[d] = append(cols[d], board.Task{
			ID:        tr.ID,
			Title:     tr.Title,
			Notes:     tr.Notes,
			State:     d,
			CreatedAt: tr.CreatedAt,
			UpdatedAt: tr.UpdatedAt,
		})
	}
	return cols, nil
}
