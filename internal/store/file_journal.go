package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/bcrosbie/agentforge/internal/domain"
)

const defaultFileRetention = 1000

type journalFile struct {
	Runs []domain.RunRecord `json:"runs"`
}

// FileJournal keeps the newest records in memory and rewrites the whole
// file on every append via temp file and rename.
type FileJournal struct {
	path      string
	retention int

	mu   sync.RWMutex
	runs []domain.RunRecord
}

func NewFileJournal(path string, retention int) *FileJournal {
	if retention < 1 {
		retention = defaultFileRetention
	}
	return &FileJournal{path: path, retention: retention, runs: []domain.RunRecord{}}
}

func (j *FileJournal) Load(context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(j.path), 0o755); err != nil {
		return domain.Internal("failed to create journal directory", err)
	}

	raw, err := os.ReadFile(j.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			j.runs = []domain.RunRecord{}
			return j.persistLocked()
		}
		return domain.Internal("failed to read journal file", err)
	}

	var parsed journalFile
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return domain.Internal("failed to parse journal file", err)
	}
	j.runs = parsed.Runs
	if j.runs == nil {
		j.runs = []domain.RunRecord{}
	}
	j.trimLocked()
	return nil
}

func (j *FileJournal) Append(_ context.Context, record domain.RunRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.runs = append(j.runs, record)
	j.trimLocked()
	return j.persistLocked()
}

func (j *FileJournal) List(_ context.Context, filter RunFilter) ([]domain.RunRecord, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	items := []domain.RunRecord{}
	for i := len(j.runs) - 1; i >= 0; i-- {
		if !filter.Matches(j.runs[i]) {
			continue
		}
		items = append(items, j.runs[i])
		if filter.Limit > 0 && len(items) == filter.Limit {
			break
		}
	}
	return items, nil
}

func (j *FileJournal) Close() error {
	return nil
}

func (j *FileJournal) trimLocked() {
	if over := len(j.runs) - j.retention; over > 0 {
		j.runs = slices.Clone(j.runs[over:])
	}
}

func (j *FileJournal) persistLocked() error {
	serialized, err := json.MarshalIndent(journalFile{Runs: j.runs}, "", "  ")
	if err != nil {
		return domain.Internal("failed to serialize journal", err)
	}

	tempPath := j.path + ".tmp"
	if err := os.WriteFile(tempPath, append(serialized, '\n'), 0o600); err != nil {
		return domain.Internal("failed to write temporary journal file", err)
	}
	if err := os.Rename(tempPath, j.path); err != nil {
		return domain.Internal("failed to atomically persist journal file", err)
	}
	return nil
}
