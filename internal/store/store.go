package store

import (
	"context"
	"log/slog"
	"strings"

	"github.com/bcrosbie/agentforge/internal/domain"
)

// RunJournal is the write-mostly export of finished runs. It is never read
// back into engine state.
type RunJournal interface {
	Load(ctx context.Context) error
	Append(ctx context.Context, record domain.RunRecord) error
	List(ctx context.Context, filter RunFilter) ([]domain.RunRecord, error)
	Close() error
}

type RunFilter struct {
	AgentID  string
	TaskType string
	Status   string
	Limit    int
}

func (f RunFilter) Matches(record domain.RunRecord) bool {
	if agentID := strings.TrimSpace(f.AgentID); agentID != "" && record.AgentID != agentID {
		return false
	}
	if taskType := strings.TrimSpace(f.TaskType); taskType != "" && record.TaskType != taskType {
		return false
	}
	if status := strings.TrimSpace(f.Status); status != "" && record.Status != status {
		return false
	}
	return true
}

type Options struct {
	Driver      string
	File        string
	DatabaseURL string
	Logger      *slog.Logger
	OnFailure   func()
}

func Open(opts Options) (RunJournal, error) {
	var inner RunJournal
	switch strings.ToLower(strings.TrimSpace(opts.Driver)) {
	case "", "none":
		return NopJournal{}, nil
	case "file":
		inner = NewFileJournal(opts.File, defaultFileRetention)
	case "postgres":
		pg, err := NewPostgresJournal(opts.DatabaseURL)
		if err != nil {
			return nil, err
		}
		inner = pg
	default:
		return nil, domain.InvalidArgument("unsupported journal driver " + opts.Driver)
	}
	return NewBreakerJournal(inner, BreakerConfig{}, opts.Logger, opts.OnFailure), nil
}

type NopJournal struct{}

func (NopJournal) Load(context.Context) error { return nil }

func (NopJournal) Append(context.Context, domain.RunRecord) error { return nil }

func (NopJournal) List(context.Context, RunFilter) ([]domain.RunRecord, error) {
	return []domain.RunRecord{}, nil
}

func (NopJournal) Close() error { return nil }
