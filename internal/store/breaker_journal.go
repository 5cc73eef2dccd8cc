package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/bcrosbie/agentforge/internal/domain"
)

const (
	defaultBreakerMaxFailures uint32        = 5
	defaultBreakerTimeout     time.Duration = 30 * time.Second
	defaultBreakerInterval    time.Duration = time.Minute
)

type BreakerConfig struct {
	MaxFailures uint32
	Timeout     time.Duration
	Interval    time.Duration
}

type BreakerJournal struct {
	inner     RunJournal
	breaker   *gobreaker.CircuitBreaker[struct{}]
	onFailure func()
}

func NewBreakerJournal(inner RunJournal, cfg BreakerConfig, logger *slog.Logger, onFailure func()) *BreakerJournal {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = defaultBreakerMaxFailures
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultBreakerTimeout
	}
	if cfg.Interval == 0 {
		cfg.Interval = defaultBreakerInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	if onFailure == nil {
		onFailure = func() {}
	}
	breaker := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "journal",
		MaxRequests: 1,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})
	return &BreakerJournal{inner: inner, breaker: breaker, onFailure: onFailure}
}

func (j *BreakerJournal) Load(ctx context.Context) error {
	return j.inner.Load(ctx)
}

func (j *BreakerJournal) Append(ctx context.Context, record domain.RunRecord) error {
	_, err := j.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, j.inner.Append(ctx, record)
	})
	if err != nil {
		j.onFailure()
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return domain.ResourceExhausted(fmt.Sprintf("journal unavailable: %v", err))
		}
		return err
	}
	return nil
}

func (j *BreakerJournal) List(ctx context.Context, filter RunFilter) ([]domain.RunRecord, error) {
	return j.inner.List(ctx, filter)
}

func (j *BreakerJournal) Close() error {
	return j.inner.Close()
}

func (j *BreakerJournal) State() gobreaker.State {
	return j.breaker.State()
}

var (
	_ RunJournal = (*BreakerJournal)(nil)
	_ RunJournal = (*FileJournal)(nil)
	_ RunJournal = (*PostgresJournal)(nil)
	_ RunJournal = NopJournal{}
)
