package broadcast

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bcrosbie/agentforge/internal/domain"
	"github.com/bcrosbie/agentforge/internal/metrics"
)

const DefaultBuffer = 64

type Subscription struct {
	id        uint64
	sessionID string
	ch        chan domain.Event
	dropped   atomic.Uint64
	closed    bool
}

func (s *Subscription) SessionID() string { return s.sessionID }

func (s *Subscription) Events() <-chan domain.Event { return s.ch }

func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

type Options struct {
	Buffer     int
	Collectors *metrics.Collectors
	Logger     *slog.Logger
	Now        func() time.Time
}

// Broadcaster fans events out to every subscription without ever blocking
// the publisher. A full queue drops the event for that subscriber only.
type Broadcaster struct {
	mu      sync.RWMutex
	subs    map[uint64]*Subscription
	nextID  atomic.Uint64
	dropped atomic.Uint64
	closed  bool

	buffer     int
	collectors *metrics.Collectors
	logger     *slog.Logger
	now        func() time.Time
}

func New(opts Options) *Broadcaster {
	if opts.Buffer < 1 {
		opts.Buffer = DefaultBuffer
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Broadcaster{
		subs:       make(map[uint64]*Subscription),
		buffer:     opts.Buffer,
		collectors: opts.Collectors,
		logger:     opts.Logger,
		now:        opts.Now,
	}
}

func (b *Broadcaster) Subscribe(sessionID string) *Subscription {
	sub := &Subscription{
		id:        b.nextID.Add(1),
		sessionID: sessionID,
		ch:        make(chan domain.Event, b.buffer),
	}
	sub.ch <- domain.Event{
		Type:      domain.EventSessionJoined,
		Timestamp: b.now().UTC(),
		Payload:   domain.SessionJoined{SessionID: sessionID},
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		sub.closed = true
		close(sub.ch)
		return sub
	}
	b.subs[sub.id] = sub
	b.logger.Debug("session subscribed", "session_id", sessionID, "subscribers", len(b.subs))
	return sub
}

func (b *Broadcaster) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub.closed {
		return
	}
	delete(b.subs, sub.id)
	sub.closed = true
	close(sub.ch)
	b.logger.Debug("session unsubscribed", "session_id", sub.sessionID, "dropped", sub.Dropped())
}

func (b *Broadcaster) Publish(event domain.Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = b.now().UTC()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		select {
		case sub.ch <- event:
		default:
			sub.dropped.Add(1)
			b.dropped.Add(1)
			b.collectors.EventDropped()
			b.logger.Debug("subscriber queue full, event dropped",
				"session_id", sub.sessionID, "event", string(event.Type))
		}
	}
}

func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Broadcaster) Dropped() uint64 { return b.dropped.Load() }

func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		sub.closed = true
		close(sub.ch)
		delete(b.subs, id)
	}
}
