package broadcast

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bcrosbie/agentforge/internal/domain"
	"github.com/bcrosbie/agentforge/internal/logger"
)

func newTestBroadcaster(buffer int) *Broadcaster {
	return New(Options{Buffer: buffer, Logger: logger.Discard()})
}

func progress(agentID string, step int) domain.Event {
	return domain.Event{
		Type:    domain.EventAgentProgress,
		AgentID: agentID,
		Payload: domain.ProgressEvent{AgentID: agentID, Step: step},
	}
}

func TestSubscribeAcknowledgesJoinFirst(t *testing.T) {
	b := newTestBroadcaster(4)
	sub := b.Subscribe("session-1")
	b.Publish(progress("agent_a", 1))

	first := <-sub.Events()
	assert.Equal(t, domain.EventSessionJoined, first.Type)
	assert.Equal(t, "session-1", first.Payload.(domain.SessionJoined).SessionID)

	second := <-sub.Events()
	assert.Equal(t, domain.EventAgentProgress, second.Type)
	assert.False(t, second.Timestamp.IsZero())
}

func TestPublishFansOutInOrder(t *testing.T) {
	b := newTestBroadcaster(16)
	subs := []*Subscription{b.Subscribe("a"), b.Subscribe("b")}
	for step := 1; step <= 5; step++ {
		b.Publish(progress("agent_a", step))
	}

	for _, sub := range subs {
		<-sub.Events()
		for step := 1; step <= 5; step++ {
			event := <-sub.Events()
			assert.Equal(t, step, event.Payload.(domain.ProgressEvent).Step)
		}
	}
}

func TestPublishNeverBlocksOnFullSubscriber(t *testing.T) {
	b := newTestBroadcaster(2)
	slow := b.Subscribe("slow")

	done := make(chan struct{})
	go func() {
		for step := 1; step <= 100; step++ {
			b.Publish(progress("agent_a", step))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
	// Join ack plus one progress event fit the queue of two.
	assert.Equal(t, uint64(99), slow.Dropped())
	assert.Equal(t, uint64(99), b.Dropped())
}

func TestUnsubscribeIsIdempotentAndClosesQueue(t *testing.T) {
	b := newTestBroadcaster(4)
	sub := b.Subscribe("s")
	require.Equal(t, 1, b.SubscriberCount())

	b.Unsubscribe(sub)
	b.Unsubscribe(sub)
	b.Unsubscribe(nil)
	assert.Equal(t, 0, b.SubscriberCount())

	<-sub.Events()
	_, ok := <-sub.Events()
	assert.False(t, ok)

	assert.NotPanics(t, func() { b.Publish(progress("agent_a", 1)) })
}

func TestCloseClosesAllQueues(t *testing.T) {
	b := newTestBroadcaster(4)
	a := b.Subscribe("a")
	c := b.Subscribe("c")
	b.Close()
	b.Close()

	for _, sub := range []*Subscription{a, c} {
		<-sub.Events()
		_, ok := <-sub.Events()
		assert.False(t, ok)
	}

	late := b.Subscribe("late")
	event, ok := <-late.Events()
	assert.True(t, ok)
	assert.Equal(t, domain.EventSessionJoined, event.Type)
	_, ok = <-late.Events()
	assert.False(t, ok)
	assert.NotPanics(t, func() { b.Unsubscribe(late) })
}

func TestConcurrentPublishAndUnsubscribe(t *testing.T) {
	b := newTestBroadcaster(8)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		sub := b.Subscribe("s")
		go func() {
			defer wg.Done()
			for step := 0; step < 200; step++ {
				b.Publish(progress("agent_a", step))
			}
		}()
		go func() {
			defer wg.Done()
			b.Unsubscribe(sub)
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, b.SubscriberCount())
}
