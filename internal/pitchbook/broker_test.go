package pitchbook

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pitchbook/internal/groupchat"
)

func TestBroker_PublishReachesSubscribers(t *testing.T) {
	b := NewBroker()
	id := uuid.New()

	ch1, cancel1 := b.Subscribe(id)
	ch2, cancel2 := b.Subscribe(id)
	defer cancel1()
	defer cancel2()

	b.Publish(id, groupchat.Event{Type: groupchat.EventStatus, Message: "hello"})

	for _, ch := range []<-chan groupchat.Event{ch1, ch2} {
		select {
		case e := <-ch:
			assert.Equal(t, "hello", e.Message)
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}
}

func TestBroker_PublishToOtherTopicNotDelivered(t *testing.T) {
	b := NewBroker()
	ch, cancel := b.Subscribe(uuid.New())
	defer cancel()

	b.Publish(uuid.New(), groupchat.Event{Type: groupchat.EventStatus})

	select {
	case e := <-ch:
		t.Fatalf("unexpected event: %+v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBroker_CancelThenCloseTopicIsSafe(t *testing.T) {
	b := NewBroker()
	id := uuid.New()

	_, cancel := b.Subscribe(id)
	cancel()
	cancel() // idempotent
	b.CloseTopic(id)
}

func TestBroker_CloseTopicClosesChannels(t *testing.T) {
	b := NewBroker()
	id := uuid.New()

	ch, cancel := b.Subscribe(id)
	b.CloseTopic(id)

	_, open := <-ch
	assert.False(t, open)

	// Cancel after topic close must not panic.
	cancel()
}

func TestBroker_SlowSubscriberDoesNotBlock(t *testing.T) {
	b := NewBroker()
	id := uuid.New()

	ch, cancel := b.Subscribe(id)
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*2; i++ {
			b.Publish(id, groupchat.Event{Type: groupchat.EventAgentUpdate})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}

	require.Equal(t, subscriberBuffer, len(ch))
}
