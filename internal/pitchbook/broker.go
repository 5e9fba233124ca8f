package pitchbook

import (
	"sync"

	"github.com/google/uuid"

	"pitchbook/internal/groupchat"
)

// subscriber buffers events for one stream consumer. Slow consumers drop
// intermediate events rather than stalling the run.
const subscriberBuffer = 256

// Broker fans run events out to stream subscribers keyed by workflow ID.
type Broker struct {
	mu   sync.RWMutex
	subs map[uuid.UUID]map[chan groupchat.Event]struct{}
}

func NewBroker() *Broker {
	return &Broker{
		subs: make(map[uuid.UUID]map[chan groupchat.Event]struct{}),
	}
}

// Subscribe registers a consumer for one workflow's events. The returned
// cancel function must be called when the consumer disconnects.
func (b *Broker) Subscribe(id uuid.UUID) (<-chan groupchat.Event, func()) {
	ch := make(chan groupchat.Event, subscriberBuffer)

	b.mu.Lock()
	if b.subs[id] == nil {
		b.subs[id] = make(map[chan groupchat.Event]struct{})
	}
	b.subs[id][ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if set, ok := b.subs[id]; ok {
			if _, live := set[ch]; live {
				delete(set, ch)
				close(ch)
				if len(set) == 0 {
					delete(b.subs, id)
				}
			}
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers an event to every subscriber of the workflow. Full
// buffers are skipped so the run never blocks on a stalled consumer.
func (b *Broker) Publish(id uuid.UUID, e groupchat.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subs[id] {
		select {
		case ch <- e:
		default:
		}
	}
}

// CloseTopic closes all subscriber channels for a finished workflow.
func (b *Broker) CloseTopic(id uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subs[id] {
		close(ch)
	}
	delete(b.subs, id)
}
