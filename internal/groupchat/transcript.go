package groupchat

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Message is one entry of the conversation history. Once appended to a
// transcript it is never modified.
type Message struct {
	Author    string    `json:"author"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Transcript is an ordered, append-only conversation history. The round loop
// is the only writer, but streaming consumers may snapshot concurrently, so
// access is guarded.
type Transcript struct {
	mu       sync.RWMutex
	messages []Message
}

func NewTranscript() *Transcript {
	return &Transcript{}
}

// Append records a new message. Insertion order is the conversation order.
func (t *Transcript) Append(author, content string) Message {
	msg := Message{
		Author:    author,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}

	t.mu.Lock()
	t.messages = append(t.messages, msg)
	t.mu.Unlock()

	return msg
}

// Messages returns a copy of the history in append order.
func (t *Transcript) Messages() []Message {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// Len returns the number of appended messages.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.messages)
}

// Last returns the most recent message, if any.
func (t *Transcript) Last() (Message, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if len(t.messages) == 0 {
		return Message{}, false
	}
	return t.messages[len(t.messages)-1], true
}

// Contains reports whether any message content includes the given marker.
// Used for verbatim termination-sentinel checks.
func (t *Transcript) Contains(marker string) bool {
	return t.ContainsFrom(marker, 0)
}

// ContainsFrom reports whether any message at index start or later includes
// the given marker. The termination check uses it to skip seed messages
// that quote the sentinel as an instruction.
func (t *Transcript) ContainsFrom(marker string, start int) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for i := start; i < len(t.messages); i++ {
		if strings.Contains(t.messages[i].Content, marker) {
			return true
		}
	}
	return false
}

// Render flattens the history into a prompt-ready block, one
// "author: content" paragraph per message.
func (t *Transcript) Render() string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var b strings.Builder
	for _, m := range t.messages {
		fmt.Fprintf(&b, "%s: %s\n\n", m.Author, m.Content)
	}
	return b.String()
}
