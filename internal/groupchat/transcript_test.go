package groupchat

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranscript_AppendPreservesOrder(t *testing.T) {
	tr := NewTranscript()
	tr.Append("user", "first")
	tr.Append("Coordinator", "second")
	tr.Append("Analyst", "third")

	msgs := tr.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "first", msgs[0].Content)
	assert.Equal(t, "second", msgs[1].Content)
	assert.Equal(t, "third", msgs[2].Content)
}

func TestTranscript_EarlyMessagesSurviveLaterAppends(t *testing.T) {
	tr := NewTranscript()
	tr.Append("user", "original task")
	before := tr.Messages()

	for i := 0; i < 50; i++ {
		tr.Append("Analyst", "more output")
	}

	after := tr.Messages()
	assert.Equal(t, before[0], after[0])

	// Mutating a returned snapshot must not affect the transcript.
	after[0].Content = "tampered"
	fresh := tr.Messages()
	assert.Equal(t, "original task", fresh[0].Content)
}

func TestTranscript_Contains(t *testing.T) {
	tr := NewTranscript()
	tr.Append("Analyst", "work in progress")
	assert.False(t, tr.Contains("PITCHBOOK COMPLETE"))

	tr.Append("Coordinator", "All done. PITCHBOOK COMPLETE")
	assert.True(t, tr.Contains("PITCHBOOK COMPLETE"))
}

func TestTranscript_Last(t *testing.T) {
	tr := NewTranscript()
	_, ok := tr.Last()
	assert.False(t, ok)

	tr.Append("user", "task")
	last, ok := tr.Last()
	require.True(t, ok)
	assert.Equal(t, "task", last.Content)
}

func TestTranscript_Render(t *testing.T) {
	tr := NewTranscript()
	tr.Append("user", "Analyze ACME")
	tr.Append("Analyst", "On it.")

	rendered := tr.Render()
	assert.Contains(t, rendered, "user: Analyze ACME")
	assert.Contains(t, rendered, "Analyst: On it.")
	// user line appears before the analyst line
	assert.Less(t, strings.Index(rendered, "user:"), strings.Index(rendered, "Analyst:"))
}
