package workflow

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkflow_MarshalsSnakeCaseKeys(t *testing.T) {
	wf := New("Vodafone Idea", "Build the pitchbook")
	wf.FailureNote = "model unavailable"
	wf.CreatedAt = time.Now().UTC()
	wf.UpdatedAt = wf.CreatedAt

	raw, err := json.Marshal(wf)
	require.NoError(t, err)

	var got map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &got))

	for _, key := range []string{"id", "company", "status", "task", "messages", "sections", "failure_note", "created_at", "updated_at"} {
		assert.Contains(t, got, key)
	}
	assert.NotContains(t, got, "FailureNote")
	assert.NotContains(t, got, "CompletedAt")
	assert.NotContains(t, got, "completed_at", "nil completion time should be omitted")
}

func TestWorkflow_OmitsEmptyFailureNote(t *testing.T) {
	raw, err := json.Marshal(New("Tata Motors", "Build the pitchbook"))
	require.NoError(t, err)

	var got map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.NotContains(t, got, "failure_note")
}

func TestStatus_Valid(t *testing.T) {
	assert.True(t, StatusRunning.Valid())
	assert.True(t, StatusFailed.Valid())
	assert.False(t, Status("archived").Valid())
}

func TestStatus_Terminal(t *testing.T) {
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.False(t, StatusRunning.Terminal())
	assert.False(t, StatusPending.Terminal())
}
