package groupchat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pitchbook/internal/ratelimit"
	"pitchbook/pkg/errors"
)

// scriptedParticipant returns canned responses (or errors) in order,
// repeating the last entry once the script runs out.
type scriptedParticipant struct {
	name   string
	turns  []scriptedTurn
	calls  int
	stream bool
}

type scriptedTurn struct {
	response string
	err      error
}

func (p *scriptedParticipant) Name() string                 { return p.name }
func (p *scriptedParticipant) Class() ratelimit.CallerClass { return ratelimit.ClassDefault }
func (p *scriptedParticipant) Close(context.Context) error  { return nil }

func (p *scriptedParticipant) Respond(_ context.Context, _ string, _ *Transcript, onDelta func(string)) (string, error) {
	idx := p.calls
	if idx >= len(p.turns) {
		idx = len(p.turns) - 1
	}
	p.calls++

	turn := p.turns[idx]
	if turn.err != nil {
		return "", turn.err
	}
	if onDelta != nil && p.stream {
		onDelta(turn.response)
	}
	return turn.response, nil
}

type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) Emit(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *eventRecorder) types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

func newTestLoop(coordinator Participant, participants []Participant, sink EventSink) *RoundLoop {
	retrier := NewCallRetrier(ratelimit.New(ratelimit.Config{}), RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond})
	retrier.sleep = func(context.Context, time.Duration) error { return nil }

	loop := NewRoundLoop(coordinator, participants, retrier, sink, LoopConfig{
		MaxRounds:         10,
		OuterAttempts:     1,
		TerminationMarker: "PITCHBOOK COMPLETE",
		SelectionPrompt:   "Pick the next participant.",
	})
	loop.sleep = func(context.Context, time.Duration) error { return nil }
	return loop
}

func TestRoundLoop_FinishInProseTerminates(t *testing.T) {
	coordinator := &scriptedParticipant{name: "Coordinator", turns: []scriptedTurn{
		{response: "Everything looks good, finish: true, wrapping up."},
	}}
	analyst := &scriptedParticipant{name: "Analyst", turns: []scriptedTurn{{response: "should not run"}}}

	loop := newTestLoop(coordinator, []Participant{analyst}, NopSink)
	require.NoError(t, loop.Run(context.Background(), "Build the pitchbook"))

	assert.Equal(t, 0, analyst.calls)
	// Only the initial task is on the transcript.
	assert.Equal(t, 1, loop.Transcript().Len())
}

func TestRoundLoop_DispatchAppendsExchange(t *testing.T) {
	coordinator := &scriptedParticipant{name: "Coordinator", turns: []scriptedTurn{
		{response: `{"selected_participant": "Analyst", "instruction": "Summarize financials", "finish": false}`},
		{response: `{"finish": true}`},
	}}
	analyst := &scriptedParticipant{name: "Analyst", stream: true, turns: []scriptedTurn{
		{response: "SECTION: 1 - Financial Summary\nRevenue grew 12%."},
	}}

	rec := &eventRecorder{}
	loop := newTestLoop(coordinator, []Participant{analyst}, rec)
	require.NoError(t, loop.Run(context.Background(), "Build the pitchbook"))

	msgs := loop.Transcript().Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "user", msgs[0].Author)
	assert.Equal(t, "Coordinator", msgs[1].Author)
	assert.Equal(t, "Analyst", msgs[2].Author)
	assert.Contains(t, msgs[2].Content, "Revenue grew 12%")

	assert.Equal(t, []EventType{
		EventStatus, EventAgentStart, EventAgentUpdate, EventAgentDone, EventComplete,
	}, rec.types())
}

func TestRoundLoop_UnknownParticipantSkipsRound(t *testing.T) {
	coordinator := &scriptedParticipant{name: "Coordinator", turns: []scriptedTurn{
		{response: `{"selected_participant": "Ghost", "instruction": "boo", "finish": false}`},
		{response: `{"selected_participant": "Phantom", "instruction": "boo", "finish": false}`},
		{response: `{"finish": true}`},
	}}
	analyst := &scriptedParticipant{name: "Analyst", turns: []scriptedTurn{{response: "unused"}}}

	loop := newTestLoop(coordinator, []Participant{analyst}, NopSink)
	require.NoError(t, loop.Run(context.Background(), "task"))

	// Both bad selections are consumed (one round, one immediate retry),
	// the round is skipped without touching the transcript, and the loop
	// continues to the finish decision.
	assert.Equal(t, 0, analyst.calls)
	assert.Equal(t, 3, coordinator.calls)
	assert.Equal(t, 1, loop.Transcript().Len())
}

func TestRoundLoop_MalformedDecisionSkipsRound(t *testing.T) {
	coordinator := &scriptedParticipant{name: "Coordinator", turns: []scriptedTurn{
		{response: "Hmm, let me think about that."},
		{response: `{"finish": true}`},
	}}

	loop := newTestLoop(coordinator, nil, NopSink)
	require.NoError(t, loop.Run(context.Background(), "task"))
	assert.Equal(t, 2, coordinator.calls)
	assert.Equal(t, 1, loop.Transcript().Len())
}

func TestRoundLoop_TerminationMarkerEndsRun(t *testing.T) {
	coordinator := &scriptedParticipant{name: "Coordinator", turns: []scriptedTurn{
		{response: `{"selected_participant": "Analyst", "instruction": "Finalize", "finish": false}`},
		{response: `{"selected_participant": "Analyst", "instruction": "should not be needed", "finish": false}`},
	}}
	analyst := &scriptedParticipant{name: "Analyst", turns: []scriptedTurn{
		{response: "All sections assembled. PITCHBOOK COMPLETE"},
	}}

	loop := newTestLoop(coordinator, []Participant{analyst}, NopSink)
	require.NoError(t, loop.Run(context.Background(), "task"))

	// The marker is detected at the top of the next round, before any
	// further coordinator call.
	assert.Equal(t, 1, coordinator.calls)
	assert.Equal(t, 1, analyst.calls)
}

func TestRoundLoop_MarkerQuotedInTaskDoesNotEndRun(t *testing.T) {
	coordinator := &scriptedParticipant{name: "Coordinator", turns: []scriptedTurn{
		{response: `{"selected_participant": "Analyst", "instruction": "Write section 1", "finish": false}`},
		{response: `{"finish": true}`},
	}}
	analyst := &scriptedParticipant{name: "Analyst", turns: []scriptedTurn{
		{response: "SECTION: 1 - Snapshot\nDone, more to come."},
	}}

	loop := newTestLoop(coordinator, []Participant{analyst}, NopSink)
	task := `Build the pitchbook. When every section is complete, output: "PITCHBOOK COMPLETE".`
	require.NoError(t, loop.Run(context.Background(), task))

	// The sentinel quoted in the task instruction must not satisfy the
	// termination check; the run does real work.
	assert.Equal(t, 1, analyst.calls)
	assert.Equal(t, 2, coordinator.calls)
	assert.Equal(t, 3, loop.Transcript().Len())
}

func TestRoundLoop_MarkerInFinalRoundCompletes(t *testing.T) {
	coordinator := &scriptedParticipant{name: "Coordinator", turns: []scriptedTurn{
		{response: `{"selected_participant": "Analyst", "instruction": "Finalize", "finish": false}`},
	}}
	analyst := &scriptedParticipant{name: "Analyst", turns: []scriptedTurn{
		{response: "All sections assembled. PITCHBOOK COMPLETE"},
	}}

	retrier := NewCallRetrier(ratelimit.New(ratelimit.Config{}), RetryPolicy{MaxAttempts: 1})
	loop := NewRoundLoop(coordinator, []Participant{analyst}, retrier, NopSink, LoopConfig{
		MaxRounds:         1,
		OuterAttempts:     1,
		TerminationMarker: "PITCHBOOK COMPLETE",
	})

	// The marker lands during the last permitted round; the run still
	// completes instead of reporting the round ceiling.
	require.NoError(t, loop.Run(context.Background(), "task"))
	assert.Equal(t, 1, analyst.calls)
}

func TestRoundLoop_RoundCeilingFires(t *testing.T) {
	coordinator := &scriptedParticipant{name: "Coordinator", turns: []scriptedTurn{
		{response: `{"selected_participant": "Analyst", "instruction": "again", "finish": false}`},
	}}
	analyst := &scriptedParticipant{name: "Analyst", turns: []scriptedTurn{{response: "more output"}}}

	loop := newTestLoop(coordinator, []Participant{analyst}, NopSink)
	err := loop.Run(context.Background(), "task")

	require.ErrorIs(t, err, errors.ErrRoundLimit)
	assert.Equal(t, 10, analyst.calls)
}

func TestRoundLoop_ParticipantFailureSkipsRound(t *testing.T) {
	coordinator := &scriptedParticipant{name: "Coordinator", turns: []scriptedTurn{
		{response: `{"selected_participant": "Analyst", "instruction": "try", "finish": false}`},
		{response: `{"finish": true}`},
	}}
	analyst := &scriptedParticipant{name: "Analyst", turns: []scriptedTurn{
		{err: errors.New("model refused")},
	}}

	loop := newTestLoop(coordinator, []Participant{analyst}, NopSink)
	require.NoError(t, loop.Run(context.Background(), "task"))

	// Failed attempt appends nothing; the loop moves on.
	assert.Equal(t, 1, loop.Transcript().Len())
	assert.Equal(t, 2, coordinator.calls)
}

func TestRoundLoop_OuterEnvelopeRestartsOnThrottle(t *testing.T) {
	coordinator := &scriptedParticipant{name: "Coordinator", turns: []scriptedTurn{
		{err: errors.Wrap(errors.ErrRateLimited, "rate limit")},
		{err: errors.Wrap(errors.ErrRateLimited, "rate limit")},
		{response: `{"finish": true}`},
	}}

	rec := &eventRecorder{}
	retrier := NewCallRetrier(ratelimit.New(ratelimit.Config{}), RetryPolicy{MaxAttempts: 1})
	loop := NewRoundLoop(coordinator, nil, retrier, rec, LoopConfig{
		MaxRounds:     5,
		OuterAttempts: 4,
		OuterWaitStep: time.Minute,
	})

	var waits []time.Duration
	loop.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}

	require.NoError(t, loop.Run(context.Background(), "task"))
	assert.Equal(t, 3, coordinator.calls)
	// Linearly growing restart waits: 1*60s then 2*60s.
	assert.Equal(t, []time.Duration{time.Minute, 2 * time.Minute}, waits)
	assert.Equal(t, EventComplete, rec.types()[len(rec.types())-1])
}

func TestRoundLoop_OuterEnvelopeExhaustionFails(t *testing.T) {
	coordinator := &scriptedParticipant{name: "Coordinator", turns: []scriptedTurn{
		{err: errors.Wrap(errors.ErrRateLimited, "rate limit")},
	}}

	rec := &eventRecorder{}
	retrier := NewCallRetrier(ratelimit.New(ratelimit.Config{}), RetryPolicy{MaxAttempts: 1})
	loop := NewRoundLoop(coordinator, nil, retrier, rec, LoopConfig{
		MaxRounds:     5,
		OuterAttempts: 4,
		OuterWaitStep: time.Minute,
	})
	loop.sleep = func(context.Context, time.Duration) error { return nil }

	err := loop.Run(context.Background(), "task")
	require.ErrorIs(t, err, errors.ErrRunFailed)
	assert.Equal(t, 4, coordinator.calls)

	types := rec.types()
	assert.Equal(t, EventError, types[len(types)-1])
}
