package groupchat

import (
	"context"
	"fmt"
	"time"

	"pitchbook/internal/metrics"
	"pitchbook/pkg/errors"
	"pitchbook/pkg/logger"
)

// LoopConfig bounds a single orchestration run.
type LoopConfig struct {
	// MaxRounds caps the number of coordinator decisions per run so the
	// loop terminates even if the coordinator never emits finish.
	MaxRounds int

	// OuterAttempts and OuterWaitStep drive the coarse restart envelope
	// used when the whole loop fails on throttling. The wait before
	// restart n is n * OuterWaitStep.
	OuterAttempts int
	OuterWaitStep time.Duration

	// TerminationMarker ends the run when it appears verbatim in any
	// transcript message.
	TerminationMarker string

	// SelectionPrompt is the per-turn instruction given to the coordinator.
	SelectionPrompt string
}

// RoundLoop drives the coordinator/participant cycle: the coordinator picks
// who speaks next, the chosen participant executes behind the pacing and
// retry layers, and the exchange is appended to the shared transcript.
// Execution is strictly sequential, one participant per round.
type RoundLoop struct {
	coordinator  Participant
	participants map[string]Participant
	retrier      *CallRetrier
	transcript   *Transcript
	sink         EventSink
	cfg          LoopConfig

	// seedLen is the transcript length after Run seeds the task. The
	// termination check starts past it: the task quotes the marker as an
	// instruction and must not satisfy it.
	seedLen int

	sleep func(ctx context.Context, d time.Duration) error
	log   *logger.Logger
}

func NewRoundLoop(coordinator Participant, participants []Participant, retrier *CallRetrier, sink EventSink, cfg LoopConfig) *RoundLoop {
	byName := make(map[string]Participant, len(participants))
	for _, p := range participants {
		byName[p.Name()] = p
	}
	if sink == nil {
		sink = NopSink
	}
	return &RoundLoop{
		coordinator:  coordinator,
		participants: byName,
		retrier:      retrier,
		transcript:   NewTranscript(),
		sink:         sink,
		cfg:          cfg,
		sleep:        sleepCtx,
		log:          logger.Get().With("component", "round_loop"),
	}
}

// Transcript exposes the run's conversation history.
func (l *RoundLoop) Transcript() *Transcript {
	return l.transcript
}

// Run executes the loop to completion for the given task. Throttling that
// survives the per-call retry layer restarts the loop from the current
// transcript, up to OuterAttempts times with a linearly growing wait. Any
// other error fails the run.
func (l *RoundLoop) Run(ctx context.Context, task string) error {
	l.transcript.Append("user", task)
	l.seedLen = l.transcript.Len()
	l.sink.Emit(newEvent(EventStatus, "", "Run started"))

	attempts := l.cfg.OuterAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := l.runRounds(ctx)
		if err == nil {
			metrics.RunsCompleted.WithLabelValues("completed").Inc()
			l.sink.Emit(newEvent(EventComplete, "", "Run completed"))
			return nil
		}
		if ctx.Err() != nil {
			return l.fail(err)
		}
		if !isThrottleClass(err) {
			return l.fail(err)
		}

		lastErr = err
		if attempt == attempts {
			break
		}

		wait := time.Duration(attempt) * l.cfg.OuterWaitStep
		l.log.Warnf("Run attempt %d/%d hit throttling, restarting in %s: %v", attempt, attempts, wait, err)
		l.sink.Emit(newEvent(EventStatus, "", fmt.Sprintf("Throttled, restarting in %s", wait)))

		if serr := l.sleep(ctx, wait); serr != nil {
			return l.fail(serr)
		}
	}

	return l.fail(errors.Wrapf(errors.ErrRunFailed, "all %d run attempts exhausted: %v", attempts, lastErr))
}

// runRounds loops SELECTING -> EXECUTING -> APPENDING until the coordinator
// finishes, the termination marker appears, or the round ceiling fires.
func (l *RoundLoop) runRounds(ctx context.Context) error {
	for round := 1; round <= l.cfg.MaxRounds; round++ {
		if l.markerPresent() {
			l.log.Infof("Termination marker found after %d rounds", round-1)
			metrics.Rounds.WithLabelValues("terminated").Inc()
			return nil
		}

		decision, rawDecision, err := l.selectNext(ctx)
		if err != nil {
			return err
		}

		if decision.Finish {
			l.log.Infof("Coordinator finished after %d rounds", round-1)
			metrics.Rounds.WithLabelValues("terminated").Inc()
			return nil
		}
		if decision.NoOp() {
			l.log.Warnf("Round %d: coordinator decision not parseable, skipping", round)
			metrics.Rounds.WithLabelValues("skipped").Inc()
			continue
		}

		participant, ok := l.participants[decision.Participant]
		if !ok {
			// One re-selection before giving up on the round.
			l.log.Warnf("Round %d: unknown participant %q, re-selecting once", round, decision.Participant)
			decision, rawDecision, err = l.selectNext(ctx)
			if err != nil {
				return err
			}
			if decision.Finish {
				metrics.Rounds.WithLabelValues("terminated").Inc()
				return nil
			}
			participant, ok = l.participants[decision.Participant]
			if !ok {
				l.log.Warnf("Round %d: still no valid participant (%q), skipping round", round, decision.Participant)
				metrics.Rounds.WithLabelValues("skipped").Inc()
				continue
			}
		}

		response, err := l.executeRound(ctx, participant, decision)
		if err != nil {
			if isThrottleClass(err) || ctx.Err() != nil {
				return err
			}
			// A non-retriable participant failure skips the round; the
			// coordinator may route differently next time. Nothing is
			// appended for a failed attempt.
			l.log.Errorf("Round %d: %s failed, skipping round: %v", round, participant.Name(), err)
			l.sink.Emit(newEvent(EventStatus, participant.Name(), fmt.Sprintf("%s failed: %v", participant.Name(), err)))
			metrics.Rounds.WithLabelValues("skipped").Inc()
			continue
		}

		l.transcript.Append(l.coordinator.Name(), rawDecision)
		msg := l.transcript.Append(participant.Name(), response)
		l.sink.Emit(newEvent(EventAgentDone, participant.Name(), msg.Content))
		metrics.Rounds.WithLabelValues("executed").Inc()
	}

	// The marker may have arrived during the final round.
	if l.markerPresent() {
		l.log.Infof("Termination marker found in final round %d", l.cfg.MaxRounds)
		metrics.Rounds.WithLabelValues("terminated").Inc()
		return nil
	}

	return errors.Wrapf(errors.ErrRoundLimit, "round ceiling of %d reached without termination", l.cfg.MaxRounds)
}

// markerPresent checks the termination sentinel against every message
// produced after the seeded task.
func (l *RoundLoop) markerPresent() bool {
	return l.cfg.TerminationMarker != "" && l.transcript.ContainsFrom(l.cfg.TerminationMarker, l.seedLen)
}

// selectNext asks the coordinator for the next decision. The raw text is
// returned alongside the parsed record so it can be appended verbatim.
func (l *RoundLoop) selectNext(ctx context.Context) (Decision, string, error) {
	var raw string
	err := l.retrier.Execute(ctx, l.coordinator.Name(), l.coordinator.Class(), func(ctx context.Context) error {
		out, err := l.coordinator.Respond(ctx, l.cfg.SelectionPrompt, l.transcript, nil)
		if err != nil {
			return err
		}
		raw = out
		return nil
	})
	if err != nil {
		return Decision{}, "", err
	}
	return ParseDecision(raw), raw, nil
}

// executeRound invokes the selected participant with streaming updates.
func (l *RoundLoop) executeRound(ctx context.Context, p Participant, d Decision) (string, error) {
	l.sink.Emit(newEvent(EventAgentStart, p.Name(), d.Instruction))

	var response string
	err := l.retrier.Execute(ctx, p.Name(), p.Class(), func(ctx context.Context) error {
		out, err := p.Respond(ctx, d.Instruction, l.transcript, func(delta string) {
			l.sink.Emit(newEvent(EventAgentUpdate, p.Name(), delta))
		})
		if err != nil {
			return err
		}
		response = out
		return nil
	})
	if err != nil {
		return "", err
	}
	return response, nil
}

func (l *RoundLoop) fail(err error) error {
	metrics.RunsCompleted.WithLabelValues("failed").Inc()
	l.sink.Emit(newEvent(EventError, "", err.Error()))
	return err
}

// isThrottleClass reports whether err represents systemic throttling that
// the outer restart envelope should absorb.
func isThrottleClass(err error) bool {
	return errors.Is(err, errors.ErrRateLimited) || errors.Is(err, errors.ErrRetryExhausted)
}
