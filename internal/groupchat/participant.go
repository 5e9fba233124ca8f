package groupchat

import (
	"context"
	"fmt"
	"time"

	"pitchbook/internal/adapters/ai"
	"pitchbook/internal/metrics"
	"pitchbook/internal/ratelimit"
	"pitchbook/pkg/logger"
)

// Participant produces one response per round, given an instruction and the
// accumulated conversation. Implementations are constructed once at startup
// and reused across rounds; Close releases any held resources at shutdown.
type Participant interface {
	Name() string
	Class() ratelimit.CallerClass
	Respond(ctx context.Context, instruction string, transcript *Transcript, onDelta func(string)) (string, error)
	Close(ctx context.Context) error
}

// ChatParticipant is a model-backed participant. Heterogeneity between
// participants lives entirely in configuration: instruction text, attached
// tools, and the pacing class.
type ChatParticipant struct {
	name         string
	instructions string
	model        string
	temperature  float64
	class        ratelimit.CallerClass
	tools        []ai.ToolDefinition
	executor     ai.ToolExecutor

	client ai.ChatClient
	log    *logger.Logger
}

// ParticipantSpec is the configuration a ChatParticipant is built from.
type ParticipantSpec struct {
	Name         string
	Instructions string
	Model        string
	Temperature  float64
	Class        ratelimit.CallerClass
	Tools        []ai.ToolDefinition
	Executor     ai.ToolExecutor
}

func NewChatParticipant(client ai.ChatClient, spec ParticipantSpec) *ChatParticipant {
	class := spec.Class
	if class == "" {
		class = ratelimit.ClassDefault
	}
	return &ChatParticipant{
		name:         spec.Name,
		instructions: spec.Instructions,
		model:        spec.Model,
		temperature:  spec.Temperature,
		class:        class,
		tools:        spec.Tools,
		executor:     spec.Executor,
		client:       client,
		log:          logger.Get().With("component", "participant", "participant", spec.Name),
	}
}

func (p *ChatParticipant) Name() string { return p.name }

func (p *ChatParticipant) Class() ratelimit.CallerClass { return p.class }

func (p *ChatParticipant) Close(ctx context.Context) error { return nil }

// Respond issues a single model call with the full conversation as context.
// onDelta, when non-nil, receives incremental output chunks in order.
func (p *ChatParticipant) Respond(ctx context.Context, instruction string, transcript *Transcript, onDelta func(string)) (string, error) {
	req := ai.ChatRequest{
		Model:        p.model,
		Instructions: p.instructions,
		Temperature:  p.temperature,
		Tools:        p.tools,
		ToolExecutor: p.executor,
		Messages: []ai.Message{
			{
				Role:    ai.RoleUser,
				Content: buildTurnPrompt(instruction, transcript),
			},
		},
	}

	start := time.Now()

	var resp *ai.ChatResponse
	var err error
	if onDelta != nil {
		resp, err = p.client.CompleteStream(ctx, req, onDelta)
	} else {
		resp, err = p.client.Complete(ctx, req)
	}
	if err != nil {
		metrics.ObserveParticipant(p.name, "error", time.Since(start))
		return "", err
	}

	metrics.ObserveParticipant(p.name, "success", time.Since(start))
	metrics.ParticipantTokens.WithLabelValues(p.name, "input").Add(float64(resp.Usage.PromptTokens))
	metrics.ParticipantTokens.WithLabelValues(p.name, "output").Add(float64(resp.Usage.CompletionTokens))

	p.log.Debugf("Responded in %s (%d tool calls, %d output tokens)",
		time.Since(start).Round(time.Millisecond), resp.ToolCallCount, resp.Usage.CompletionTokens)

	return resp.Content, nil
}

func buildTurnPrompt(instruction string, transcript *Transcript) string {
	if transcript == nil || transcript.Len() == 0 {
		return instruction
	}
	return fmt.Sprintf("Conversation so far:\n\n%s---\n\nYour task now: %s", transcript.Render(), instruction)
}
