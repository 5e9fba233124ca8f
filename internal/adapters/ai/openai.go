package ai

import (
	"context"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"pitchbook/pkg/errors"
	"pitchbook/pkg/logger"
)

// maxToolRounds bounds the internal tool-calling loop so a model that keeps
// requesting tools cannot spin forever.
const maxToolRounds = 8

// Ensure OpenAIClient implements ChatClient
var _ ChatClient = (*OpenAIClient)(nil)

// OpenAIClient implements ChatClient using the official OpenAI Go SDK.
type OpenAIClient struct {
	client  openai.Client
	timeout time.Duration
	log     *logger.Logger
}

// NewOpenAIClient creates a chat client backed by the OpenAI API.
func NewOpenAIClient(apiKey, baseURL string, timeout time.Duration) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, errors.Wrap(errors.ErrInvalidInput, "openai API key is required")
	}
	if timeout == 0 {
		timeout = 2 * time.Minute
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	return &OpenAIClient{
		client:  openai.NewClient(opts...),
		timeout: timeout,
		log:     logger.Get().With("component", "openai_client"),
	}, nil
}

// Complete sends a chat completion request, resolving tool calls until the
// model produces a final text answer.
func (c *OpenAIClient) Complete(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	params, err := c.buildParams(req)
	if err != nil {
		return nil, err
	}

	out := &ChatResponse{}

	for round := 0; round < maxToolRounds; round++ {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		completion, err := c.client.Chat.Completions.New(callCtx, params)
		cancel()
		if err != nil {
			return nil, classifyError(err)
		}

		accumulateUsage(&out.Usage, completion.Usage)

		if len(completion.Choices) == 0 {
			return nil, errors.Wrap(errors.ErrInternal, "completion returned no choices")
		}

		message := completion.Choices[0].Message
		if len(message.ToolCalls) == 0 {
			out.Content = message.Content
			return out, nil
		}

		params.Messages = append(params.Messages, message.ToParam())
		if err := c.resolveToolCalls(ctx, req, &params, message.ToolCalls, out); err != nil {
			return nil, err
		}
	}

	return nil, errors.Wrapf(errors.ErrInternal, "tool loop exceeded %d rounds", maxToolRounds)
}

// CompleteStream is like Complete but forwards assistant text deltas as they
// arrive. Tool-call rounds normally carry no text, so subscribers only see
// the participant's spoken output.
func (c *OpenAIClient) CompleteStream(ctx context.Context, req ChatRequest, onDelta func(string)) (*ChatResponse, error) {
	params, err := c.buildParams(req)
	if err != nil {
		return nil, err
	}

	out := &ChatResponse{}

	for round := 0; round < maxToolRounds; round++ {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		stream := c.client.Chat.Completions.NewStreaming(callCtx, params)

		acc := openai.ChatCompletionAccumulator{}
		for stream.Next() {
			chunk := stream.Current()
			acc.AddChunk(chunk)

			if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" && onDelta != nil {
				onDelta(chunk.Choices[0].Delta.Content)
			}
		}
		streamErr := stream.Err()
		cancel()
		if streamErr != nil {
			return nil, classifyError(streamErr)
		}

		accumulateUsage(&out.Usage, acc.Usage)

		if len(acc.Choices) == 0 {
			return nil, errors.Wrap(errors.ErrInternal, "stream returned no choices")
		}

		message := acc.Choices[0].Message
		if len(message.ToolCalls) == 0 {
			out.Content = message.Content
			return out, nil
		}

		params.Messages = append(params.Messages, message.ToParam())
		if err := c.resolveToolCalls(ctx, req, &params, message.ToolCalls, out); err != nil {
			return nil, err
		}
	}

	return nil, errors.Wrapf(errors.ErrInternal, "tool loop exceeded %d rounds", maxToolRounds)
}

// resolveToolCalls executes each requested tool and appends the results to
// the outgoing message list. Tool failures surface as ordinary call failures.
func (c *OpenAIClient) resolveToolCalls(
	ctx context.Context,
	req ChatRequest,
	params *openai.ChatCompletionNewParams,
	calls []openai.ChatCompletionMessageToolCallUnion,
	out *ChatResponse,
) error {
	if req.ToolExecutor == nil {
		return errors.Wrap(errors.ErrInvalidInput, "model requested tools but no executor is configured")
	}

	for _, call := range calls {
		out.ToolCallCount++

		name := call.Function.Name
		c.log.Debugf("Tool call: %s(%s)", name, call.Function.Arguments)

		result, err := req.ToolExecutor(ctx, name, call.Function.Arguments)
		if err != nil {
			return errors.Wrapf(errors.ErrToolFailed, "%s: %v", name, err)
		}

		params.Messages = append(params.Messages, openai.ToolMessage(result, call.ID))
	}

	return nil
}

// buildParams converts the neutral request into OpenAI wire parameters.
func (c *OpenAIClient) buildParams(req ChatRequest) (openai.ChatCompletionNewParams, error) {
	if req.Model == "" {
		return openai.ChatCompletionNewParams{}, errors.Wrap(errors.ErrInvalidInput, "model is required")
	}

	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(req.Model),
	}

	if req.Instructions != "" {
		params.Messages = append(params.Messages, openai.SystemMessage(req.Instructions))
	}

	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem:
			params.Messages = append(params.Messages, openai.SystemMessage(msg.Content))
		case RoleAssistant:
			params.Messages = append(params.Messages, openai.AssistantMessage(msg.Content))
		default:
			params.Messages = append(params.Messages, openai.UserMessage(msg.Content))
		}
	}

	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}

	for _, tool := range req.Tools {
		params.Tools = append(params.Tools, openai.ChatCompletionFunctionTool(shared.FunctionDefinitionParam{
			Name:        tool.Name,
			Description: openai.String(tool.Description),
			Parameters:  shared.FunctionParameters(tool.Parameters),
		}))
	}

	return params, nil
}

func accumulateUsage(into *Usage, usage openai.CompletionUsage) {
	into.PromptTokens += int(usage.PromptTokens)
	into.CompletionTokens += int(usage.CompletionTokens)
	into.TotalTokens += int(usage.TotalTokens)
}
