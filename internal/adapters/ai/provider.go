package ai

import "context"

// ChatClient is the contract the orchestration core uses to talk to a hosted
// model. Implementations translate these neutral types into provider wire
// formats and run the tool-calling loop internally.
type ChatClient interface {
	// Complete sends one chat completion request and returns the final
	// assistant message after any tool-calling rounds.
	Complete(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	// CompleteStream behaves like Complete but invokes onDelta with each
	// incremental chunk of assistant text as it arrives.
	CompleteStream(ctx context.Context, req ChatRequest, onDelta func(delta string)) (*ChatResponse, error)
}

// ChatRequest represents a chat completion request.
type ChatRequest struct {
	Model        string
	Instructions string // system prompt
	Messages     []Message
	Tools        []ToolDefinition
	ToolExecutor ToolExecutor // required when Tools is non-empty
	Temperature  float64
	MaxTokens    int
}

// Message represents a single message in the conversation.
type Message struct {
	Role    MessageRole
	Content string
	Name    string // original author, for multi-party transcripts
}

// MessageRole defines the role of a message sender.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// ToolDefinition describes a function the model can call.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]interface{} // JSON schema
}

// ToolExecutor runs a named tool with JSON-encoded arguments and returns a
// JSON- or text-encoded result. Errors are surfaced to the caller as ordinary
// call failures.
type ToolExecutor func(ctx context.Context, name string, argsJSON string) (string, error)

// ChatResponse represents the final response from a chat completion.
type ChatResponse struct {
	Content       string
	ToolCallCount int
	Usage         Usage
}

// Usage tracks token consumption.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}
