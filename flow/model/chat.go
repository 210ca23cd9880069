// Package model is the LLM-provider adapter layer: a small ChatModel /
// EmbeddingModel surface the llm and embeddings node types consume via
// collab, with concrete implementations per provider SDK in the
// anthropic, openai, and google subpackages. The engine itself never
// imports a provider SDK; it sees only collab interfaces, and this
// package's adapters bridge the two.
package model

import "context"

// Message is one turn of a chat conversation.
type Message struct {
	Role    string
	Content string
}

// Chat roles shared across providers.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Request is one chat completion call. Zero-valued knobs mean "provider
// default": an empty Model uses the client's configured model, a zero
// MaxTokens uses the provider's default budget, and a zero Temperature
// is not sent.
type Request struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// Usage is the token accounting a provider reports for one call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// ChatOut is the provider-neutral result of one chat completion.
type ChatOut struct {
	Text         string
	Model        string
	FinishReason string
	Usage        Usage
}

// ChatModel is a chat completion backend. Implementations translate
// Request into the provider's wire format, honor ctx cancellation, and
// report provider failures as errors rather than sentinel outputs.
type ChatModel interface {
	Chat(ctx context.Context, req Request) (ChatOut, error)
}

// StreamChunk is one increment of a streamed completion. Err is set on
// the final chunk of a failed stream.
type StreamChunk struct {
	Text string
	Err  error
}

// StreamingChatModel is implemented by backends that can deliver the
// completion incrementally. The adapter layer falls back to a single
// whole-response chunk for backends that cannot.
type StreamingChatModel interface {
	ChatModel
	StreamChat(ctx context.Context, req Request) (<-chan StreamChunk, error)
}

// EmbeddingModel turns texts into vectors, one per input, in order.
// An empty modelName uses the client's configured model.
type EmbeddingModel interface {
	Embed(ctx context.Context, texts []string, modelName string) ([][]float64, error)
}
